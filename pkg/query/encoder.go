// Package query builds request URLs for the adaptive search endpoint.
package query

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultEndpoint is the adaptive search endpoint queried by the scraper.
const DefaultEndpoint = "https://api.twitter.com/2/search/adaptive.json"

// Param is a single query string parameter.
type Param struct {
	Name  string
	Value string
}

// staticParams tune payload richness and server-side behavior. They are sent
// with every page request, ahead of the query text and the cursor.
var staticParams = []Param{
	{"include_profile_interstitial_type", "1"},
	{"include_blocking", "1"},
	{"include_blocked_by", "1"},
	{"include_followed_by", "1"},
	{"include_want_retweets", "1"},
	{"include_mute_edge", "1"},
	{"include_can_dm", "1"},
	{"include_can_media_tag", "1"},
	{"skip_status", "1"},
	{"cards_platform", "Web-12"},
	{"include_cards", "1"},
	{"include_ext_alt_text", "true"},
	{"include_quote_count", "true"},
	{"include_reply_count", "1"},
	{"tweet_mode", "extended"},
	{"include_entities", "true"},
	{"include_user_entities", "true"},
	{"include_ext_media_color", "true"},
	{"include_ext_media_availability", "true"},
	{"send_error_codes", "true"},
	{"simple_quoted_tweet", "true"},
	{"query_source", "typed_query"},
	{"pc", "1"},
	{"spelling_corrections", "1"},
	{"ext", "mediaStats,highlightedLabel"},
	{"count", "20"},
	{"tweet_search_mode", "live"},
}

// StaticParams returns a copy of the fixed parameter set.
func StaticParams() []Param {
	params := make([]Param, len(staticParams))
	copy(params, staticParams)
	return params
}

// Encoder produces page request URLs. It is immutable and safe for
// concurrent use.
type Encoder struct {
	base   string
	prefix string
}

// NewEncoder validates baseURL once so that Encode never fails.
// Any query string already present on baseURL is discarded.
func NewEncoder(baseURL string) (*Encoder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: unsupported scheme %q", baseURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}

	u.RawQuery = ""
	u.Fragment = ""

	var b strings.Builder
	for i, p := range staticParams {
		if i > 0 {
			b.WriteByte('&')
		}
		writeParam(&b, p.Name, p.Value)
	}

	return &Encoder{
		base:   u.String(),
		prefix: b.String(),
	}, nil
}

// BaseURL returns the endpoint without any query string.
func (e *Encoder) BaseURL() string {
	return e.base
}

// Encode builds the URL for one page request. An empty cursor means the first
// page; otherwise the cursor is appended as the final parameter.
func (e *Encoder) Encode(q string, cursor string) string {
	var b strings.Builder
	b.Grow(len(e.base) + len(e.prefix) + len(q) + len(cursor) + 16)

	b.WriteString(e.base)
	b.WriteByte('?')
	b.WriteString(e.prefix)
	b.WriteByte('&')
	writeParam(&b, "q", q)
	if cursor != "" {
		b.WriteByte('&')
		writeParam(&b, "cursor", cursor)
	}
	return b.String()
}

func writeParam(b *strings.Builder, name, value string) {
	b.WriteString(url.QueryEscape(name))
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(value))
}
