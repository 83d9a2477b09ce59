package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultExploreURL is the page that issues the guest token cookie.
const DefaultExploreURL = "https://twitter.com/explore"

// GuestTokenCookie is the name of the cookie carrying the guest token.
const GuestTokenCookie = "gt"

// Bootstrapper produces a fresh header set.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) (Headers, error)
}

// GuestBootstrapper visits the explore page with an empty cookie jar and
// harvests the guest token cookie it is issued.
type GuestBootstrapper struct {
	exploreURL string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewGuestBootstrapper creates a bootstrapper for exploreURL. A nil
// httpClient gets a default client with a 30 second timeout.
func NewGuestBootstrapper(exploreURL, userAgent string, httpClient *http.Client) *GuestBootstrapper {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GuestBootstrapper{
		exploreURL: exploreURL,
		userAgent:  userAgent,
		httpClient: httpClient,
		logger:     log.With().Str("component", "auth-bootstrap").Logger(),
	}
}

// Bootstrap implements Bootstrapper.
func (b *GuestBootstrapper) Bootstrap(ctx context.Context) (Headers, error) {
	target, err := url.Parse(b.exploreURL)
	if err != nil {
		return nil, fmt.Errorf("parse explore url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	// Copy the client so the jar stays private to this bootstrap.
	client := *b.httpClient
	client.Jar = jar

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	req.Header.Set("Accept", "text/html")

	b.logger.Debug().Str("url", target.String()).Msg("Requesting guest token")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch explore page: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch explore page: status %d", resp.StatusCode)
	}

	var token string
	for _, c := range jar.Cookies(target) {
		if c.Name == GuestTokenCookie {
			token = c.Value
			break
		}
	}

	if token == "" {
		b.logger.Warn().Str("url", target.String()).Msg("Explore page issued no guest token")
		return nil, ErrNoGuestToken
	}
	if !isGuestToken(token) {
		return nil, ErrInvalidGuestToken
	}

	b.logger.Info().Msg("Guest token acquired")
	return NewHeaders(token), nil
}
