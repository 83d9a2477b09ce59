// Package auth provides the request headers needed to call the search API:
// guest token bootstrap, flat file persistence and a Redis-backed cache.
package auth

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Header names carried on every search request.
const (
	HeaderAuthorization = "authorization"
	HeaderGuestToken    = "x-guest-token"
)

// BearerToken is the public bearer token of the web client.
const BearerToken = "Bearer AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

// Headers maps header names to values. Names are stored lower-case.
type Headers map[string]string

// NewHeaders combines the bearer token with a guest token.
func NewHeaders(guestToken string) Headers {
	return Headers{
		HeaderAuthorization: BearerToken,
		HeaderGuestToken:    guestToken,
	}
}

// Set stores value under the lower-cased name.
func (h Headers) Set(name, value string) {
	h[strings.ToLower(name)] = value
}

// Get returns the value stored under name, case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Names returns the header names in sorted order.
func (h Headers) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that both the bearer token and a well-formed guest token
// are present.
func (h Headers) Validate() error {
	if h.Get(HeaderAuthorization) == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderAuthorization)
	}
	token := h.Get(HeaderGuestToken)
	if token == "" {
		return ErrNoGuestToken
	}
	if !isGuestToken(token) {
		return ErrInvalidGuestToken
	}
	return nil
}

// Apply sets every header on req.
func (h Headers) Apply(req *http.Request) {
	for name, value := range h {
		req.Header.Set(name, value)
	}
}

// isGuestToken reports whether token looks like a guest token: a non-empty
// run of decimal digits.
func isGuestToken(token string) bool {
	if token == "" {
		return false
	}
	for _, c := range token {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
