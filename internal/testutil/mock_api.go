// Package testutil provides testing utilities for the search scraper.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// SearchPath is the path the mock serves search pages on.
const SearchPath = "/2/search/adaptive.json"

// MockResponse defines the behavior for a mock search response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock search API. Pages are keyed by the cursor
// the request carries; the first page is keyed by "".
type MockAPI struct {
	server *httptest.Server
	mu     sync.Mutex
	pages  map[string]MockResponse
	queued map[string][]MockResponse

	// Tracking
	requestCount      int
	cursors           []string
	lastRequestHeader http.Header
}

// NewMockAPI creates and starts a new mock search API.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		pages:  make(map[string]MockResponse),
		queued: make(map[string][]MockResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(SearchPath, mock.handleSearch)
	mock.server = httptest.NewServer(mux)

	return mock
}

// URL returns the mock server base URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// SearchURL returns the full URL of the mock search endpoint.
func (m *MockAPI) SearchURL() string {
	return m.server.URL + SearchPath
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetPage serves body with status 200 for requests carrying cursor.
func (m *MockAPI) SetPage(cursor string, body string) {
	m.SetResponse(cursor, NewPageResponse(body))
}

// SetResponse configures the steady-state response for cursor.
func (m *MockAPI) SetResponse(cursor string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[cursor] = resp
}

// QueueResponse schedules a one-shot response for cursor. Queued responses
// are served in order before the steady-state response.
func (m *MockAPI) QueueResponse(cursor string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued[cursor] = append(m.queued[cursor], resp)
}

// RequestCount returns the number of search requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// Cursors returns the cursor of every request in arrival order.
func (m *MockAPI) Cursors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.cursors))
	copy(out, m.cursors)
	return out
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequestHeader
}

func (m *MockAPI) handleSearch(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")

	m.mu.Lock()
	m.requestCount++
	m.cursors = append(m.cursors, cursor)
	m.lastRequestHeader = r.Header.Clone()

	resp, ok := m.pages[cursor]
	if queue := m.queued[cursor]; len(queue) > 0 {
		resp, ok = queue[0], true
		m.queued[cursor] = queue[1:]
	}
	m.mu.Unlock()

	if !ok {
		http.Error(w, `{"errors":[{"message":"unknown cursor"}]}`, http.StatusNotFound)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewPageResponse creates a 200 OK response carrying body.
func NewPageResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":           "application/json;charset=utf-8",
			"X-Rate-Limit-Limit":     "180",
			"X-Rate-Limit-Remaining": "179",
			"X-Rate-Limit-Reset":     "1700000900",
		},
	}
}

// NewStatusResponse creates a bodied error response with the given status.
func NewStatusResponse(status int) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       `{"errors":[{"code":0,"message":"` + http.StatusText(status) + `"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	resp := NewStatusResponse(http.StatusTooManyRequests)
	resp.Headers["X-Rate-Limit-Remaining"] = "0"
	return resp
}
