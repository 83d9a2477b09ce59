package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sternrassler/search-scraper/internal/testutil"
)

func newExploreServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestGuestBootstrapper_Success(t *testing.T) {
	var gotUA string
	server := newExploreServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		http.SetCookie(w, &http.Cookie{Name: "personalization_id", Value: "v1_abc", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: GuestTokenCookie, Value: "1580000000000000000", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})

	b := NewGuestBootstrapper(server.URL+"/explore", "search-scraper/test", nil)
	headers, err := b.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	if headers.Get(HeaderGuestToken) != "1580000000000000000" {
		t.Errorf("guest token = %q", headers.Get(HeaderGuestToken))
	}
	if headers.Get(HeaderAuthorization) != BearerToken {
		t.Errorf("authorization = %q, want bearer token", headers.Get(HeaderAuthorization))
	}
	if err := headers.Validate(); err != nil {
		t.Errorf("bootstrapped headers invalid: %v", err)
	}
	if gotUA != "search-scraper/test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestGuestBootstrapper_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "no cookie",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantErr: ErrNoGuestToken,
		},
		{
			name: "invalid cookie",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.SetCookie(w, &http.Cookie{Name: GuestTokenCookie, Value: "not-a-token", Path: "/"})
				w.WriteHeader(http.StatusOK)
			},
			wantErr: ErrInvalidGuestToken,
		},
		{
			name: "error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newExploreServer(t, tt.handler)
			b := NewGuestBootstrapper(server.URL, "", server.Client())

			_, err := b.Bootstrap(context.Background())
			if err == nil {
				t.Fatal("Bootstrap() expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Bootstrap() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGuestBootstrapper_DoesNotMutateClient(t *testing.T) {
	server := newExploreServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: GuestTokenCookie, Value: "1", Path: "/"})
	})

	client := &http.Client{}
	b := NewGuestBootstrapper(server.URL, "", client)
	if _, err := b.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if client.Jar != nil {
		t.Error("Bootstrap() should not install a jar on the caller's client")
	}
}

func TestGuestBootstrapper_RecordedExplorePage(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "explore_guest_token")
	defer cleanup()

	b := NewGuestBootstrapper(DefaultExploreURL, "search-scraper/1.0", testutil.VCRHTTPClient(r))
	headers, err := b.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	if got := headers.Get(HeaderGuestToken); got != "1642873904563511296" {
		t.Errorf("guest token = %q", got)
	}
	if err := headers.Validate(); err != nil {
		t.Errorf("bootstrapped headers invalid: %v", err)
	}
}

func TestGuestBootstrapper_RecordedExplorePageWithoutToken(t *testing.T) {
	r, cleanup := testutil.NewVCRRecorder(t, "explore_no_guest_token")
	defer cleanup()

	b := NewGuestBootstrapper(DefaultExploreURL, "search-scraper/1.0", testutil.VCRHTTPClient(r))
	if _, err := b.Bootstrap(context.Background()); !errors.Is(err, ErrNoGuestToken) {
		t.Fatalf("Bootstrap() error = %v, want ErrNoGuestToken", err)
	}
}
