// Package metrics exposes the scraper's Prometheus metrics over HTTP.
// The metrics themselves are defined in the packages that update them
// (client, page, ratelimit, auth, stream) and registered via promauto on the
// default Prometheus registry, which Handler serves.
//
// Request metrics (pkg/client):
//   - scraper_requests_total{status} (Counter): page requests by HTTP status
//   - scraper_request_duration_seconds (Histogram): page fetch duration, retries included
//   - scraper_errors_total{class} (Counter): errors by class (client, server, rate_limit, timeout, network)
//
// Retry metrics (pkg/client):
//   - scraper_retries_total{error_class} (Counter): retry attempts
//   - scraper_retry_backoff_seconds{error_class} (Histogram): pause before each retry
//   - scraper_retry_exhausted_total{error_class} (Counter): requests that hit the retry cap
//
// Decode metrics (pkg/page):
//   - scraper_pages_decoded_total{result} (Counter): decoded pages by result (ok, malformed, no_cursor)
//   - scraper_records_decoded_total (Counter): records produced by the decoder
//
// Stream metrics (pkg/stream):
//   - scraper_stream_records_yielded_total (Counter): records handed to consumers
//   - scraper_stream_pages_total{result} (Counter): pages pulled (ok, empty, error)
//   - scraper_stream_terminations_total{reason} (Counter): limit, floor, error, exhausted
//
// Rate limit metrics (pkg/ratelimit):
//   - scraper_rate_limit_remaining (Gauge): requests left in the upstream window
//   - scraper_rate_limit_blocks_total (Counter): waits for a window reset
//   - scraper_rate_limit_throttles_total (Counter): throttled requests
//
// Header store metrics (pkg/auth):
//   - scraper_header_store_ops_total{operation,result} (Counter)
//
// Example queries:
//
//	# Retry pressure
//	sum(rate(scraper_retries_total[5m])) by (error_class)
//
//	# Records per page
//	rate(scraper_records_decoded_total[5m]) / rate(scraper_pages_decoded_total{result="ok"}[5m])
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/search-scraper/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve exposes Handler on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	logger := logging.NewLogger("metrics")

	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
