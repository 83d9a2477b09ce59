// Package client fetches individual search result pages, retrying transient
// HTTP failures with a fixed pause and classifying everything else.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/search-scraper/pkg/auth"
	"github.com/Sternrassler/search-scraper/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Prometheus metrics for page requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_requests_total",
		Help: "Total search page requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_request_duration_seconds",
		Help:    "Page fetch duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 60, 300},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_errors_total",
		Help: "Total page request errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable 4xx (and other non-2xx) responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassTimeout represents 408 Request Timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassNetwork represents transport failures.
	ErrorClassNetwork ErrorClass = "network"
)

// ClassifyStatus maps a non-2xx status code to its error class.
func ClassifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode == http.StatusRequestTimeout:
		return ErrorClassTimeout
	case statusCode >= 500 && statusCode <= 599:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// Config holds the client configuration.
type Config struct {
	// Redis enables shared rate limit pacing when set (optional).
	Redis *redis.Client

	// User-Agent header sent with every request.
	UserAgent string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Retry policy for 408, 429 and 5xx responses.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches search pages.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
	sleep       sleepFunc
}

// New creates a new page client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %v)", cfg.Timeout)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "page-client").Logger()

	var rateLimiter *ratelimit.Tracker
	if cfg.Redis != nil {
		rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		rateLimiter: rateLimiter,
		config:      cfg,
		logger:      logger,
		sleep:       sleepContext,
	}, nil
}

// FetchPage performs one logical GET of pageURL with the given headers and
// returns the 2xx response body. Responses classified as rate_limit, timeout
// or server are retried after the configured interval; any other non-2xx
// status yields a *StatusError and transport failures a *NetworkError.
func (c *Client) FetchPage(ctx context.Context, pageURL string, headers auth.Headers) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	var body []byte
	err := retryFixed(ctx, c.config.Retry, c.sleep, c.logger, func(attempt int) (ErrorClass, error) {
		var attemptErr error
		body, attemptErr = c.do(ctx, pageURL, headers, attempt)
		if attemptErr == nil {
			return "", nil
		}
		if statusErr, ok := attemptErr.(*StatusError); ok {
			return statusErr.ErrorClass, statusErr
		}
		return ErrorClassNetwork, attemptErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// do issues a single HTTP attempt.
func (c *Client) do(ctx context.Context, pageURL string, headers auth.Headers, attempt int) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			if !ratelimit.IsUnavailable(err) {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
			}
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	headers.Apply(req)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Int("attempt", attempt).
		Str("url", pageURL).
		Msg("Executing page request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	status := strconv.Itoa(resp.StatusCode)
	requestsTotal.WithLabelValues(status).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := ClassifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		// Drain so the connection can be reused for the retry.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(errClass)).
			Int("attempt", attempt).
			Msg("Page request error")

		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &NetworkError{Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug().
		Int("status_code", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Page fetched")

	return body, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
