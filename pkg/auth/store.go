package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultStoreTTL bounds how long a cached header set is reused. Guest
// tokens expire upstream after a few hours.
const DefaultStoreTTL = 2 * time.Hour

var storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scraper_header_store_ops_total",
	Help: "Header store operations by operation and result",
}, []string{"operation", "result"})

// cachedHeaders is the Redis representation of a header set.
type cachedHeaders struct {
	Headers  Headers   `json:"headers"`
	CachedAt time.Time `json:"cached_at"`
}

// Store caches header sets in Redis so repeated invocations can skip
// bootstrap while the guest token is still valid.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a header store. A non-positive ttl uses DefaultStoreTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultStoreTTL
	}
	return &Store{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Key returns the Redis key for a profile.
// Format: scraper:headers:<profile>
func Key(profile string) string {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	return "scraper:headers:" + profile
}

// Load returns the cached header set for profile, or ErrNotCached.
func (s *Store) Load(ctx context.Context, profile string) (Headers, error) {
	data, err := s.redis.Get(ctx, Key(profile)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			storeOpsTotal.WithLabelValues("load", "miss").Inc()
			return nil, ErrNotCached
		}
		storeOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry cachedHeaders
	if err := json.Unmarshal(data, &entry); err != nil {
		storeOpsTotal.WithLabelValues("load", "error").Inc()
		return nil, fmt.Errorf("decode cached headers: %w", err)
	}
	if err := entry.Headers.Validate(); err != nil {
		storeOpsTotal.WithLabelValues("load", "invalid").Inc()
		_ = s.Delete(ctx, profile)
		return nil, ErrNotCached
	}

	storeOpsTotal.WithLabelValues("load", "hit").Inc()
	return entry.Headers, nil
}

// Save caches h for profile with the store TTL.
func (s *Store) Save(ctx context.Context, profile string, h Headers) error {
	if h == nil {
		return fmt.Errorf("headers cannot be nil")
	}

	data, err := json.Marshal(cachedHeaders{Headers: h, CachedAt: time.Now()})
	if err != nil {
		storeOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("marshal headers: %w", err)
	}

	if err := s.redis.Set(ctx, Key(profile), data, s.ttl).Err(); err != nil {
		storeOpsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	storeOpsTotal.WithLabelValues("save", "ok").Inc()
	return nil
}

// Delete removes the cached header set for profile.
func (s *Store) Delete(ctx context.Context, profile string) error {
	if err := s.redis.Del(ctx, Key(profile)).Err(); err != nil {
		storeOpsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// CachingBootstrapper serves headers from a Store and falls back to the
// wrapped Bootstrapper on a miss, caching what it returns.
type CachingBootstrapper struct {
	Store   *Store
	Profile string
	Next    Bootstrapper
}

// Bootstrap implements Bootstrapper.
func (c *CachingBootstrapper) Bootstrap(ctx context.Context) (Headers, error) {
	logger := log.With().Str("component", "auth-store").Str("profile", c.Profile).Logger()

	h, err := c.Store.Load(ctx, c.Profile)
	if err == nil {
		logger.Debug().Msg("Using cached headers")
		return h, nil
	}
	if !errors.Is(err, ErrNotCached) {
		logger.Warn().Err(err).Msg("Header store load failed, bootstrapping")
	}

	h, err = c.Next.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Store.Save(ctx, c.Profile, h); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache headers")
	}
	return h, nil
}
