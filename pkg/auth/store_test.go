package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis and skips the test if none is
// running. The integration suite uses testcontainers instead.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

type countingBootstrapper struct {
	calls   int
	headers Headers
	err     error
}

func (c *countingBootstrapper) Bootstrap(context.Context) (Headers, error) {
	c.calls++
	return c.headers, c.err
}

func TestKey(t *testing.T) {
	tests := []struct {
		profile string
		want    string
	}{
		{"", "scraper:headers:default"},
		{"  ", "scraper:headers:default"},
		{"work", "scraper:headers:work"},
	}
	for _, tt := range tests {
		if got := Key(tt.profile); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.profile, got, tt.want)
		}
	}
}

func TestNewStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewStore should panic with nil redis client")
		}
	}()
	NewStore(nil, time.Minute)
}

func TestNewStore_DefaultTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	s := NewStore(client, 0)
	if s.ttl != DefaultStoreTTL {
		t.Errorf("ttl = %v, want %v", s.ttl, DefaultStoreTTL)
	}
}

func TestStore_SaveLoad(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	if _, err := store.Load(ctx, "p"); !errors.Is(err, ErrNotCached) {
		t.Fatalf("Load() on empty store error = %v, want ErrNotCached", err)
	}

	want := NewHeaders("1580000000000000000")
	if err := store.Save(ctx, "p", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "p")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Get(HeaderGuestToken) != want.Get(HeaderGuestToken) {
		t.Errorf("guest token = %q, want %q", got.Get(HeaderGuestToken), want.Get(HeaderGuestToken))
	}

	ttl, err := client.TTL(ctx, Key("p")).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want (0, 1m]", ttl)
	}

	if err := store.Delete(ctx, "p"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "p"); !errors.Is(err, ErrNotCached) {
		t.Errorf("Load() after delete error = %v, want ErrNotCached", err)
	}
}

func TestStore_InvalidEntryIsDropped(t *testing.T) {
	client := setupTestRedis(t)
	store := NewStore(client, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, "p", Headers{HeaderAuthorization: BearerToken}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := store.Load(ctx, "p"); !errors.Is(err, ErrNotCached) {
		t.Errorf("Load() of invalid entry error = %v, want ErrNotCached", err)
	}
	if n, _ := client.Exists(ctx, Key("p")).Result(); n != 0 {
		t.Error("invalid entry should have been deleted")
	}
}

func TestCachingBootstrapper(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	next := &countingBootstrapper{headers: NewHeaders("777")}
	cb := &CachingBootstrapper{
		Store:   NewStore(client, time.Minute),
		Profile: "test",
		Next:    next,
	}

	for i := 0; i < 3; i++ {
		h, err := cb.Bootstrap(ctx)
		if err != nil {
			t.Fatalf("Bootstrap() #%d error = %v", i, err)
		}
		if h.Get(HeaderGuestToken) != "777" {
			t.Errorf("guest token = %q, want 777", h.Get(HeaderGuestToken))
		}
	}

	if next.calls != 1 {
		t.Errorf("wrapped bootstrapper called %d times, want 1", next.calls)
	}
}

func TestCachingBootstrapper_PropagatesError(t *testing.T) {
	client := setupTestRedis(t)

	cb := &CachingBootstrapper{
		Store: NewStore(client, time.Minute),
		Next:  &countingBootstrapper{err: ErrNoGuestToken},
	}

	if _, err := cb.Bootstrap(context.Background()); !errors.Is(err, ErrNoGuestToken) {
		t.Errorf("Bootstrap() error = %v, want ErrNoGuestToken", err)
	}
}
