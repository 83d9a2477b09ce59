package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis and skips the test if none is
// running.
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

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(setupTestRedis(t), logger)
	tracker.SetThrottleDelay(50 * time.Millisecond)
	return tracker
}

func windowHeaders(remaining int, resetIn time.Duration) http.Header {
	h := http.Header{}
	h.Set(HeaderLimit, "180")
	h.Set(HeaderRemaining, strconv.Itoa(remaining))
	h.Set(HeaderReset, strconv.FormatInt(time.Now().Add(resetIn).Unix(), 10))
	return h
}

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	// Parsing fails before Redis is touched, so no server is needed.
	tracker := NewTracker(redis.NewClient(&redis.Options{Addr: "localhost:0"}), logger)
	ctx := context.Background()

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{
			name:    "non numeric remaining",
			headers: map[string]string{HeaderRemaining: "many", HeaderReset: "1700000000"},
		},
		{
			name:    "missing reset",
			headers: map[string]string{HeaderRemaining: "10"},
		},
		{
			name:    "non numeric reset",
			headers: map[string]string{HeaderRemaining: "10", HeaderReset: "soon"},
		},
		{
			name:    "non numeric limit",
			headers: map[string]string{HeaderRemaining: "10", HeaderReset: "1700000000", HeaderLimit: "lots"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			if err := tracker.UpdateFromHeaders(ctx, h); err == nil {
				t.Error("UpdateFromHeaders() expected error, got nil")
			}
		})
	}
}

func TestUpdateFromHeaders_NoHeaders(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redis.NewClient(&redis.Options{Addr: "localhost:0"}), logger)

	if err := tracker.UpdateFromHeaders(context.Background(), http.Header{}); err != nil {
		t.Errorf("UpdateFromHeaders() without headers error = %v, want nil", err)
	}
}

func TestTracker_GetState_Default(t *testing.T) {
	tracker := newTestTracker(t)

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy {
		t.Error("default state should be healthy")
	}
	if state.NeedsCriticalBlock() || state.NeedsThrottling() {
		t.Error("default state should not pace requests")
	}
}

func TestTracker_UpdateAndGetState(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.UpdateFromHeaders(ctx, windowHeaders(42, 2*time.Minute)); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Remaining != 42 {
		t.Errorf("Remaining = %d, want 42", state.Remaining)
	}
	if state.Limit != 180 {
		t.Errorf("Limit = %d, want 180", state.Limit)
	}
	if d := state.TimeUntilReset(); d < 110*time.Second || d > 2*time.Minute {
		t.Errorf("TimeUntilReset() = %v, want ~2m", d)
	}
}

func TestTracker_Wait(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		resetIn   time.Duration
		minWait   time.Duration
		maxWait   time.Duration
	}{
		{name: "healthy", remaining: 100, resetIn: time.Minute, maxWait: 40 * time.Millisecond},
		{name: "warning throttles", remaining: 5, resetIn: time.Minute, minWait: 45 * time.Millisecond, maxWait: time.Second},
		{name: "critical waits for reset", remaining: 0, resetIn: 2 * time.Second, minWait: 500 * time.Millisecond, maxWait: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newTestTracker(t)
			ctx := context.Background()

			if err := tracker.UpdateFromHeaders(ctx, windowHeaders(tt.remaining, tt.resetIn)); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			start := time.Now()
			if err := tracker.Wait(ctx); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
			elapsed := time.Since(start)

			if elapsed < tt.minWait || elapsed > tt.maxWait {
				t.Errorf("Wait() took %v, want between %v and %v", elapsed, tt.minWait, tt.maxWait)
			}
		})
	}
}

func TestTracker_Wait_ContextCancelled(t *testing.T) {
	tracker := newTestTracker(t)

	if err := tracker.UpdateFromHeaders(context.Background(), windowHeaders(0, time.Hour)); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tracker.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
	if IsUnavailable(err) {
		t.Error("context errors should not be reported as unavailable")
	}
}

func TestIsUnavailable(t *testing.T) {
	if IsUnavailable(nil) {
		t.Error("IsUnavailable(nil) = true")
	}
	if !IsUnavailable(errors.New("dial tcp: connection refused")) {
		t.Error("IsUnavailable(connection error) = false")
	}
	if IsUnavailable(context.Canceled) {
		t.Error("IsUnavailable(context.Canceled) = true")
	}
}
