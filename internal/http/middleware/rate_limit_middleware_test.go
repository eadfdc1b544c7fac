package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimiterDeniesAfterBudget(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, "exchange")
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/magic-link/exchange", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/magic-link/exchange", nil)
	req.RemoteAddr = "203.0.113.7:4001"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/auth/magic-link/exchange", nil)
	other.RemoteAddr = "198.51.100.1:4000"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected separate budget per ip, got %d", rr.Code)
	}
}

func TestLocalTokenBucketLimiterRefills(t *testing.T) {
	limiter := NewLocalTokenBucketLimiter().(*localTokenBucketLimiter)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	policy := RateLimitPolicy{Limit: 1, Window: time.Minute}

	if d, _ := limiter.Allow(context.Background(), "k", policy); !d.Allowed {
		t.Fatal("expected first request to pass")
	}
	d, _ := limiter.Allow(context.Background(), "k", policy)
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("expected denial with retry-after, got %+v", d)
	}
	now = now.Add(time.Minute)
	if d, _ := limiter.Allow(context.Background(), "k", policy); !d.Allowed {
		t.Fatal("expected request to pass after refill")
	}
}

func TestRedisFixedWindowLimiterSharesBudget(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisFixedWindowLimiter(client, "rl_test")
	policy := RateLimitPolicy{Limit: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "issue:203.0.113.7", policy)
		if err != nil || !d.Allowed {
			t.Fatalf("request %d: expected allow, got %+v err=%v", i, d, err)
		}
	}
	d, err := limiter.Allow(ctx, "issue:203.0.113.7", policy)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected third request in window to be denied")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, RateLimitPolicy) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func TestRateLimiterFailureModes(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	open := NewDistributedRateLimiter(failingLimiter{}, 5, time.Minute, FailOpen, "issue").Middleware()(next)
	rr := httptest.NewRecorder()
	open.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("fail open: expected 204, got %d", rr.Code)
	}

	closed := NewDistributedRateLimiter(failingLimiter{}, 5, time.Minute, FailClosed, "issue").Middleware()(next)
	rr = httptest.NewRecorder()
	closed.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("fail closed: expected 429, got %d", rr.Code)
	}
}
