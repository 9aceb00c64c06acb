package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dataforge/internal/domain"
)

type mockStore struct {
	counts  map[string]int64
	expires int
	incrErr error
}

func (m *mockStore) IncrBy(_ context.Context, key string, val int64) (int64, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.counts[key] += val
	return m.counts[key], nil
}

func (m *mockStore) Expire(context.Context, string, time.Duration, bool) error {
	m.expires++
	return nil
}

func newTestLimiter(limit int64, at time.Time) (*Limiter, *mockStore) {
	ms := &mockStore{counts: map[string]int64{}}
	l := New(ms, limit, time.Minute, zap.NewNop())
	l.now = func() time.Time { return at }
	return l, ms
}

func TestAllow_WithinLimit(t *testing.T) {
	at := time.Date(2026, 1, 1, 10, 0, 15, 0, time.UTC)
	l, ms := newTestLimiter(2, at)
	ctx := context.Background()

	for i := range 2 {
		if _, err := l.Allow(ctx, "u1"); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
	if ms.expires != 1 {
		t.Errorf("expiry set %d times, want once per window", ms.expires)
	}

	retry, err := l.Allow(ctx, "u1")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if retry != 45*time.Second {
		t.Errorf("retry = %v, want 45s", retry)
	}
}

func TestAllow_PerUser(t *testing.T) {
	l, _ := newTestLimiter(1, time.Now())
	ctx := context.Background()
	if _, err := l.Allow(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Allow(ctx, "u2"); err != nil {
		t.Errorf("users must not share a window: %v", err)
	}
}

func TestAllow_NewWindowResets(t *testing.T) {
	at := time.Date(2026, 1, 1, 10, 0, 59, 0, time.UTC)
	l, _ := newTestLimiter(1, at)
	ctx := context.Background()
	_, _ = l.Allow(ctx, "u1")

	l.now = func() time.Time { return at.Add(2 * time.Second) }
	if _, err := l.Allow(ctx, "u1"); err != nil {
		t.Errorf("next window must start fresh: %v", err)
	}
}

func TestAllow_FailsOpen(t *testing.T) {
	l, ms := newTestLimiter(1, time.Now())
	ms.incrErr = errors.New("connection refused")
	for range 3 {
		if _, err := l.Allow(context.Background(), "u1"); err != nil {
			t.Fatalf("store errors must fail open: %v", err)
		}
	}
}

func TestAllow_Unlimited(t *testing.T) {
	l, ms := newTestLimiter(0, time.Now())
	if _, err := l.Allow(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if len(ms.counts) != 0 {
		t.Error("a zero limit must not touch the store")
	}
}
