package modelcache

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/dataforge/internal/domain"
)

func TestGet_CachesHits(t *testing.T) {
	c, inner, total := newTestCache(t)
	inner.models["Person"] = person(t, "v1")
	ctx := context.Background()

	for range 3 {
		if _, err := c.Get(ctx, "u1", "Person"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if inner.getCalls != 1 {
		t.Errorf("inner Get calls = %d, want 1", inner.getCalls)
	}
	if got := testutil.ToFloat64(total.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
}

func TestGet_ErrorNotCached(t *testing.T) {
	c, inner, _ := newTestCache(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, "u1", "Person"); !errors.Is(err, domain.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	inner.models["Person"] = person(t, "v1")
	if _, err := c.Get(ctx, "u1", "Person"); err != nil {
		t.Fatalf("error must not be cached: %v", err)
	}
}

func TestUpdate_InvalidatesSynchronously(t *testing.T) {
	c, inner, _ := newTestCache(t)
	inner.models["Person"] = person(t, "v1")
	ctx := context.Background()

	if _, err := c.Get(ctx, "u1", "Person"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Update(ctx, person(t, "v2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := c.Get(ctx, "u1", "Person")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Description() != "v2" {
		t.Errorf("Description() = %q, want v2 after update", got.Description())
	}
}

func TestDelete_InvalidatesList(t *testing.T) {
	c, inner, _ := newTestCache(t)
	inner.models["Person"] = person(t, "v1")
	ctx := context.Background()

	ms, _ := c.List(ctx, "u1")
	if len(ms) != 1 {
		t.Fatalf("List() = %d models", len(ms))
	}
	if _, err := c.List(ctx, "u1"); err != nil || inner.lsCalls != 1 {
		t.Fatalf("second List must hit the cache (calls=%d)", inner.lsCalls)
	}
	if err := c.Delete(ctx, "u1", "Person"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ms, _ = c.List(ctx, "u1")
	if len(ms) != 0 {
		t.Errorf("List() after delete = %d models", len(ms))
	}
	if _, err := c.Get(ctx, "u1", "Person"); !errors.Is(err, domain.ErrModelNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
}

func TestList_WarmsModelEntries(t *testing.T) {
	c, inner, _ := newTestCache(t)
	inner.models["Person"] = person(t, "v1")
	ctx := context.Background()

	if _, err := c.List(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Get(ctx, "u1", "Person"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.getCalls != 0 {
		t.Errorf("Get after List should be served from cache, inner calls = %d", inner.getCalls)
	}
}
