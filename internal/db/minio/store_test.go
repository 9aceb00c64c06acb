package minio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recorder struct {
	mu   sync.Mutex
	reqs []string
}

func (r *recorder) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.reqs = append(r.reqs, req.Method+" "+req.URL.Path)
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func testStore(t *testing.T, h http.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s, err := newStore(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "files",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	return s
}

func TestNewStore_Validation(t *testing.T) {
	if _, err := newStore(Config{Bucket: "files"}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := newStore(Config{Endpoint: "localhost:9000"}); err == nil {
		t.Error("expected error for missing bucket")
	}
}

func TestRemove(t *testing.T) {
	rec := &recorder{}
	s := testStore(t, rec.handler(http.StatusNoContent))

	if err := s.Remove(context.Background(), "u1/avatar.png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.reqs) != 1 || rec.reqs[0] != "DELETE /files/u1/avatar.png" {
		t.Errorf("requests = %v", rec.reqs)
	}
}

func TestRemove_ServerError(t *testing.T) {
	rec := &recorder{}
	s := testStore(t, rec.handler(http.StatusForbidden))

	if err := s.Remove(context.Background(), "k"); err == nil {
		t.Fatal("expected error")
	}
}
