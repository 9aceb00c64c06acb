package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func TestCheck(t *testing.T) {
	down := errors.New("conn refused")
	tests := []struct {
		name    string
		db      error
		cache   error
		storage error
		want    Status
		checks  map[string]CheckResult
	}{
		{
			name: "all healthy",
			want: Healthy,
			checks: map[string]CheckResult{
				"database": CheckOK, "cache": CheckOK, "storage": CheckOK,
			},
		},
		{
			name:  "cache down",
			cache: down,
			want:  Degraded,
			checks: map[string]CheckResult{
				"database": CheckOK, "cache": CheckError, "storage": CheckOK,
			},
		},
		{
			name:    "database down",
			db:      down,
			storage: down,
			want:    Unhealthy,
			checks: map[string]CheckResult{
				"database": CheckError, "cache": CheckOK, "storage": CheckError,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(&mockPinger{err: tt.db}).
				WithDependency("cache", &mockPinger{err: tt.cache}).
				WithDependency("storage", &mockPinger{err: tt.storage})
			r := svc.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("status = %q, want %q", r.Status, tt.want)
			}
			for name, want := range tt.checks {
				if r.Checks[name] != want {
					t.Errorf("%s = %q, want %q", name, r.Checks[name], want)
				}
			}
		})
	}
}

func TestCheck_DatabaseOnly(t *testing.T) {
	r := New(&mockPinger{}).WithDependency("cache", nil).Check(context.Background())
	if r.Status != Healthy || len(r.Checks) != 1 {
		t.Errorf("report = %+v", r)
	}
}
