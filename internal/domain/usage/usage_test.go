package usage

import (
	"testing"

	"github.com/kailas-cloud/dataforge/internal/domain"
	"github.com/kailas-cloud/dataforge/internal/domain/usage/metrics"
	"github.com/kailas-cloud/dataforge/internal/domain/usage/quota"
)

func TestNewReport(t *testing.T) {
	m := metrics.New(2, 40, 4096)
	r := NewReport("u1", m,
		quota.New(domain.CapacityDocuments, 100, 40),
		quota.New(domain.CapacityStorage, 1<<20, 4096))

	if r.User() != "u1" {
		t.Errorf("User() = %q", r.User())
	}
	if r.Metrics().Documents() != 40 {
		t.Errorf("Metrics().Documents() = %d", r.Metrics().Documents())
	}
	if r.Documents().Remaining() != 60 {
		t.Errorf("Documents().Remaining() = %d", r.Documents().Remaining())
	}
	if r.Storage().IsExhausted() {
		t.Error("Storage() should not be exhausted")
	}
}
