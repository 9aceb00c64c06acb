package usage

import (
	"github.com/kailas-cloud/dataforge/internal/domain/usage/metrics"
	"github.com/kailas-cloud/dataforge/internal/domain/usage/quota"
)

// Report is a user's data footprint against the configured limits.
type Report struct {
	user      string
	metrics   metrics.Metrics
	documents quota.Quota
	storage   quota.Quota
}

// NewReport creates a usage report.
func NewReport(user string, m metrics.Metrics, documents, storage quota.Quota) Report {
	return Report{user: user, metrics: m, documents: documents, storage: storage}
}

// User returns the user the report belongs to.
func (r *Report) User() string { return r.user }

// Metrics returns the raw footprint.
func (r *Report) Metrics() metrics.Metrics { return r.metrics }

// Documents returns the document-count quota.
func (r *Report) Documents() quota.Quota { return r.documents }

// Storage returns the storage-bytes quota.
func (r *Report) Storage() quota.Quota { return r.storage }
