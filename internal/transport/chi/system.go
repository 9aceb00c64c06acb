package chi

import (
	"net/http"

	healthuc "github.com/kailas-cloud/dataforge/internal/usecase/health"
	"github.com/kailas-cloud/dataforge/internal/version"
)

type quotaResponse struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// getUsage handles GET /usage.
func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	report, err := s.svc.Usage.GetReport(r.Context(), user.ID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	docs, storage := report.Documents(), report.Storage()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"user":      report.User(),
			"models":    report.Metrics().Models(),
			"documents": quotaResponse{Used: docs.Used(), Limit: docs.Limit(), Remaining: docs.Remaining()},
			"storage":   quotaResponse{Used: storage.Used(), Limit: storage.Limit(), Remaining: storage.Remaining()},
		},
	})
}

// getHealth handles GET /health.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health.Check(r.Context())
	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
		"build":  version.String(),
	})
}
