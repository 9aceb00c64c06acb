package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional dependency is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the document store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type dependency struct {
	name   string
	pinger Pinger
}

// Service coordinates health checks.
type Service struct {
	db       Pinger
	optional []dependency
}

// New creates a Service for the document store.
func New(db Pinger) *Service {
	return &Service{db: db}
}

// WithDependency adds an optional dependency such as the cache or object storage.
// Nil pingers are ignored so unconfigured backends can be passed as is.
func (s *Service) WithDependency(name string, p Pinger) *Service {
	if p != nil {
		s.optional = append(s.optional, dependency{name: name, pinger: p})
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 1+len(s.optional))
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	for _, d := range s.optional {
		if err := d.pinger.Ping(ctx); err != nil {
			checks[d.name] = CheckError
			if status == Healthy {
				status = Degraded
			}
			continue
		}
		checks[d.name] = CheckOK
	}

	return Report{Status: status, Checks: checks}
}
