package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
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
	Status    Status
	Documents int
	Checks    map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	corpus  CorpusCounter
	cache   CachePinger
	encoder EncoderChecker
}

// New creates a Service. cache and encoder can be nil.
func New(corpus CorpusCounter, cache CachePinger, encoder EncoderChecker) *Service {
	return &Service{corpus: corpus, cache: cache, encoder: encoder}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
		} else {
			checks["cache"] = CheckOK
		}
	}

	if s.encoder != nil {
		if err := s.encoder.HealthCheck(ctx); err != nil {
			checks["encoder"] = CheckError
		} else {
			checks["encoder"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	report := Report{Status: status, Checks: checks}
	if s.corpus != nil {
		report.Documents = s.corpus.Count(ctx)
	}
	return report
}
