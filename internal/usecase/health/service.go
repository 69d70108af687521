package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a provider is down and requests run on fallbacks.
	Degraded Status = "degraded"
	// Unhealthy indicates the database is down: exclusion cannot be enforced.
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

const defaultCheckTimeout = 3 * time.Second

// Component is a named provider check.
type Component struct {
	Name    string
	Checker Checker
}

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db         DBPinger
	components []Component
	timeout    time.Duration
}

// New creates a Service. Components with a nil Checker are skipped.
func New(db DBPinger, components ...Component) *Service {
	kept := make([]Component, 0, len(components))
	for _, c := range components {
		if c.Checker != nil {
			kept = append(kept, c)
		}
	}
	return &Service{db: db, components: kept, timeout: defaultCheckTimeout}
}

// Check runs all checks concurrently, each under its own timeout.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.components)+1)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	run := func(name string, fn func(context.Context) error) {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res := CheckOK
		if err := fn(cctx); err != nil {
			res = CheckError
		}
		mu.Lock()
		checks[name] = res
		mu.Unlock()
	}

	wg.Add(1 + len(s.components))
	go run("database", s.db.Ping)
	for _, c := range s.components {
		go run(c.Name, c.Checker.HealthCheck)
	}
	wg.Wait()

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks["database"] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
