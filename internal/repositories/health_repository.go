package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
)

const defaultDependencyTimeout = 1500 * time.Millisecond

// DependencyCheck describes a dependency probe executed during readiness checks.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// DependencyHealthOption customises the behaviour of the dependency-backed health repository.
type DependencyHealthOption func(*dependencyHealthRepository)

// WithDependencyTimeout overrides the default timeout applied when a check omits its own timeout.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

// WithDependencyClock injects a custom clock primarily for tests.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(repo *dependencyHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type dependencyHealthRepository struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*dependencyHealthRepository)(nil)

// NewDependencyHealthRepository constructs a HealthRepository that evaluates the provided check set.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, check := range checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("health repository: dependency check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", check.Name)
		}
	}

	repo := &dependencyHealthRepository{
		checks:         append([]DependencyCheck(nil), checks...),
		defaultTimeout: defaultDependencyTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *dependencyHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("health repository: context is required")
	}

	results := make(map[string]domain.SystemHealthCheck, len(r.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	wg.Add(len(r.checks))
	for _, check := range r.checks {
		check := check
		go func() {
			defer wg.Done()
			result := r.runCheck(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	return domain.SystemHealthReport{
		Status:      overallStatus(results),
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}

func (r *dependencyHealthRepository) runCheck(ctx context.Context, check DependencyCheck) domain.SystemHealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	checkCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		checkCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		checkCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := r.now()
	err := check.Check(checkCtx)
	end := r.now()

	status := domain.HealthStatusOK
	detail := "ok"
	errorString := ""

	switch {
	case err == nil && checkCtx.Err() != nil:
		// Timed out without the probe surfacing the error itself.
		status = domain.HealthStatusError
		detail = checkCtx.Err().Error()
		errorString = detail
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = domain.HealthStatusError
		detail = "cancelled"
		errorString = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status = domain.HealthStatusError
		detail = "timeout"
		errorString = err.Error()
	default:
		status = domain.HealthStatusDegraded
		detail = err.Error()
		errorString = err.Error()
	}

	return domain.SystemHealthCheck{
		Status:    status,
		Detail:    detail,
		Error:     errorString,
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
}

func overallStatus(results map[string]domain.SystemHealthCheck) domain.HealthStatus {
	status := domain.HealthStatusOK
	for _, result := range results {
		switch result.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusOK:
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
