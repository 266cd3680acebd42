package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/orderforge/engine/internal/domain"
	"github.com/orderforge/engine/internal/repositories"
)

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the system utility service providing health reports.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *systemService) Health(ctx context.Context) (SystemHealth, error) {
	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealth{}, err
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.clock()
	}
	if len(report.Checks) == 0 {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if report.Status == "" {
		report.Status = domain.HealthStatusOK
		for _, check := range report.Checks {
			if check.Status == domain.HealthStatusError {
				report.Status = domain.HealthStatusError
				break
			}
			if check.Status == domain.HealthStatusDegraded {
				report.Status = domain.HealthStatusDegraded
			}
		}
	}
	return report, nil
}
