package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// Critical names the dependencies the storefront cannot take orders without.
	// Any other failing check only degrades the report. Defaults to firestore.
	Critical []string
}

type systemService struct {
	health   repositories.HealthRepository
	now      func() time.Time
	build    BuildInfo
	critical map[string]struct{}
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the readiness reporter.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	names := deps.Critical
	if len(names) == 0 {
		names = []string{"firestore"}
	}
	critical := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			critical[name] = struct{}{}
		}
	}

	svc := &systemService{
		health:   deps.HealthRepository,
		now:      func() time.Time { return clock().UTC() },
		build:    deps.Build,
		critical: critical,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (HealthReport, error) {
	if ctx == nil {
		return HealthReport{}, errors.New("system service: context is required")
	}
	report, err := s.health.Collect(ctx)
	if err != nil {
		return HealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if strings.TrimSpace(report.CommitSHA) == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.HealthCheck{}
	}
	report.Status = s.readiness(report.Checks)
	return report, nil
}

// readiness is error when a critical dependency is unhealthy and degraded when
// only optional ones are.
func (s *systemService) readiness(checks map[string]domain.HealthCheck) string {
	status := domain.HealthStatusOK
	for name, check := range checks {
		if check.Status == "" || check.Status == domain.HealthStatusOK {
			continue
		}
		if _, ok := s.critical[name]; ok {
			return domain.HealthStatusError
		}
		status = domain.HealthStatusDegraded
	}
	return status
}
