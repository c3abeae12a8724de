package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestDependencyHealthRepositoryAggregatesStatus(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		checks []DependencyCheck
		want   string
	}{
		{
			name: "all ok",
			checks: []DependencyCheck{
				{Name: "firestore", Check: func(context.Context) error { return nil }},
				{Name: "pubsub", Check: func(context.Context) error { return nil }},
			},
			want: domain.HealthStatusOK,
		},
		{
			name: "one degraded",
			checks: []DependencyCheck{
				{Name: "firestore", Check: func(context.Context) error { return errors.New("boom") }},
				{Name: "pubsub", Check: func(context.Context) error { return nil }},
			},
			want: domain.HealthStatusDegraded,
		},
		{
			name: "timeout wins",
			checks: []DependencyCheck{
				{Name: "firestore", Check: func(context.Context) error { return errors.New("boom") }},
				{Name: "stripe", Timeout: 5 * time.Millisecond, Check: func(ctx context.Context) error {
					<-ctx.Done()
					return ctx.Err()
				}},
			},
			want: domain.HealthStatusError,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks, func() time.Time { return now })
			if err != nil {
				t.Fatalf("NewDependencyHealthRepository: %v", err)
			}
			report, err := repo.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %s, got %s (%+v)", tc.want, report.Status, report.Checks)
			}
			if len(report.Checks) != len(tc.checks) || !report.GeneratedAt.Equal(now) {
				t.Fatalf("unexpected report %+v", report)
			}
		})
	}
}

func TestNewDependencyHealthRepositoryValidates(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil, nil); err == nil {
		t.Fatalf("expected error for empty checks")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "x"}}, nil); err == nil {
		t.Fatalf("expected error for missing check function")
	}
}
