package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

type stubSystemService struct {
	report services.HealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.HealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

type probeBody struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	CommitSHA   string `json:"commitSha"`
	Environment string `json:"environment"`
	Uptime      string `json:"uptime"`
	Checks      map[string]struct {
		Status    string `json:"status"`
		LatencyMS int64  `json:"latencyMs"`
	} `json:"checks"`
	Details []string `json:"details"`
}

func probe(t *testing.T, handler http.HandlerFunc, path string) (int, probeBody) {
	t.Helper()
	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, path, nil))
	var body probeBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestHealthzReportsBuild(t *testing.T) {
	launched := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "2025.10.1", CommitSHA: "f00dcafe", Environment: "staging", StartedAt: launched}),
		WithHealthClock(func() time.Time { return launched.Add(45 * time.Second) }),
	)

	code, body := probe(t, h.Healthz, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.HealthStatusOK, body.Status)
	assert.Equal(t, "2025.10.1", body.Version)
	assert.Equal(t, "f00dcafe", body.CommitSHA)
	assert.Equal(t, "staging", body.Environment)
	assert.Equal(t, "45s", body.Uptime)
}

func TestReadyzWithoutSystemServiceFallsBackToLiveness(t *testing.T) {
	code, body := probe(t, NewHealthHandlers().Readyz, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.HealthStatusOK, body.Status)
}

func TestReadyzStatusCodes(t *testing.T) {
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		name        string
		svc         *stubSystemService
		wantCode    int
		wantStatus  string
		wantDetails []string
	}{
		{
			name: "ready",
			svc: &stubSystemService{report: services.HealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.HealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Detail: "ok", Latency: 12 * time.Millisecond, CheckedAt: now},
				},
			}},
			wantCode:   http.StatusOK,
			wantStatus: domain.HealthStatusOK,
		},
		{
			name: "notifications degraded keeps serving",
			svc: &stubSystemService{report: services.HealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.HealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
					"pubsub":    {Status: domain.HealthStatusDegraded, Detail: "topic order-events does not exist"},
				},
			}},
			wantCode:    http.StatusOK,
			wantStatus:  domain.HealthStatusDegraded,
			wantDetails: []string{"pubsub: topic order-events does not exist"},
		},
		{
			name: "database unreachable",
			svc: &stubSystemService{report: services.HealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.HealthCheck{
					"firestore": {Status: domain.HealthStatusError, Detail: "timeout"},
				},
			}},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  domain.HealthStatusError,
			wantDetails: []string{"firestore: timeout"},
		},
		{
			name:        "collector failure",
			svc:         &stubSystemService{err: errors.New("collector offline")},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  domain.HealthStatusError,
			wantDetails: []string{"collector offline"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandlers(WithHealthSystemService(tc.svc), WithHealthClock(func() time.Time { return now }))
			code, body := probe(t, h.Readyz, "/readyz")
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantStatus, body.Status)
			assert.Equal(t, tc.wantDetails, body.Details)
		})
	}

	h := NewHealthHandlers(WithHealthSystemService(cases[0].svc))
	_, body := probe(t, h.Readyz, "/readyz")
	assert.Equal(t, int64(12), body.Checks["firestore"].LatencyMS)
}
