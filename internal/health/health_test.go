package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/errhandler"
)

// =============================================================================
// Stubs
// =============================================================================

type stubBreakers struct {
	states []domain.CircuitState
}

func (s *stubBreakers) States() []domain.CircuitState { return s.states }

type stubChain struct {
	res audit.VerifyResult
	err error
}

func (s *stubChain) VerifyChainIntegrity(ctx context.Context) (audit.VerifyResult, error) {
	return s.res, s.err
}

type stubQueue struct{ n int }

func (s *stubQueue) Pending() int { return s.n }

type stubStats struct{}

func (stubStats) Statistics() errhandler.Stats { return errhandler.Stats{Total: 3} }

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	m := NewMonitor(
		&stubBreakers{states: []domain.CircuitState{{Name: "retry", State: domain.CircuitClosed}}},
		&stubChain{res: audit.VerifyResult{Valid: true}},
		&stubQueue{},
	)
	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if len(report.Components) != 3 {
		t.Errorf("expected 3 components, got %d", len(report.Components))
	}
}

func TestMonitor_OpenCircuitDegrades(t *testing.T) {
	m := NewMonitor(
		&stubBreakers{states: []domain.CircuitState{{Name: "stats-api", State: domain.CircuitOpen}}},
		nil,
		nil,
	)
	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
}

func TestMonitor_BrokenChainIsCritical(t *testing.T) {
	m := NewMonitor(
		&stubBreakers{states: []domain.CircuitState{{Name: "retry", State: domain.CircuitOpen}}},
		&stubChain{res: audit.VerifyResult{Valid: false, InvalidSignatures: []string{"e1"}}},
		&stubQueue{n: 500},
	)
	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("expected critical, got %s", report.SystemStatus)
	}
	if report.Components["queue"].Status != StatusDegraded {
		t.Errorf("expected degraded queue, got %s", report.Components["queue"].Status)
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	chain := &stubChain{res: audit.VerifyResult{Valid: true}}
	m := NewMonitor(nil, chain, nil)
	m.CheckHealth(context.Background())

	chain.res = audit.VerifyResult{Valid: false}
	if got := m.CheckHealth(context.Background()).SystemStatus; got != StatusHealthy {
		t.Errorf("expected cached healthy report, got %s", got)
	}
}

func TestServer_Endpoints(t *testing.T) {
	chain := &stubChain{res: audit.VerifyResult{Valid: false, BrokenLinks: []audit.BrokenLink{{EntryID: "e2"}}}}
	m := NewMonitor(nil, chain, nil)
	srv := NewServer(m, chain, stubStats{}, 0)

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusServiceUnavailable},
		{"/health/detailed", http.StatusOK},
		{"/audit/verify", http.StatusConflict},
		{"/stats", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.status)
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats errhandler.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil || stats.Total != 3 {
		t.Errorf("unexpected stats body: %v %+v", err, stats)
	}
}

func TestServer_VerifyError(t *testing.T) {
	chain := &stubChain{err: errors.New("store offline")}
	srv := NewServer(NewMonitor(nil, chain, nil), chain, nil, 0)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/verify", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
