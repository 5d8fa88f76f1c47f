package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/faultline/internal/audit"
	"github.com/vietddude/faultline/internal/core/domain"
)

// BreakerSource lists circuit breaker snapshots.
type BreakerSource interface {
	States() []domain.CircuitState
}

// ChainVerifier verifies the audit chain.
type ChainVerifier interface {
	VerifyChainIntegrity(ctx context.Context) (audit.VerifyResult, error)
}

// QueueSource reports deferred operations waiting to run.
type QueueSource interface {
	Pending() int
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	breakers BreakerSource
	chain    ChainVerifier
	queue    QueueSource
	maxQueue int
	ttl      time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. Any source may be nil.
func NewMonitor(breakers BreakerSource, chain ChainVerifier, queue QueueSource) *Monitor {
	return &Monitor{
		breakers: breakers,
		chain:    chain,
		queue:    queue,
		maxQueue: 100,
		ttl:      10 * time.Second,
	}
}

// CheckHealth builds a report. Results are cached briefly because chain
// verification walks the whole log.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.ttl {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
		Circuits:     []domain.CircuitState{},
	}

	// 1. Circuit breakers: any open circuit degrades the system
	if m.breakers != nil {
		report.Circuits = m.breakers.States()
		c := ComponentHealth{Name: "circuits", Status: StatusHealthy}
		open := 0
		for _, s := range report.Circuits {
			if s.State != domain.CircuitClosed {
				open++
			}
		}
		if open > 0 {
			c.Status = StatusDegraded
			c.Detail = fmt.Sprintf("%d circuit(s) not closed", open)
		}
		report.Components[c.Name] = c
	}

	// 2. Audit chain: a broken chain is critical
	if m.chain != nil {
		c := ComponentHealth{Name: "audit", Status: StatusHealthy}
		res, err := m.chain.VerifyChainIntegrity(ctx)
		switch {
		case err != nil:
			c.Status = StatusDegraded
			c.Detail = err.Error()
		case !res.Valid:
			c.Status = StatusCritical
			c.Detail = fmt.Sprintf("%d broken link(s), %d invalid signature(s)",
				len(res.BrokenLinks), len(res.InvalidSignatures))
			report.AuditChain = &res
		default:
			report.AuditChain = &res
		}
		report.Components[c.Name] = c
	}

	// 3. Deferred queue backlog
	if m.queue != nil {
		report.QueueDepth = m.queue.Pending()
		c := ComponentHealth{Name: "queue", Status: StatusHealthy}
		if report.QueueDepth > m.maxQueue {
			c.Status = StatusDegraded
			c.Detail = fmt.Sprintf("%d operations pending", report.QueueDepth)
		}
		report.Components[c.Name] = c
	}

	for _, c := range report.Components {
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
