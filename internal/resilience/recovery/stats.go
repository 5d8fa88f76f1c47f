package recovery

import (
	"maps"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/metrics"
)

func newStats() domain.ErrorStatistics {
	return domain.ErrorStatistics{
		ByStrategy: make(map[domain.Strategy]int64),
		BySeverity: make(map[domain.Severity]int64),
	}
}

func (m *Manager) track(f *domain.RecoverableFailure, s domain.Strategy, recovered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Total++
	m.stats.ByStrategy[s]++
	m.stats.BySeverity[f.Severity]++

	outcome := "failed"
	if recovered {
		m.stats.Recovered++
		outcome = "recovered"
	} else {
		m.stats.Failed++
	}
	metrics.RecoveryAttempts.WithLabelValues(string(s), outcome).Inc()
}

// Statistics returns a snapshot of the rolling counters.
func (m *Manager) Statistics() domain.ErrorStatistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.stats
	out.ByStrategy = maps.Clone(m.stats.ByStrategy)
	out.BySeverity = maps.Clone(m.stats.BySeverity)
	return out
}

// ResetStatistics zeroes the counters.
func (m *Manager) ResetStatistics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = newStats()
}
