package errhandler

import (
	"maps"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Stats merges handler counters with recovery statistics.
type Stats struct {
	Total       int64                     `json:"total"`
	Handled     int64                     `json:"handled"`
	Unhandled   int64                     `json:"unhandled"`
	RateLimited int64                     `json:"rateLimited"`
	Critical    int64                     `json:"critical"`
	ByCategory  map[domain.Category]int64 `json:"byCategory"`
	Recovery    domain.ErrorStatistics    `json:"recovery"`
}

func newStats() Stats {
	return Stats{ByCategory: make(map[domain.Category]int64)}
}

func (h *Handler) track(out Outcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Total++
	h.stats.ByCategory[out.Category]++
	switch {
	case out.RateLimited:
		h.stats.RateLimited++
	case out.Handled:
		h.stats.Handled++
	default:
		h.stats.Unhandled++
	}
	if out.Severity == domain.SeverityCritical && !out.RateLimited {
		h.stats.Critical++
	}
}

// Statistics returns a snapshot of all counters.
func (h *Handler) Statistics() Stats {
	h.mu.RLock()
	out := h.stats
	out.ByCategory = maps.Clone(h.stats.ByCategory)
	h.mu.RUnlock()

	if h.recovery != nil {
		out.Recovery = h.recovery.Statistics()
	}
	return out
}

// ResetStatistics zeroes the handler counters and re-arms the critical
// escalation notice.
func (h *Handler) ResetStatistics() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = newStats()
	h.escalated = false
}
