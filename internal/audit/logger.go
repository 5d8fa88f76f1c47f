// Package audit keeps a tamper-evident, hash-chained log of consequential
// events and persists it to a KV store.
//
// This package contains:
//   - Logger: append, flush, rotation to cold storage, retention cleanup
//   - Chain: signature computation and integrity verification
//   - Export/Import: json, csv and xml encodings of the entry schema
//   - Redaction of sensitive detail fields
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/core/session"
	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/metrics"
)

// ErrEmptyAction is returned when an event has no action.
var ErrEmptyAction = errors.New("audit event has no action")

// Config holds audit settings.
type Config struct {
	FlushInterval  time.Duration `yaml:"flush_interval"`
	MaxEntries     int           `yaml:"max_entries"`
	RotateBlock    int           `yaml:"rotate_block"`
	Retention      time.Duration `yaml:"retention"`
	MaxArrayLength int           `yaml:"max_array_length"`
}

// DefaultConfig keeps seven years of history.
var DefaultConfig = Config{
	FlushInterval:  30 * time.Second,
	MaxEntries:     10000,
	RotateBlock:    1000,
	Retention:      7 * 365 * 24 * time.Hour,
	MaxArrayLength: 100,
}

// Event is the caller-supplied part of an entry.
type Event struct {
	Action   string
	Category domain.AuditCategory
	Details  map[string]any
	Result   string
	Duration time.Duration
	// ActorID overrides the session actor.
	ActorID string
}

// Logger appends entries to an in-memory chain and flushes it to storage.
type Logger struct {
	cfg     Config
	store   storage.KV
	session session.Provider

	mu      sync.Mutex
	now     func() time.Time
	entries []domain.AuditEntry
	lastID  string
	anchor  Anchor

	// flushMu serialises every operation that rewrites persisted state.
	flushMu    sync.Mutex
	coldSeq    int
	archiveSeq int

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLogger creates a logger. Call Load to continue a persisted chain.
func NewLogger(cfg Config, store storage.KV, sp session.Provider) *Logger {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig.FlushInterval
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig.MaxEntries
	}
	if cfg.RotateBlock <= 0 || cfg.RotateBlock > cfg.MaxEntries {
		cfg.RotateBlock = min(DefaultConfig.RotateBlock, cfg.MaxEntries)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig.Retention
	}
	if cfg.MaxArrayLength <= 0 {
		cfg.MaxArrayLength = DefaultConfig.MaxArrayLength
	}
	if sp == nil {
		sp = session.NewStatic("")
	}
	return &Logger{
		cfg:     cfg,
		store:   store,
		session: sp,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (l *Logger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Logger) clock() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now()
}

// Log appends a signed entry linked to the previous one. Entries at error
// level or above, and entries that overflow the hot buffer, are flushed
// before Log returns. A failed flush is logged and retried on the next one.
func (l *Logger) Log(ctx context.Context, ev Event, level domain.AuditLevel) (domain.AuditEntry, error) {
	if ev.Action == "" {
		return domain.AuditEntry{}, ErrEmptyAction
	}
	if ev.Category == "" {
		ev.Category = domain.AuditSystem
	}
	details := Redact(ev.Details, l.cfg.MaxArrayLength)
	if details == nil {
		details = map[string]any{}
	}
	actor := ev.ActorID
	if actor == "" {
		actor = l.session.ActorID()
	}

	l.mu.Lock()
	entry := domain.AuditEntry{
		ID:              uuid.NewString(),
		Timestamp:       l.now().UTC(),
		Action:          ev.Action,
		ActorID:         actor,
		SessionID:       l.session.SessionID(),
		Category:        ev.Category,
		Details:         details,
		Result:          ev.Result,
		PreviousEntryID: l.lastID,
	}
	if ev.Duration > 0 {
		ms := float64(ev.Duration) / float64(time.Millisecond)
		entry.DurationMs = &ms
	}
	entry.Signature = Sign(entry)
	l.entries = append(l.entries, entry)
	l.lastID = entry.ID
	overflow := len(l.entries) > l.cfg.MaxEntries
	l.mu.Unlock()

	metrics.AuditEntries.WithLabelValues(string(entry.Category)).Inc()
	slog.Debug("Audit entry appended",
		"id", entry.ID,
		"action", entry.Action,
		"category", entry.Category,
		"level", level,
	)

	if level.Urgent() || overflow {
		if err := l.Flush(ctx); err != nil {
			slog.Warn("Audit flush failed", "entry", entry.ID, "error", err)
		}
	}
	return cloneEntry(entry), nil
}

// Entries returns a deep copy of the hot buffer.
func (l *Logger) Entries() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.AuditEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Anchor returns the current chain anchor.
func (l *Logger) Anchor() Anchor {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.anchor
}

// Start launches the periodic flusher. Calling Start twice is a no-op.
func (l *Logger) Start(ctx context.Context) {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(l.cfg.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Flush(ctx); err != nil && ctx.Err() == nil {
					slog.Warn("Periodic audit flush failed", "error", err)
				}
			}
		}
	}(l.done)

	slog.Info("Audit flusher started", "interval", l.cfg.FlushInterval)
}

// Stop halts the flusher. It does not flush; call Flush afterwards.
func (l *Logger) Stop() {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if !l.running {
		return
	}
	l.cancel()
	<-l.done
	l.running = false
}

// cloneEntry detaches e from the buffer so callers cannot rewrite signed
// content.
func cloneEntry(e domain.AuditEntry) domain.AuditEntry {
	if e.Details != nil {
		e.Details = cloneValue(e.Details).(map[string]any)
	}
	if e.DurationMs != nil {
		ms := *e.DurationMs
		e.DurationMs = &ms
	}
	return e
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}
