// Package notify delivers user notifications and escalations. The default
// implementations write to the structured log.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Notifier displays a notification to the user.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// LogNotifier writes notifications to slog at the matching level.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier. logger defaults to slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, note domain.Notification) {
	level := Level(note.Level)
	n.logger.Log(ctx, level, note.Message, "notification", note.Level, "errorId", note.ErrorID)
}

// Level maps a notification level onto slog.
func Level(l domain.NotificationLevel) slog.Level {
	switch l {
	case domain.NotifySilent:
		return slog.LevelDebug
	case domain.NotifyWarning:
		return slog.LevelWarn
	case domain.NotifyError, domain.NotifyCritical:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogEscalator is the escalation channel used when no external one is
// configured.
type LogEscalator struct {
	logger *slog.Logger
}

// NewLogEscalator creates an escalator. logger defaults to slog.Default().
func NewLogEscalator(logger *slog.Logger) *LogEscalator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEscalator{logger: logger}
}

func (e *LogEscalator) Escalate(ctx context.Context, f *domain.RecoverableFailure) error {
	e.logger.ErrorContext(ctx, "Failure escalated",
		"failure", f.ID,
		"kind", f.Kind(),
		"severity", f.Severity,
		"strategy", f.Strategy,
		"attempts", f.AttemptCount,
		"message", f.Message,
	)
	return nil
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n domain.Notification) {
	for _, target := range m {
		target.Notify(ctx, n)
	}
}

// Recorder keeps notifications in memory, for the CLI and tests.
type Recorder struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (r *Recorder) Notify(ctx context.Context, n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

// Sent returns a copy of every notification received.
func (r *Recorder) Sent() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.sent...)
}
