package audit

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Criteria filters entries. Zero fields match everything.
type Criteria struct {
	Since      time.Time
	Until      time.Time
	Actions    []string
	Categories []domain.AuditCategory
	ActorID    string
	SessionID  string
	Result     string
	// Text is a case-insensitive substring of the action or the details.
	Text   string
	Limit  int
	Offset int
	// IncludeCold also searches rotated blocks.
	IncludeCold bool
}

// Match reports whether e satisfies every set criterion.
func (c Criteria) Match(e domain.AuditEntry) bool {
	if !c.Since.IsZero() && e.Timestamp.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && e.Timestamp.After(c.Until) {
		return false
	}
	if len(c.Actions) > 0 && !slices.Contains(c.Actions, e.Action) {
		return false
	}
	if len(c.Categories) > 0 && !slices.Contains(c.Categories, e.Category) {
		return false
	}
	if c.ActorID != "" && e.ActorID != c.ActorID {
		return false
	}
	if c.SessionID != "" && e.SessionID != c.SessionID {
		return false
	}
	if c.Result != "" && e.Result != c.Result {
		return false
	}
	if c.Text != "" {
		needle := folder.String(c.Text)
		details, _ := json.Marshal(e.Details)
		if !strings.Contains(folder.String(e.Action), needle) &&
			!strings.Contains(folder.String(string(details)), needle) {
			return false
		}
	}
	return true
}

// Query returns matching entries in chain order.
func (l *Logger) Query(ctx context.Context, c Criteria) ([]domain.AuditEntry, error) {
	var source []domain.AuditEntry
	if c.IncludeCold {
		l.flushMu.Lock()
		cold, err := l.loadCold(ctx)
		l.flushMu.Unlock()
		if err != nil {
			return nil, err
		}
		source = cold
	}
	source = append(source, l.Entries()...)

	out := []domain.AuditEntry{}
	skipped := 0
	for _, e := range source {
		if !c.Match(e) {
			continue
		}
		if skipped < c.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if c.Limit > 0 && len(out) >= c.Limit {
			break
		}
	}
	return out, nil
}

// Export serialises the entries matching c.
func (l *Logger) Export(ctx context.Context, format Format, c Criteria) ([]byte, error) {
	entries, err := l.Query(ctx, c)
	if err != nil {
		return nil, err
	}
	return Encode(format, entries)
}
