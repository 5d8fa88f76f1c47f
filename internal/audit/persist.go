package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/metrics"
)

const (
	keyEntries    = "audit:entries"
	keyAnchor     = "audit:anchor"
	prefixCold    = "audit:cold:"
	prefixArchive = "audit:archive:"
)

// ErrAlreadyLogging is returned by Load once entries have been appended.
var ErrAlreadyLogging = errors.New("audit chain already has entries")

// archiveRecord holds entries removed by retention cleanup together with the
// anchor they link to, so the archived sub-chain stays verifiable.
type archiveRecord struct {
	Anchor  Anchor              `json:"anchor"`
	Entries []domain.AuditEntry `json:"entries"`
}

func seqKey(prefix string, seq int) string {
	return fmt.Sprintf("%s%010d", prefix, seq)
}

func nextSeq(keys []string, prefix string) int {
	next := 0
	for _, k := range keys {
		n, err := strconv.Atoi(strings.TrimPrefix(k, prefix))
		if err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}

// Flush writes the hot buffer and anchor, rotating overflow to cold storage
// first. While the store reports it is full, the oldest entries are pruned
// and the write retried.
func (l *Logger) Flush(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.AuditFlushLatency.Observe(time.Since(start).Seconds())
	}()

	err := l.persist(ctx)
	for errors.Is(err, storage.ErrCapacityExceeded) {
		pruned, perr := l.pruneForCapacity(ctx)
		if perr != nil {
			return fmt.Errorf("prune after %w: %v", err, perr)
		}
		if pruned == 0 {
			return err
		}
		slog.Warn("Audit storage full, pruned oldest entries", "pruned", pruned)
		err = l.persist(ctx)
	}
	return err
}

func (l *Logger) persist(ctx context.Context) error {
	if err := l.rotate(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	hot := append([]domain.AuditEntry(nil), l.entries...)
	anchor := l.anchor
	l.mu.Unlock()

	data, err := json.Marshal(hot)
	if err != nil {
		return fmt.Errorf("encode audit entries: %w", err)
	}
	if err := l.store.Set(ctx, keyEntries, data); err != nil {
		return fmt.Errorf("write audit entries: %w", err)
	}

	data, err = json.Marshal(anchor)
	if err != nil {
		return fmt.Errorf("encode audit anchor: %w", err)
	}
	if err := l.store.Set(ctx, keyAnchor, data); err != nil {
		return fmt.Errorf("write audit anchor: %w", err)
	}
	return nil
}

// rotate moves the oldest RotateBlock entries to cold storage while the hot
// buffer exceeds MaxEntries.
func (l *Logger) rotate(ctx context.Context) error {
	for {
		l.mu.Lock()
		if len(l.entries) <= l.cfg.MaxEntries {
			l.mu.Unlock()
			return nil
		}
		block := append([]domain.AuditEntry(nil), l.entries[:l.cfg.RotateBlock]...)
		l.mu.Unlock()

		data, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("encode cold block: %w", err)
		}
		key := seqKey(prefixCold, l.coldSeq)
		if err := l.store.Set(ctx, key, data); err != nil {
			return fmt.Errorf("write cold block %s: %w", key, err)
		}
		l.coldSeq++

		l.mu.Lock()
		l.entries = append([]domain.AuditEntry(nil), l.entries[len(block):]...)
		l.mu.Unlock()

		slog.Info("Rotated audit block to cold storage", "key", key, "entries", len(block))
	}
}

// pruneForCapacity drops the oldest cold block, or the oldest quarter of the
// hot buffer when nothing is cold, and re-anchors the chain.
func (l *Logger) pruneForCapacity(ctx context.Context) (int, error) {
	keys, err := l.store.Keys(ctx, prefixCold)
	if err != nil {
		return 0, err
	}
	if len(keys) > 0 {
		block, err := l.readBlock(ctx, keys[0])
		if err != nil {
			return 0, err
		}
		if err := l.store.Delete(ctx, keys[0]); err != nil {
			return 0, err
		}
		l.mu.Lock()
		l.advanceAnchor(block, time.Time{})
		l.mu.Unlock()
		return len(block), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries) / 4
	if n == 0 {
		n = len(l.entries)
	}
	if n == 0 {
		return 0, nil
	}
	l.advanceAnchor(l.entries[:n], time.Time{})
	l.entries = append([]domain.AuditEntry(nil), l.entries[n:]...)
	return n, nil
}

// advanceAnchor must be called with l.mu held.
func (l *Logger) advanceAnchor(removed []domain.AuditEntry, cutoff time.Time) {
	if len(removed) == 0 {
		return
	}
	l.anchor.PreviousEntryID = removed[len(removed)-1].ID
	l.anchor.Count += len(removed)
	if !cutoff.IsZero() {
		l.anchor.Cutoff = cutoff
	}
}

func (l *Logger) readBlock(ctx context.Context, key string) ([]domain.AuditEntry, error) {
	data, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var block []domain.AuditEntry
	if err := decodeJSON(data, &block); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return block, nil
}

// loadCold returns every cold entry in chain order. Caller holds flushMu.
func (l *Logger) loadCold(ctx context.Context) ([]domain.AuditEntry, error) {
	if l.store == nil {
		return nil, nil
	}
	keys, err := l.store.Keys(ctx, prefixCold)
	if err != nil {
		return nil, fmt.Errorf("list cold blocks: %w", err)
	}
	var all []domain.AuditEntry
	for _, key := range keys {
		block, err := l.readBlock(ctx, key)
		if err != nil {
			return nil, err
		}
		all = append(all, block...)
	}
	return all, nil
}

// Load restores a persisted chain so new entries continue it. It must run
// before the first Log.
func (l *Logger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	started := len(l.entries) > 0 || l.lastID != ""
	l.mu.Unlock()
	if started {
		return ErrAlreadyLogging
	}

	var hot []domain.AuditEntry
	if err := l.getJSON(ctx, keyEntries, &hot); err != nil {
		return err
	}
	var anchor Anchor
	if err := l.getJSON(ctx, keyAnchor, &anchor); err != nil {
		return err
	}

	coldKeys, err := l.store.Keys(ctx, prefixCold)
	if err != nil {
		return fmt.Errorf("list cold blocks: %w", err)
	}
	archiveKeys, err := l.store.Keys(ctx, prefixArchive)
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}

	lastID := anchor.PreviousEntryID
	switch {
	case len(hot) > 0:
		lastID = hot[len(hot)-1].ID
	case len(coldKeys) > 0:
		block, err := l.readBlock(ctx, coldKeys[len(coldKeys)-1])
		if err != nil {
			return err
		}
		if len(block) > 0 {
			lastID = block[len(block)-1].ID
		}
	}

	l.mu.Lock()
	l.entries = hot
	l.anchor = anchor
	l.lastID = lastID
	l.mu.Unlock()
	l.coldSeq = nextSeq(coldKeys, prefixCold)
	l.archiveSeq = nextSeq(archiveKeys, prefixArchive)

	slog.Info("Audit chain loaded",
		"hot", len(hot),
		"coldBlocks", len(coldKeys),
		"anchor", anchor.PreviousEntryID,
	)
	return nil
}

func (l *Logger) getJSON(ctx context.Context, key string, v any) error {
	data, err := l.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := decodeJSON(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Cleanup removes entries older than the retention window, archives them
// with their anchor, re-anchors the remaining chain and records the cleanup
// as its own entry. It returns how many entries were removed.
func (l *Logger) Cleanup(ctx context.Context) (int, error) {
	cutoff := l.clock().Add(-l.cfg.Retention).UTC()

	removed, anchor, err := l.purgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}

	slog.Info("Audit retention cleanup", "removed", removed, "cutoff", cutoff, "anchor", anchor.PreviousEntryID)
	if _, err := l.Log(ctx, Event{
		Action:   "retention_cleanup",
		Category: domain.AuditLog,
		Result:   domain.ResultSuccess,
		Details: map[string]any{
			"removed":       removed,
			"cutoff":        cutoff,
			"anchorEntryId": anchor.PreviousEntryID,
			"anchorCount":   anchor.Count,
		},
	}, domain.LevelInfo); err != nil {
		return removed, err
	}
	return removed, l.Flush(ctx)
}

func (l *Logger) purgeBefore(ctx context.Context, cutoff time.Time) (int, Anchor, error) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	var (
		pruned   []domain.AuditEntry
		drop     []string
		rewrite  string
		remain   []domain.AuditEntry
		coldDone = true
	)

	if l.store != nil {
		keys, err := l.store.Keys(ctx, prefixCold)
		if err != nil {
			return 0, Anchor{}, fmt.Errorf("list cold blocks: %w", err)
		}
		for _, key := range keys {
			block, err := l.readBlock(ctx, key)
			if err != nil {
				return 0, Anchor{}, err
			}
			n := countBefore(block, cutoff)
			pruned = append(pruned, block[:n]...)
			if n == len(block) {
				drop = append(drop, key)
				continue
			}
			if n > 0 {
				rewrite, remain = key, block[n:]
			}
			coldDone = false
			break
		}
	}

	l.mu.Lock()
	before := l.anchor
	hotN := 0
	if coldDone {
		hotN = countBefore(l.entries, cutoff)
		pruned = append(pruned, l.entries[:hotN]...)
	}
	l.mu.Unlock()

	if len(pruned) == 0 {
		return 0, before, nil
	}

	if l.store != nil {
		data, err := json.Marshal(archiveRecord{Anchor: before, Entries: pruned})
		if err != nil {
			return 0, Anchor{}, fmt.Errorf("encode archive: %w", err)
		}
		key := seqKey(prefixArchive, l.archiveSeq)
		if err := l.store.Set(ctx, key, data); err != nil {
			return 0, Anchor{}, fmt.Errorf("write archive %s: %w", key, err)
		}
		l.archiveSeq++

		for _, key := range drop {
			if err := l.store.Delete(ctx, key); err != nil {
				return 0, Anchor{}, fmt.Errorf("delete cold block %s: %w", key, err)
			}
		}
		if rewrite != "" {
			data, err := json.Marshal(remain)
			if err != nil {
				return 0, Anchor{}, fmt.Errorf("encode cold block: %w", err)
			}
			if err := l.store.Set(ctx, rewrite, data); err != nil {
				return 0, Anchor{}, fmt.Errorf("rewrite cold block %s: %w", rewrite, err)
			}
		}
	}

	l.mu.Lock()
	l.entries = append([]domain.AuditEntry(nil), l.entries[hotN:]...)
	l.advanceAnchor(pruned, cutoff)
	anchor := l.anchor
	l.mu.Unlock()

	if l.store != nil {
		if err := l.persist(ctx); err != nil {
			return len(pruned), anchor, err
		}
	}
	return len(pruned), anchor, nil
}

func countBefore(entries []domain.AuditEntry, cutoff time.Time) int {
	n := 0
	for n < len(entries) && entries[n].Timestamp.Before(cutoff) {
		n++
	}
	return n
}
