package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

type mockCleaner struct {
	mu    sync.Mutex
	calls int
}

func (m *mockCleaner) Cleanup(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return 1, nil
}

func (m *mockCleaner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestPruner_Interval(t *testing.T) {
	tests := []struct {
		retention time.Duration
		expect    time.Duration
	}{
		{time.Minute, time.Minute},
		{5 * time.Hour, 30 * time.Minute},
		{7 * 365 * 24 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		if got := NewPruner(tt.retention, nil).Interval(); got != tt.expect {
			t.Errorf("Interval(%v) = %v, want %v", tt.retention, got, tt.expect)
		}
	}
}

func TestPruner_PrunesOnStartAndStops(t *testing.T) {
	cleaner := &mockCleaner{}
	p := NewPruner(time.Hour, cleaner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for cleaner.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected initial prune")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop on cancel")
	}
}

func TestPruner_DisabledWithoutRetention(t *testing.T) {
	cleaner := &mockCleaner{}
	NewPruner(0, cleaner).Start(context.Background())
	if cleaner.count() != 0 {
		t.Error("disabled pruner must not clean")
	}
}
