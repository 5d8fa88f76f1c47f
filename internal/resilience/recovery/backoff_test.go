package recovery

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := NewBackoff(RetryConfig{
		InitialDelay:      1 * time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	})

	// Attempt 1: 1*2^0 = 1s
	if d := b.GetDelay(1); d != 1*time.Second {
		t.Errorf("expected 1s, got %v", d)
	}

	// Attempt 2: 1*2^1 = 2s
	if d := b.GetDelay(2); d != 2*time.Second {
		t.Errorf("expected 2s, got %v", d)
	}

	// Attempt 3: 1*2^2 = 4s
	if d := b.GetDelay(3); d != 4*time.Second {
		t.Errorf("expected 4s, got %v", d)
	}

	// Attempt 10: Cap at MaxDelay (10s)
	if d := b.GetDelay(10); d != 10*time.Second {
		t.Errorf("expected 10s, got %v", d)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b := NewBackoff(RetryConfig{
		InitialDelay:      2 * time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2,
		Jitter:            true,
	})

	b.Rand = func() float64 { return 0 }
	if d := b.GetDelay(1); d != time.Second {
		t.Errorf("expected lower bound 1s, got %v", d)
	}

	b.Rand = func() float64 { return 0.999 }
	if d := b.GetDelay(1); d >= 3*time.Second || d < 2*time.Second {
		t.Errorf("expected upper bound below 3s, got %v", d)
	}
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(RetryConfig{})
	if b.InitialDelay != DefaultRetryConfig.InitialDelay || b.Multiplier != 2 {
		t.Errorf("expected defaults, got %+v", b)
	}
}
