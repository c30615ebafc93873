package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := New(Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Strategy:    StrategyExponential,
	})

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error type = %T, want *ExhaustedError", err)
	}
	if !errors.Is(err, errTransient) {
		t.Error("ExhaustedError should wrap the last cause")
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
}

func TestDo_SucceedsMidway(t *testing.T) {
	p := New(Config{MaxAttempts: 5, BaseDelay: time.Millisecond})

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_NonRetryableAbortsImmediately(t *testing.T) {
	errPermanent := errors.New("bad symbol")

	p := New(Config{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, errPermanent) },
	})

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errPermanent
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, errPermanent) {
		t.Errorf("err = %v, want errPermanent", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("non-retryable failure must not be reported as exhaustion")
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	p := New(Config{MaxAttempts: 3, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(ctx context.Context) error { return errTransient })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDelay_Exponential(t *testing.T) {
	p := New(Config{BaseDelay: time.Second, MaxDelay: time.Minute, Strategy: StrategyExponential})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDelay_CapsAtMax(t *testing.T) {
	p := New(Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Strategy: StrategyExponential})

	if got := p.Delay(10); got != 5*time.Second {
		t.Errorf("Delay(10) = %v, want 5s cap", got)
	}
}

func TestDelay_Linear(t *testing.T) {
	p := New(Config{BaseDelay: time.Second, MaxDelay: time.Minute, Strategy: StrategyLinear})

	if got := p.Delay(3); got != 3*time.Second {
		t.Errorf("Delay(3) = %v, want 3s", got)
	}
}

func TestDelay_Fixed(t *testing.T) {
	p := New(Config{BaseDelay: 2 * time.Second, MaxDelay: time.Minute, Strategy: StrategyFixed})

	for attempt := 1; attempt <= 4; attempt++ {
		if got := p.Delay(attempt); got != 2*time.Second {
			t.Errorf("Delay(%d) = %v, want 2s", attempt, got)
		}
	}
}

func TestDelay_AdaptiveScalesWithErrorRate(t *testing.T) {
	rate := 0.0
	p := New(Config{
		BaseDelay: time.Second,
		MaxDelay:  time.Minute,
		Strategy:  StrategyAdaptive,
		ErrorRate: func() float64 { return rate },
	})

	if got := p.Delay(2); got != 2*time.Second {
		t.Errorf("Delay at 0%% failure = %v, want 2s", got)
	}

	rate = 0.4
	if got := p.Delay(2); got != 3*time.Second {
		t.Errorf("Delay at 40%% failure = %v, want 3s", got)
	}

	rate = 0.9
	if got := p.Delay(2); got != 4*time.Second {
		t.Errorf("Delay at 90%% failure = %v, want 4s", got)
	}
}

func TestDelay_JitterStaysWithinBounds(t *testing.T) {
	p := New(Config{BaseDelay: time.Second, MaxDelay: time.Minute, Strategy: StrategyFixed, JitterRatio: 0.1})

	for i := 0; i < 100; i++ {
		got := p.Delay(1)
		if got < 900*time.Millisecond || got > 1100*time.Millisecond {
			t.Fatalf("jittered delay %v outside [0.9s, 1.1s]", got)
		}
	}
}
