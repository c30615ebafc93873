package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Strategy selects how the inter-attempt delay grows.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
	StrategyAdaptive    Strategy = "adaptive"
)

// ExhaustedError reports that every attempt failed with a retryable
// error. It wraps the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Config holds retry policy settings.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Strategy    Strategy

	// JitterRatio randomizes each delay by ±ratio to avoid thundering
	// herds. Zero disables jitter.
	JitterRatio float64

	// Retryable classifies errors; a nil func treats everything as
	// retryable. Non-retryable errors abort immediately without
	// consuming remaining attempts.
	Retryable func(error) bool

	// ErrorRate supplies the recent failure rate in [0,1] for the
	// adaptive strategy; nil degrades adaptive to exponential. Keeping
	// the rate outside the policy keeps the policy itself stateless.
	ErrorRate func() float64
}

// Policy executes operations with bounded retries.
type Policy struct {
	cfg Config
}

// New creates a Policy, filling unset fields with defaults.
func New(cfg Config) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyExponential
	}
	return &Policy{cfg: cfg}
}

// Do invokes op until it succeeds, a non-retryable error occurs, the
// context is canceled, or MaxAttempts is reached. The terminal failure
// for exhausted retryable attempts is an *ExhaustedError wrapping the
// last cause.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.cfg.Retryable != nil && !p.cfg.Retryable(err) {
			return err
		}

		if attempt == p.cfg.MaxAttempts {
			break
		}

		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: p.cfg.MaxAttempts, Err: lastErr}
}

// Delay computes the pause after the given attempt number (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch p.cfg.Strategy {
	case StrategyFixed:
		d = p.cfg.BaseDelay
	case StrategyLinear:
		d = p.cfg.BaseDelay * time.Duration(attempt)
	case StrategyAdaptive:
		d = scale(exponential(p.cfg.BaseDelay, attempt), p.adaptiveMultiplier())
	default: // exponential
		d = exponential(p.cfg.BaseDelay, attempt)
	}

	if d > p.cfg.MaxDelay {
		d = p.cfg.MaxDelay
	}

	return p.jitter(d)
}

// adaptiveMultiplier stretches delays when the recent failure rate of the
// operation is high, backing further off a struggling venue.
func (p *Policy) adaptiveMultiplier() float64 {
	if p.cfg.ErrorRate == nil {
		return 1.0
	}
	rate := p.cfg.ErrorRate()
	switch {
	case rate < 0.2:
		return 1.0
	case rate < 0.5:
		return 1.5
	default:
		return 2.0
	}
}

func (p *Policy) jitter(d time.Duration) time.Duration {
	if p.cfg.JitterRatio <= 0 || d <= 0 {
		return d
	}
	span := float64(d) * p.cfg.JitterRatio
	offset := (rand.Float64()*2 - 1) * span
	j := time.Duration(float64(d) + offset)
	if j < 0 {
		return 0
	}
	return j
}

const maxShift = 62

// exponential returns base * 2^(attempt-1) with overflow protection.
func exponential(base time.Duration, attempt int) time.Duration {
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}
	mult := int64(1) << shift
	if int64(base) > (1<<62)/mult {
		return time.Duration(1 << 62)
	}
	return base * time.Duration(mult)
}

func scale(d time.Duration, mult float64) time.Duration {
	return time.Duration(float64(d) * mult)
}

// sleep waits for d, returning early if ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
