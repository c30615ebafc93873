package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a call is rejected without being
// invoked because the breaker considers the resource down.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the breaker state visible to callers.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds breaker thresholds.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// closed breaker.
	FailureThreshold uint32

	// SuccessThreshold is the consecutive-success count that closes a
	// half-open breaker.
	SuccessThreshold uint32

	// RecoveryTimeout is how long an open breaker rejects calls before
	// allowing a half-open trial.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns the thresholds used when config omits them.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
	}
}

// Counts is a snapshot of the breaker's request accounting.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChange describes one observed transition.
type StateChange struct {
	Name string
	From State
	To   State
	At   time.Time
}

// Listener receives state transitions. Called synchronously from the
// goroutine that triggered the transition; keep it cheap.
type Listener func(StateChange)

// Breaker guards calls against one downstream resource.
type Breaker struct {
	name     string
	cfg      Config
	listener Listener

	mu sync.Mutex
	cb *gobreaker.CircuitBreaker
}

// Option configures a Breaker.
type Option func(*Breaker)

// OnStateChange registers a transition listener.
func OnStateChange(l Listener) Option {
	return func(b *Breaker) {
		b.listener = l
	}
}

// New creates a closed breaker for the named resource.
func New(name string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{name: name, cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	b.cb = b.newGoBreaker()
	return b
}

func (b *Breaker) newGoBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.cfg.SuccessThreshold,
		Timeout:     b.cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.listener != nil {
				b.listener(StateChange{
					Name: name,
					From: mapState(from),
					To:   mapState(to),
					At:   time.Now(),
				})
			}
		},
	})
}

// Name returns the guarded resource name.
func (b *Breaker) Name() string { return b.name }

// Execute runs op through the breaker. When the breaker is open, op is
// not invoked and the returned error wraps ErrCircuitOpen.
func (b *Breaker) Execute(op func() error) error {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()

	_, err := cb.Execute(func() (any, error) {
		return nil, op()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}

	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return mapState(b.cb.State())
}

// Counts returns a snapshot of the request accounting.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.cb.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Reset forces the breaker to closed with all counters zeroed. This is an
// administrative escape hatch, not part of the data path; the underlying
// breaker is recreated since gobreaker exposes no reset.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = b.newGoBreaker()
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
