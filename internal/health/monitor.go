package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Status classifies an exchange's recent behavior.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Record is the externally visible health state of one exchange.
type Record struct {
	Exchange             string    `json:"exchange"`
	Status               Status    `json:"status"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastProbeAt          time.Time `json:"last_probe_at"`
	LastError            string    `json:"last_error,omitempty"`
}

// ProbeFunc actively checks one exchange. A nil return is a pass.
type ProbeFunc func(ctx context.Context) error

// StatusChange describes one observed status transition.
type StatusChange struct {
	Exchange string
	From     Status
	To       Status
}

// Config holds monitor thresholds shared by all exchanges.
type Config struct {
	ProbeTimeout time.Duration

	// DegradedThreshold consecutive failures demote HEALTHY to DEGRADED;
	// FailureThreshold demote further to UNHEALTHY; RecoveryThreshold
	// consecutive successes restore HEALTHY.
	DegradedThreshold int
	FailureThreshold  int
	RecoveryThreshold int
}

// DefaultConfig returns the thresholds used when config omits them.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:      10 * time.Second,
		DegradedThreshold: 1,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}
}

// outcomeWindow is the size of the recent-outcome ring used for the
// adaptive retry error rate.
const outcomeWindow = 50

type entry struct {
	probe    ProbeFunc
	interval time.Duration
	rec      Record

	// Ring of recent outcomes, true = success.
	recent []bool
	next   int
}

// Monitor owns the per-exchange health records and probe loops.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	entries  map[string]*entry
	onChange func(StatusChange)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runs   bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// OnStatusChange registers a transition listener. Called synchronously
// from the goroutine that applied the outcome.
func OnStatusChange(fn func(StatusChange)) Option {
	return func(m *Monitor) {
		m.onChange = fn
	}
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterProbe adds an exchange with an active probe on its own
// interval. Registering again replaces the probe and resets the record.
func (m *Monitor) RegisterProbe(exchange string, probe ProbeFunc, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &entry{
		probe:    probe,
		interval: interval,
		rec:      Record{Exchange: exchange, Status: StatusUnknown},
		recent:   make([]bool, 0, outcomeWindow),
	}
	m.entries[exchange] = e

	if m.runs {
		m.startProbeLoop(exchange, e)
	}
}

// Start launches one probe loop per registered exchange.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.runs = true

	for exchange, e := range m.entries {
		m.startProbeLoop(exchange, e)
	}

	m.logger.Info("health monitor started", "exchanges", len(m.entries))
	return nil
}

// Stop halts all probe loops. Bounded by ctx.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.runs = false
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("health monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// caller must hold m.mu.
func (m *Monitor) startProbeLoop(exchange string, e *entry) {
	if e.probe == nil || e.interval <= 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.runProbe(exchange, e.probe)
			}
		}
	}()
}

func (m *Monitor) runProbe(exchange string, probe ProbeFunc) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ProbeTimeout)
	defer cancel()

	err := probe(ctx)
	m.ReportOutcome(exchange, err == nil, err)
}

// ReportOutcome feeds one outcome (active probe or passive fetch result)
// into the exchange's state machine.
func (m *Monitor) ReportOutcome(exchange string, success bool, err error) {
	m.mu.Lock()
	e, ok := m.entries[exchange]
	if !ok {
		m.mu.Unlock()
		return
	}

	old := e.rec.Status
	e.rec.LastProbeAt = time.Now()
	pushOutcome(e, success)

	if success {
		e.rec.ConsecutiveSuccesses++
		e.rec.ConsecutiveFailures = 0
		e.rec.LastError = ""

		switch {
		case e.rec.ConsecutiveSuccesses >= m.cfg.RecoveryThreshold:
			e.rec.Status = StatusHealthy
		case old == StatusUnhealthy:
			e.rec.Status = StatusDegraded
		case old == StatusUnknown:
			e.rec.Status = StatusHealthy
		}
	} else {
		e.rec.ConsecutiveFailures++
		e.rec.ConsecutiveSuccesses = 0
		if err != nil {
			e.rec.LastError = err.Error()
		}

		switch {
		case e.rec.ConsecutiveFailures >= m.cfg.FailureThreshold:
			e.rec.Status = StatusUnhealthy
		case e.rec.ConsecutiveFailures >= m.cfg.DegradedThreshold:
			e.rec.Status = StatusDegraded
		}
	}

	newStatus := e.rec.Status
	m.mu.Unlock()

	m.notify(exchange, old, newStatus)
}

// MarkUnhealthy forces an exchange to UNHEALTHY, used when its circuit
// breaker opens. The recovery path is the usual consecutive-success run.
func (m *Monitor) MarkUnhealthy(exchange, reason string) {
	m.mu.Lock()
	e, ok := m.entries[exchange]
	if !ok {
		m.mu.Unlock()
		return
	}

	old := e.rec.Status
	e.rec.Status = StatusUnhealthy
	e.rec.ConsecutiveSuccesses = 0
	e.rec.LastError = reason
	m.mu.Unlock()

	m.notify(exchange, old, StatusUnhealthy)
}

func (m *Monitor) notify(exchange string, from, to Status) {
	if from == to {
		return
	}

	m.logger.Info("exchange health changed",
		"exchange", exchange,
		"from", from,
		"to", to,
	)
	if m.onChange != nil {
		m.onChange(StatusChange{Exchange: exchange, From: from, To: to})
	}
}

// StatusOf returns a copy of the exchange's health record.
func (m *Monitor) StatusOf(exchange string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[exchange]
	if !ok {
		return Record{}, false
	}
	return e.rec, true
}

// Records returns copies of all records, sorted by exchange name.
func (m *Monitor) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}

// RecentFailureRate returns the failure fraction over the last
// outcomeWindow outcomes, 0 when nothing was observed yet.
func (m *Monitor) RecentFailureRate(exchange string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[exchange]
	if !ok || len(e.recent) == 0 {
		return 0
	}

	failures := 0
	for _, success := range e.recent {
		if !success {
			failures++
		}
	}
	return float64(failures) / float64(len(e.recent))
}

func pushOutcome(e *entry, success bool) {
	if len(e.recent) < outcomeWindow {
		e.recent = append(e.recent, success)
		return
	}
	e.recent[e.next] = success
	e.next = (e.next + 1) % outcomeWindow
}
