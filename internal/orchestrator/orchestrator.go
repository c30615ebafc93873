package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/avolkov/futures-data/internal/breaker"
	"github.com/avolkov/futures-data/internal/exchange"
	"github.com/avolkov/futures-data/internal/health"
	"github.com/avolkov/futures-data/internal/retry"
	"github.com/avolkov/futures-data/internal/stats"
	"github.com/avolkov/futures-data/internal/symbols"
	"github.com/avolkov/futures-data/internal/worker"
)

// ErrNoExchanges is returned by Start when every configured exchange
// failed its initial reachability check.
var ErrNoExchanges = errors.New("no reachable exchanges")

// Config holds orchestrator settings.
type Config struct {
	Worker  worker.Config
	Retry   retry.Config
	Breaker breaker.Config
	Health  health.Config

	ProbeInterval   time.Duration
	ReportInterval  time.Duration
	InitPingTimeout time.Duration

	// MaxRestarts bounds panic restarts per worker.
	MaxRestarts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Worker:          worker.DefaultConfig(),
		Breaker:         breaker.DefaultConfig(),
		Health:          health.DefaultConfig(),
		ProbeInterval:   30 * time.Second,
		ReportInterval:  60 * time.Second,
		InitPingTimeout: 10 * time.Second,
		MaxRestarts:     3,
	}
}

// managed is one exchange's worker plus its resilience companions.
type managed struct {
	client  exchange.Client
	breaker *breaker.Breaker
	worker  *worker.Worker

	mu       sync.Mutex
	restarts int
}

// Orchestrator owns the per-exchange worker fleet.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
	set    *symbols.Set
	sink   worker.Sink

	stats   *stats.Collector
	monitor *health.Monitor
	fleet   map[string]*managed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the fleet for the given exchange clients. Nothing runs
// until Start is called.
func New(cfg Config, clients []exchange.Client, set *symbols.Set, sink worker.Sink, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		set:     set,
		sink:    sink,
		stats:   stats.NewCollector(),
		monitor: health.NewMonitor(cfg.Health, logger),
		fleet:   make(map[string]*managed),
	}

	for _, client := range clients {
		o.fleet[client.Name()] = o.buildManaged(client)
	}
	return o
}

// buildManaged assembles the breaker, retry policy, worker, and health
// probe for one exchange.
func (o *Orchestrator) buildManaged(client exchange.Client) *managed {
	name := client.Name()

	cb := breaker.New(name, o.cfg.Breaker, breaker.OnStateChange(func(c breaker.StateChange) {
		o.logger.Warn("breaker state changed", "exchange", c.Name, "from", c.From, "to", c.To)
		if c.To == breaker.StateOpen {
			o.monitor.MarkUnhealthy(c.Name, "circuit breaker open")
		}
	}))

	retryCfg := o.cfg.Retry
	retryCfg.Retryable = func(err error) bool {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			return false
		}
		return exchange.IsRetryable(err)
	}
	retryCfg.ErrorRate = func() float64 {
		return o.monitor.RecentFailureRate(name)
	}

	m := &managed{client: client, breaker: cb}
	m.worker = worker.New(o.cfg.Worker, client, o.set, o.sink,
		o.monitor, o.stats, cb, retry.New(retryCfg), o.logger,
		worker.OnPanic(o.handlePanic))

	// Probes run through the breaker so a recovering venue walks the
	// breaker back half-open to closed even while cycles are skipped.
	o.monitor.RegisterProbe(name, func(ctx context.Context) error {
		return cb.Execute(func() error {
			return client.Ping(ctx)
		})
	}, o.cfg.ProbeInterval)

	return m
}

// Start checks venue reachability, then starts the health monitor,
// every worker, and the periodic statistics report. Exchanges that fail
// the initial ping still get a worker; only all of them failing is
// fatal.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	if err := o.checkReachability(); err != nil {
		return err
	}

	if err := o.monitor.Start(o.ctx); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}

	for name, m := range o.fleet {
		if err := m.worker.Start(o.ctx); err != nil {
			o.logger.Error("failed to start worker", "exchange", name, "error", err)
		}
	}

	if o.cfg.ReportInterval > 0 {
		o.wg.Add(1)
		go o.reportLoop()
	}

	o.logger.Info("orchestrator started",
		"exchanges", len(o.fleet),
		"symbols", o.set.Len(),
	)
	return nil
}

// Stop shuts down workers, the report loop, and the health monitor.
// Bounded by ctx; workers that fail to stop in time are abandoned.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.cancel != nil {
		o.cancel()
	}

	for name, m := range o.fleet {
		if err := m.worker.Stop(ctx); err != nil {
			o.logger.Warn("worker did not stop in time, abandoning",
				"exchange", name, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn("orchestrator shutdown timeout")
	}

	if err := o.monitor.Stop(ctx); err != nil {
		return err
	}

	o.logger.Info("orchestrator stopped")
	return nil
}

// checkReachability pings every exchange once. Individual failures are
// tolerated, the workers will keep trying, but all of them failing
// means the deployment is misconfigured.
func (o *Orchestrator) checkReachability() error {
	names := o.exchangeNames()

	reachable := 0
	for _, name := range names {
		m := o.fleet[name]

		ctx, cancel := context.WithTimeout(o.ctx, o.cfg.InitPingTimeout)
		err := m.client.Ping(ctx)
		cancel()

		if err != nil {
			o.logger.Warn("exchange unreachable at startup", "exchange", name, "error", err)
			continue
		}
		reachable++
	}

	if len(names) > 0 && reachable == 0 {
		return ErrNoExchanges
	}

	o.logger.Info("reachability check complete",
		"reachable", reachable,
		"total", len(names),
	)
	return nil
}

// handlePanic restarts a crashed worker with a fresh breaker, up to
// MaxRestarts times.
func (o *Orchestrator) handlePanic(name string, cause any) {
	m, ok := o.fleet[name]
	if !ok {
		return
	}

	m.mu.Lock()
	m.restarts++
	attempt := m.restarts
	m.mu.Unlock()

	if attempt > o.cfg.MaxRestarts {
		o.logger.Error("worker exceeded restart budget, leaving stopped",
			"exchange", name,
			"restarts", attempt-1,
			"cause", cause,
		)
		return
	}

	o.logger.Warn("restarting crashed worker",
		"exchange", name,
		"attempt", attempt,
		"cause", cause,
	)

	m.breaker.Reset()
	if err := m.worker.Start(o.ctx); err != nil {
		o.logger.Error("worker restart failed", "exchange", name, "error", err)
	}
}

// reportLoop logs the windowed statistics summary on a fixed interval.
func (o *Orchestrator) reportLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.stats.ReportWindow(o.logger)
		}
	}
}

// Statistics returns a snapshot of the cumulative counters.
func (o *Orchestrator) Statistics() stats.Snapshot {
	return o.stats.Snapshot()
}

// HealthRecords returns the current per-exchange health records.
func (o *Orchestrator) HealthRecords() []health.Record {
	return o.monitor.Records()
}

// WorkerStates returns each worker's lifecycle state, keyed by exchange.
func (o *Orchestrator) WorkerStates() map[string]worker.State {
	out := make(map[string]worker.State, len(o.fleet))
	for name, m := range o.fleet {
		out[name] = m.worker.State()
	}
	return out
}

// BreakerStates returns each breaker's state, keyed by exchange.
func (o *Orchestrator) BreakerStates() map[string]breaker.State {
	out := make(map[string]breaker.State, len(o.fleet))
	for name, m := range o.fleet {
		out[name] = m.breaker.State()
	}
	return out
}

func (o *Orchestrator) exchangeNames() []string {
	names := make([]string, 0, len(o.fleet))
	for name := range o.fleet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
