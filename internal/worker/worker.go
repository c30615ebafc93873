package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avolkov/futures-data/internal/breaker"
	"github.com/avolkov/futures-data/internal/exchange"
	"github.com/avolkov/futures-data/internal/health"
	"github.com/avolkov/futures-data/internal/model"
	"github.com/avolkov/futures-data/internal/retry"
	"github.com/avolkov/futures-data/internal/stats"
)

// State is the worker lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Sink receives serialized snapshots.
type Sink interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// SymbolSource provides the shared symbol set to poll.
type SymbolSource interface {
	Snapshot() []string
	Version() uint64
}

// HealthReporter receives fetch outcomes and answers status queries.
type HealthReporter interface {
	ReportOutcome(exchange string, success bool, err error)
	StatusOf(exchange string) (health.Record, bool)
}

// Config holds worker timing settings.
type Config struct {
	Interval          time.Duration // poll interval
	FetchTimeout      time.Duration // per-symbol fetch timeout
	UnhealthyCooldown time.Duration // wait between attempts while UNHEALTHY
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:          10 * time.Second,
		FetchTimeout:      10 * time.Second,
		UnhealthyCooldown: 30 * time.Second,
	}
}

// Worker polls one exchange for every symbol in the shared set.
type Worker struct {
	cfg     Config
	client  exchange.Client
	symbols SymbolSource
	sink    Sink
	health  HealthReporter
	stats   *stats.Collector
	breaker *breaker.Breaker
	retry   *retry.Policy
	logger  *slog.Logger

	onPanic func(exchange string, cause any)

	state atomic.Int32

	// Symbol snapshot cached across cycles, refreshed when the set
	// version moves.
	cached        []string
	cachedVersion uint64

	cooldownUntil time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Worker.
type Option func(*Worker)

// OnPanic registers a callback invoked after the poll loop recovers
// from a panic. The worker is already stopped when it fires.
func OnPanic(fn func(exchange string, cause any)) Option {
	return func(w *Worker) {
		w.onPanic = fn
	}
}

// New creates a Worker for one exchange.
func New(cfg Config, client exchange.Client, symbols SymbolSource, sink Sink,
	reporter HealthReporter, collector *stats.Collector,
	cb *breaker.Breaker, policy *retry.Policy, logger *slog.Logger, opts ...Option) *Worker {

	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		cfg:     cfg,
		client:  client,
		symbols: symbols,
		sink:    sink,
		health:  reporter,
		stats:   collector,
		breaker: cb,
		retry:   policy,
		logger:  logger.With("exchange", client.Name()),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Exchange returns the exchange this worker polls.
func (w *Worker) Exchange() string { return w.client.Name() }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Start begins the poll loop. Starting a running worker is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return nil
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("worker started", "interval", w.cfg.Interval)
	return nil
}

// Stop halts the poll loop. Bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}

	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.state.Store(int32(StateStopped))
		w.logger.Info("worker stopped")
		return nil
	case <-ctx.Done():
		w.state.Store(int32(StateStopped))
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panic", "cause", r)
			w.state.Store(int32(StateStopped))
			if w.onPanic != nil {
				w.onPanic(w.client.Name(), r)
			}
		}
	}()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	// First cycle runs immediately.
	w.cycle()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.cycle()
		}
	}
}

// cycle polls every symbol once.
func (w *Worker) cycle() {
	if w.skipUnhealthy() {
		return
	}

	start := time.Now()
	symbols := w.currentSymbols()
	if len(symbols) == 0 {
		w.logger.Debug("no symbols to poll")
		return
	}

	fetched, failed := 0, 0
	for _, symbol := range symbols {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		snap, err := w.fetch(symbol)
		if err != nil {
			failed++
			w.stats.RecordFetchFailure(w.client.Name())
			w.health.ReportOutcome(w.client.Name(), false, err)
			w.logger.Warn("fetch failed", "symbol", symbol, "error", err)
			continue
		}

		fetched++
		w.stats.RecordFetchSuccess(w.client.Name())
		w.health.ReportOutcome(w.client.Name(), true, nil)

		w.publish(snap)
	}

	w.logger.Debug("poll cycle complete",
		"symbols", len(symbols),
		"fetched", fetched,
		"failed", failed,
		"duration", time.Since(start),
	)
}

// skipUnhealthy reports whether this cycle should be skipped. An
// UNHEALTHY exchange pauses for a full cooldown window as soon as the
// status is observed, then retries once per window until it recovers.
func (w *Worker) skipUnhealthy() bool {
	rec, ok := w.health.StatusOf(w.client.Name())
	if !ok || rec.Status != health.StatusUnhealthy {
		w.cooldownUntil = time.Time{}
		return false
	}

	now := time.Now()
	if w.cooldownUntil.IsZero() {
		w.cooldownUntil = now.Add(w.cfg.UnhealthyCooldown)
		w.logger.Info("exchange unhealthy, pausing collection",
			"cooldown", w.cfg.UnhealthyCooldown,
		)
		return true
	}
	if now.Before(w.cooldownUntil) {
		w.logger.Debug("skipping cycle, exchange unhealthy",
			"cooldown_remaining", time.Until(w.cooldownUntil),
		)
		return true
	}

	// One attempt per cooldown window while unhealthy.
	w.cooldownUntil = now.Add(w.cfg.UnhealthyCooldown)
	return false
}

// currentSymbols returns the symbol snapshot, refreshing the cache only
// when the shared set's version moved.
func (w *Worker) currentSymbols() []string {
	if v := w.symbols.Version(); v != w.cachedVersion {
		w.cached = w.symbols.Snapshot()
		w.cachedVersion = v
		w.logger.Info("symbol set updated", "count", len(w.cached), "version", v)
	}
	return w.cached
}

// fetch collects one symbol through the retry policy and breaker.
func (w *Worker) fetch(symbol string) (model.FuturesSnapshot, error) {
	var snap model.FuturesSnapshot

	err := w.retry.Do(w.ctx, func(ctx context.Context) error {
		return w.breaker.Execute(func() error {
			s, err := w.collect(ctx, symbol)
			if err != nil {
				return err
			}
			snap = s
			return nil
		})
	})
	return snap, err
}

// collect performs the actual venue calls for one symbol. Ticker and
// order book are mandatory; funding data is best-effort since not every
// venue exposes it.
func (w *Worker) collect(ctx context.Context, symbol string) (model.FuturesSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	ticker, err := w.client.FetchTicker(ctx, symbol)
	if err != nil {
		return model.FuturesSnapshot{}, err
	}

	book, err := w.client.FetchOrderBook(ctx, symbol)
	if err != nil {
		return model.FuturesSnapshot{}, err
	}

	snap := model.FuturesSnapshot{
		Exchange:  w.client.Name(),
		Symbol:    symbol,
		Timestamp: time.Now().UnixMilli(),
		Ticker:    ticker,
		OrderBook: book,
	}

	if funding, err := w.client.FetchFundingRate(ctx, symbol); err != nil {
		w.logger.Debug("funding rate unavailable", "symbol", symbol, "error", err)
	} else {
		rate := funding.Rate
		snap.FundingRate = &rate
		if funding.NextFundingTime > 0 {
			next := funding.NextFundingTime
			snap.NextFundingTime = &next
		}
		if !funding.MarkPrice.IsZero() {
			mark := funding.MarkPrice
			snap.MarkPrice = &mark
		}
	}

	return snap, nil
}

// publish serializes and sends one snapshot. Failures here are a bus
// problem, not an exchange problem, so they do not feed the health
// monitor or the breaker.
func (w *Worker) publish(snap model.FuturesSnapshot) {
	body, err := json.Marshal(snap)
	if err != nil {
		w.stats.RecordPublishFailed()
		w.logger.Error("marshal snapshot failed", "symbol", snap.Symbol, "error", err)
		return
	}

	if err := w.sink.Publish(w.ctx, snap.RoutingKey(), body); err != nil {
		w.stats.RecordPublishFailed()
		w.logger.Warn("publish failed", "routing_key", snap.RoutingKey(), "error", err)
		return
	}

	w.stats.RecordPublished()
}
