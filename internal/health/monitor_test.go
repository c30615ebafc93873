package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DegradedThreshold = 1
	cfg.FailureThreshold = 3
	cfg.RecoveryThreshold = 2
	return cfg
}

func TestReportOutcomeDemotion(t *testing.T) {
	m := NewMonitor(testConfig(), testLogger())
	m.RegisterProbe("binance", nil, 0)

	m.ReportOutcome("binance", true, nil)
	m.ReportOutcome("binance", true, nil)

	rec, ok := m.StatusOf("binance")
	if !ok {
		t.Fatal("StatusOf returned no record")
	}
	if rec.Status != StatusHealthy {
		t.Fatalf("status after successes = %v, want %v", rec.Status, StatusHealthy)
	}

	m.ReportOutcome("binance", false, errors.New("timeout"))
	rec, _ = m.StatusOf("binance")
	if rec.Status != StatusDegraded {
		t.Errorf("status after 1 failure = %v, want %v", rec.Status, StatusDegraded)
	}

	m.ReportOutcome("binance", false, errors.New("timeout"))
	m.ReportOutcome("binance", false, errors.New("timeout"))
	rec, _ = m.StatusOf("binance")
	if rec.Status != StatusUnhealthy {
		t.Errorf("status after 3 failures = %v, want %v", rec.Status, StatusUnhealthy)
	}
	if rec.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures = %d, want 3", rec.ConsecutiveFailures)
	}
	if rec.LastError != "timeout" {
		t.Errorf("LastError = %q, want %q", rec.LastError, "timeout")
	}
}

func TestReportOutcomeRecovery(t *testing.T) {
	m := NewMonitor(testConfig(), testLogger())
	m.RegisterProbe("okx", nil, 0)

	for i := 0; i < 3; i++ {
		m.ReportOutcome("okx", false, errors.New("boom"))
	}
	rec, _ := m.StatusOf("okx")
	if rec.Status != StatusUnhealthy {
		t.Fatalf("status = %v, want %v", rec.Status, StatusUnhealthy)
	}

	// One success lifts out of UNHEALTHY but not to HEALTHY yet.
	m.ReportOutcome("okx", true, nil)
	rec, _ = m.StatusOf("okx")
	if rec.Status != StatusDegraded {
		t.Errorf("status after 1 success = %v, want %v", rec.Status, StatusDegraded)
	}

	m.ReportOutcome("okx", true, nil)
	rec, _ = m.StatusOf("okx")
	if rec.Status != StatusHealthy {
		t.Errorf("status after 2 successes = %v, want %v", rec.Status, StatusHealthy)
	}
	if rec.LastError != "" {
		t.Errorf("LastError = %q, want empty", rec.LastError)
	}
}

func TestFirstSuccessFromUnknown(t *testing.T) {
	m := NewMonitor(testConfig(), testLogger())
	m.RegisterProbe("bybit", nil, 0)

	m.ReportOutcome("bybit", true, nil)
	rec, _ := m.StatusOf("bybit")
	if rec.Status != StatusHealthy {
		t.Errorf("status = %v, want %v", rec.Status, StatusHealthy)
	}
}

func TestMarkUnhealthy(t *testing.T) {
	var changes []StatusChange
	var mu sync.Mutex
	m := NewMonitor(testConfig(), testLogger(), OnStatusChange(func(c StatusChange) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	}))
	m.RegisterProbe("binance", nil, 0)

	m.ReportOutcome("binance", true, nil)
	m.ReportOutcome("binance", true, nil)
	m.MarkUnhealthy("binance", "circuit open")

	rec, _ := m.StatusOf("binance")
	if rec.Status != StatusUnhealthy {
		t.Fatalf("status = %v, want %v", rec.Status, StatusUnhealthy)
	}
	if rec.LastError != "circuit open" {
		t.Errorf("LastError = %q, want %q", rec.LastError, "circuit open")
	}

	mu.Lock()
	defer mu.Unlock()
	last := changes[len(changes)-1]
	if last.From != StatusHealthy || last.To != StatusUnhealthy {
		t.Errorf("last change = %v -> %v, want %v -> %v",
			last.From, last.To, StatusHealthy, StatusUnhealthy)
	}
}

func TestUnknownExchangeIgnored(t *testing.T) {
	m := NewMonitor(testConfig(), testLogger())

	m.ReportOutcome("nope", false, errors.New("x"))
	m.MarkUnhealthy("nope", "x")

	if _, ok := m.StatusOf("nope"); ok {
		t.Error("StatusOf returned a record for an unregistered exchange")
	}
	if rate := m.RecentFailureRate("nope"); rate != 0 {
		t.Errorf("RecentFailureRate = %v, want 0", rate)
	}
}

func TestRecentFailureRate(t *testing.T) {
	m := NewMonitor(testConfig(), testLogger())
	m.RegisterProbe("binance", nil, 0)

	for i := 0; i < 6; i++ {
		m.ReportOutcome("binance", true, nil)
	}
	for i := 0; i < 4; i++ {
		m.ReportOutcome("binance", false, errors.New("x"))
	}

	if rate := m.RecentFailureRate("binance"); rate != 0.4 {
		t.Errorf("RecentFailureRate = %v, want 0.4", rate)
	}
}

func TestRecentFailureRateRingWraps(t *testing.T) {
	m := NewMonitor(testConfig(), testLogger())
	m.RegisterProbe("binance", nil, 0)

	// Fill the window with failures, then overwrite with successes.
	for i := 0; i < outcomeWindow; i++ {
		m.ReportOutcome("binance", false, errors.New("x"))
	}
	for i := 0; i < outcomeWindow; i++ {
		m.ReportOutcome("binance", true, nil)
	}

	if rate := m.RecentFailureRate("binance"); rate != 0 {
		t.Errorf("RecentFailureRate after wrap = %v, want 0", rate)
	}
}

func TestProbeLoop(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	probe := func(ctx context.Context) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= 3 {
			return errors.New("down")
		}
		return nil
	}

	m := NewMonitor(testConfig(), testLogger())
	m.RegisterProbe("binance", probe, 5*time.Millisecond)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := m.Stop(ctx); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	}()

	deadline := time.After(2 * time.Second)
	for {
		rec, _ := m.StatusOf("binance")
		if rec.Status == StatusHealthy && rec.ConsecutiveSuccesses >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("probe loop never reached HEALTHY, status = %v", rec.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}

	rec, _ := m.StatusOf("binance")
	if rec.LastProbeAt.IsZero() {
		t.Error("LastProbeAt not set by probe loop")
	}
}

func TestRecordsSorted(t *testing.T) {
	m := NewMonitor(testConfig(), testLogger())
	m.RegisterProbe("okx", nil, 0)
	m.RegisterProbe("binance", nil, 0)
	m.RegisterProbe("bybit", nil, 0)

	records := m.Records()
	if len(records) != 3 {
		t.Fatalf("len(Records()) = %d, want 3", len(records))
	}
	want := []string{"binance", "bybit", "okx"}
	for i, rec := range records {
		if rec.Exchange != want[i] {
			t.Errorf("Records()[%d].Exchange = %q, want %q", i, rec.Exchange, want[i])
		}
	}
}
