package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/avolkov/futures-data/internal/breaker"
	"github.com/avolkov/futures-data/internal/bus"
	"github.com/avolkov/futures-data/internal/config"
	"github.com/avolkov/futures-data/internal/control"
	"github.com/avolkov/futures-data/internal/exchange"
	"github.com/avolkov/futures-data/internal/health"
	"github.com/avolkov/futures-data/internal/logging"
	"github.com/avolkov/futures-data/internal/orchestrator"
	"github.com/avolkov/futures-data/internal/retry"
	"github.com/avolkov/futures-data/internal/symbols"
	"github.com/avolkov/futures-data/internal/version"
	"github.com/avolkov/futures-data/internal/worker"
)

func main() {
	configPath := flag.String("config", "configs/collector.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting collector",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Shared symbol set
	set := symbols.NewSet(cfg.Symbols)
	logger.Info("symbol set initialized", "symbols", set.Len())

	// Connect to the broker
	b := bus.New(bus.Config{
		URL:               cfg.RabbitMQ.URL,
		DataExchange:      cfg.RabbitMQ.DataExchange,
		ResponseExchange:  cfg.RabbitMQ.ResponseExchange,
		ControlQueue:      cfg.RabbitMQ.ControlQueue,
		ReconnectBaseWait: cfg.RabbitMQ.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.RabbitMQ.ReconnectMaxDelay,
		PublishTimeout:    cfg.RabbitMQ.PublishTimeout,
	}, logger)

	if err := b.Start(ctx); err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}

	// Exchange clients
	clients := make([]exchange.Client, 0, len(cfg.Exchanges))
	for _, ex := range cfg.Exchanges {
		clients = append(clients, exchange.NewRESTClient(ex.Name, ex.BaseURL,
			exchange.WithTimeout(ex.Timeout),
			exchange.WithLogger(logger),
		))
	}

	// Worker fleet
	orch := orchestrator.New(orchestrator.Config{
		Worker: worker.Config{
			Interval:          cfg.Collection.Interval,
			FetchTimeout:      cfg.Collection.FetchTimeout,
			UnhealthyCooldown: cfg.Collection.UnhealthyCooldown,
		},
		Retry: retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Strategy:    retry.Strategy(cfg.Retry.Strategy),
			JitterRatio: cfg.Retry.JitterRatio,
		},
		Breaker: breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Breaker.SuccessThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		},
		Health: health.Config{
			ProbeTimeout:      cfg.Health.ProbeTimeout,
			DegradedThreshold: cfg.Health.DegradedThreshold,
			FailureThreshold:  cfg.Health.FailureThreshold,
			RecoveryThreshold: cfg.Health.RecoveryThreshold,
		},
		ProbeInterval:   cfg.Collection.ProbeInterval,
		ReportInterval:  cfg.Collection.ReportInterval,
		InitPingTimeout: cfg.Collection.InitPingTimeout,
		MaxRestarts:     cfg.Collection.MaxRestarts,
	}, clients, set, b, logger)

	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// Control plane
	plane := control.New(set, orch, b, b.Inbound(), logger)
	if err := plane.Start(ctx); err != nil {
		logger.Error("failed to start control plane", "error", err)
		os.Exit(1)
	}

	// Health/debug endpoint
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: createHealthHandler(orch, set),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.HTTP.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("collector running",
		"instance_id", cfg.Instance.ID,
		"exchanges", len(clients),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.HTTP.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer shutdownCancel()

	if err := plane.Stop(shutdownCtx); err != nil {
		logger.Warn("control plane shutdown error", "error", err)
	}
	if err := orch.Stop(shutdownCtx); err != nil {
		logger.Warn("orchestrator shutdown error", "error", err)
	}
	if err := b.Stop(shutdownCtx); err != nil {
		logger.Warn("bus shutdown error", "error", err)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("collector stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(orch *orchestrator.Orchestrator, set *symbols.Set) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		records := orch.HealthRecords()

		status := "healthy"
		unhealthy := 0
		for _, rec := range records {
			switch rec.Status {
			case health.StatusUnhealthy:
				unhealthy++
			case health.StatusDegraded:
				if status == "healthy" {
					status = "degraded"
				}
			}
		}
		if unhealthy == len(records) && len(records) > 0 {
			status = "unhealthy"
		} else if unhealthy > 0 {
			status = "degraded"
		}

		workers := make(map[string]string)
		for name, st := range orch.WorkerStates() {
			workers[name] = st.String()
		}

		resp := map[string]any{
			"status":    status,
			"exchanges": records,
			"workers":   workers,
			"breakers":  orch.BreakerStates(),
		}

		w.Header().Set("Content-Type", "application/json")
		if status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/debug/symbols", func(w http.ResponseWriter, r *http.Request) {
		current := set.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":   len(current),
			"version": set.Version(),
			"symbols": current,
		})
	})

	mux.HandleFunc("/debug/statistics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Statistics())
	})

	return mux
}
