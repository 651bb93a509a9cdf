// Package app wires the engine together: storage, generation client,
// outbound gateway, campaign engine, executor, scheduler and the HTTP
// surfaces. It owns startup order and graceful shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autofranco/frankie/internal/api"
	"github.com/autofranco/frankie/internal/campaign"
	"github.com/autofranco/frankie/internal/config"
	"github.com/autofranco/frankie/internal/content"
	"github.com/autofranco/frankie/internal/dispatch"
	"github.com/autofranco/frankie/internal/executor"
	"github.com/autofranco/frankie/internal/gateway"
	"github.com/autofranco/frankie/internal/llm"
	"github.com/autofranco/frankie/internal/metrics"
	"github.com/autofranco/frankie/internal/scheduler"
	"github.com/autofranco/frankie/internal/store"
)

// Trigger names registered on startup. Fixed names keep repeated
// startups idempotent: the same registration is reused, never
// duplicated.
const (
	triggerSweep   = "global-sweep"
	triggerCleanup = "trigger-cleanup"
	triggerSignals = "signals-poll"
)

// sweepContinueDelay is how soon a follow-up sweep fires when the
// batch quota deferred eligible rows. Short by design: the deferral
// throttles one invocation, not the overall intake rate.
const sweepContinueDelay = time.Minute

// App is the main application
type App struct {
	config        *config.Config
	store         *store.Store
	metrics       *metrics.Metrics
	dispatcher    *dispatch.Dispatcher
	coordinator   *scheduler.Coordinator
	apiServer     *api.Server
	metricsServer *http.Server
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	s, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	m := metrics.New()

	generator := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)

	gw, err := buildGateway(&cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	engine := campaign.New(s, generator, campaign.Config{
		BatchSize: cfg.Campaign.BatchSize,
		Offsets:   cfg.Campaign.Offsets,
		Markers: content.Markers{
			Subject: cfg.Campaign.SubjectMarker,
			Body:    cfg.Campaign.BodyMarker,
		},
	}, m, logger)

	exec := executor.New(s, gw, cfg.Campaign.ClaimTTL, m, logger)
	dispatcher := dispatch.New(engine, exec, logger)
	coordinator := scheduler.New(s, cfg.Scheduler.MinInterval, m, logger)

	app := &App{
		config:      cfg,
		store:       s,
		metrics:     m,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		logger:      logger,
	}

	// Rows the batch quota defers get a one-shot follow-up sweep
	// rather than waiting a full recurring interval. Each continuation
	// gets a fresh name; the cleanup trigger prunes fired records.
	dispatcher.SetContinuation(func(ctx context.Context, remaining int) {
		name := fmt.Sprintf("sweep-continue-%d", time.Now().UnixNano())
		if err := coordinator.EnsureOneShot(name, scheduler.PurposeSweep, time.Now().Add(sweepContinueDelay)); err != nil {
			logger.Error("failed to schedule sweep continuation", "error", err)
			return
		}
		logger.Info("sweep continuation scheduled", "remaining", remaining)
	})

	coordinator.RegisterHandler(scheduler.PurposeSweep, func(ctx context.Context) {
		if err := dispatcher.Dispatch(ctx, dispatch.SweepDue{}); err != nil {
			logger.Error("scheduled sweep failed", "error", err)
		}
		app.updateLeadGauges()
	})
	coordinator.RegisterHandler(scheduler.PurposeCleanup, func(ctx context.Context) {
		pruned, err := coordinator.Cleanup(time.Now())
		if err != nil {
			logger.Error("trigger cleanup failed", "error", err)
			return
		}
		if pruned > 0 {
			logger.Info("pruned stale triggers", "count", pruned)
		}
	})
	coordinator.RegisterHandler(scheduler.PurposeSignals, func(ctx context.Context) {
		if err := exec.PollSignals(ctx); err != nil {
			logger.Error("signals poll failed", "error", err)
		}
	})

	app.apiServer = api.NewServer(s, dispatcher, coordinator, &cfg.API, logger)

	return app, nil
}

// buildGateway selects the outbound transport from configuration.
func buildGateway(cfg *config.GatewayConfig) (gateway.Gateway, error) {
	switch cfg.Transport {
	case "api":
		return gateway.NewAPIGateway(cfg.BaseURL, cfg.APIKey, cfg.From, cfg.Timeout), nil
	case "smtp":
		return gateway.NewSMTPGateway(cfg.Addr, cfg.Username, cfg.Password, cfg.From, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown gateway transport %q", cfg.Transport)
	}
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting frankie",
		"api_addr", a.config.API.ListenAddr,
		"storage", a.config.Storage.Path,
		"gateway", a.config.Gateway.Transport,
		"sweep_interval", a.config.Scheduler.SweepInterval,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.coordinator.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	if err := a.registerTriggers(); err != nil {
		return fmt.Errorf("failed to register triggers: %w", err)
	}

	a.updateLeadGauges()

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(a.config.Metrics.Path, a.metrics.Handler())
		a.metricsServer = &http.Server{
			Addr:    a.config.Metrics.ListenAddr,
			Handler: mux,
		}
		go func() {
			a.logger.Info("starting metrics server", "addr", a.config.Metrics.ListenAddr)
			if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// registerTriggers ensures the recurring registrations exist. Existing
// records with the same name are reused, so restarts do not pile up
// duplicates.
func (a *App) registerTriggers() error {
	if err := a.coordinator.EnsureRecurring(triggerSweep, scheduler.PurposeSweep, a.config.Scheduler.SweepInterval); err != nil {
		return err
	}
	if err := a.coordinator.EnsureRecurring(triggerCleanup, scheduler.PurposeCleanup, a.config.Scheduler.CleanupInterval); err != nil {
		return err
	}
	if a.config.Scheduler.SignalsInterval > 0 {
		if err := a.coordinator.EnsureRecurring(triggerSignals, scheduler.PurposeSignals, a.config.Scheduler.SignalsInterval); err != nil {
			return err
		}
	}
	return nil
}

// updateLeadGauges refreshes the per-status lead counts.
func (a *App) updateLeadGauges() {
	stats, err := a.store.Stats()
	if err != nil {
		a.logger.Error("failed to read lead stats", "error", err)
		return
	}
	a.metrics.LeadsByStatus.Reset()
	for status, count := range stats {
		label := string(status)
		if label == "" {
			label = "empty"
		}
		a.metrics.LeadsByStatus.WithLabelValues(label).Set(float64(count))
	}
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop timers first so no new sweeps start mid-shutdown.
	a.coordinator.Stop()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
