package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/navlock/internal/navlock/common/clock"
	"github.com/haukened/navlock/internal/navlock/common/log"
	"github.com/haukened/navlock/internal/navlock/common/metrics"
	"github.com/haukened/navlock/internal/navlock/config"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine/bloom"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine/bolt"
	"github.com/haukened/navlock/internal/navlock/repos/ruleengine/lru"
	"github.com/haukened/navlock/internal/navlock/repos/settings"
	"github.com/haukened/navlock/internal/navlock/services/controller"
	"github.com/haukened/navlock/internal/navlock/services/reconciler"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "navlockd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the daemon
type Application struct {
	config     *config.AppConfig
	store      ruleengine.Store
	engine     *ruleengine.Engine
	controller *controller.Controller
	registry   *prometheus.Registry
	metricsSrv *http.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":           appName,
		"version":       version,
		"env":           cfg.Env,
		"log_level":     cfg.LogLevel,
		"settings_file": cfg.SettingsFile,
		"rules_db":      cfg.RulesDB,
		"track_state":   cfg.TrackState,
	}, "navlockd_starting")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "build_application_failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "shutdown_signal_received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err.Error()}, "navlockd_failed")
	}

	log.Info(nil, "navlockd_stopped")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store, err := bolt.New(cfg.RulesDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules db: %w", err)
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	engine, err := ruleengine.New(ruleengine.Options{
		Store:   store,
		Cache:   cache,
		Factory: bloom.NewFactory(),
		FPRate:  cfg.BloomFPRate,
		Clock:   clk,
		Logger:  logger.With(map[string]any{"component": "ruleengine"}),
		Metrics: m,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load rule engine: %w", err)
	}

	st := store.Stats()
	log.Info(map[string]any{
		"rules":      st.Rules,
		"hosts":      st.Hosts,
		"generation": st.Generation,
		"cache_size": cfg.CacheSize,
	}, "rule_engine_loaded")

	rec := reconciler.New(reconciler.Options{
		Engine:    engine,
		Logger:    logger.With(map[string]any{"component": "reconciler"}),
		Metrics:   m,
		Untracked: !cfg.TrackState,
	})

	ctrl, err := controller.New(controller.Options{
		Source:     settings.New(cfg.SettingsFile, logger),
		Reconciler: rec,
		Logger:     logger.With(map[string]any{"component": "controller"}),
		Metrics:    m,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Application{
		config:     cfg,
		store:      store,
		engine:     engine,
		controller: ctrl,
		registry:   registry,
	}, nil
}

// startMetricsServer serves /metrics when an address is configured.
func (app *Application) startMetricsServer() {
	if app.config.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(app.registry))
	app.metricsSrv = &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := app.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(map[string]any{"error": err.Error(), "address": app.config.MetricsAddr}, "metrics_server_failed")
		}
	}()
	log.Info(map[string]any{"address": app.config.MetricsAddr}, "metrics_server_started")
}

// Run starts the controller and blocks until ctx is cancelled
func (app *Application) Run(ctx context.Context) error {
	app.startMetricsServer()

	done := make(chan error, 1)
	go func() { done <- app.controller.Run(ctx) }()

	<-ctx.Done()
	log.Info(nil, "shutdown_initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if app.metricsSrv != nil {
		if err := app.metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "metrics_server_shutdown_error")
		}
	}

	select {
	case err := <-done:
		if cerr := app.store.Close(); cerr != nil {
			log.Warn(map[string]any{"error": cerr.Error()}, "rules_db_close_error")
		}
		if err != nil {
			return err
		}
		log.Info(nil, "graceful_shutdown_completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout.String()}, "shutdown_timeout_exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
