// Package main is the entry point for the runner daemon. The daemon accepts
// remote requests to provision job environments, runs training tasks with
// slot-gated admission, and streams task output back to callers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"

	"mlrunner/internal/admission"
	"mlrunner/internal/billing"
	"mlrunner/internal/config"
	"mlrunner/internal/environment"
	"mlrunner/internal/harvest"
	"mlrunner/internal/lifecycle"
	"mlrunner/internal/logger"
	"mlrunner/internal/observability"
	"mlrunner/internal/server"
	"mlrunner/internal/task"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(parseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "mlrunner", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slogger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Durable slot counter
	store, err := admission.NewFileStore(cfg.StateDir)
	if err != nil {
		log.Fatalf("Failed to open slot store: %v", err)
	}
	adm := admission.New(store, slogger)
	if err := adm.Seed(cfg.Slots, cfg.ForceResetSlots); err != nil {
		log.Fatalf("Failed to seed slots: %v", err)
	}

	// Container runtime; initialized from standard environment variables
	// (DOCKER_HOST, etc.)
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		log.Fatalf("Failed to create Docker client: %v", err)
	}

	lc := lifecycle.New(dockerClient, cfg.ResultsRoot, slogger)
	materializer := environment.NewGitMaterializer(cfg.GitRemote, slogger)
	env := environment.NewManager(cfg.ResultsRoot, materializer, lc, slogger)

	translator := task.Translator{
		HostRoot:    cfg.HostRoot,
		LocalRoot:   cfg.ResultsRoot,
		ContextRoot: cfg.ContextRoot,
	}
	executor := task.NewExecutor(translator, cfg.TaskTimeout, slogger)
	harvester := harvest.New(cfg.HarvestGrace, slogger)

	handlers := server.NewHandlers(adm, env, server.NewTaskRunner(executor), harvester, lc, slogger)
	srv := server.New(fmt.Sprintf(":%d", cfg.HTTPPort), handlers, slogger)

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Error("failed to shutdown metrics", "error", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		slogger.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slogger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Billing
	reporter := billing.New(cfg.BillingURL, cfg.BillingInterval, cfg.RunnerID, adm, slogger)
	go reporter.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slogger.Info("shutting down")
		cancel()
	}()

	slogger.Info("runner listening", "port", cfg.HTTPPort, "slots", cfg.Slots)
	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		slogger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
