package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/critique/backend/internal/application/critique"
	"github.com/critique/backend/internal/infrastructure/config"
	"github.com/critique/backend/internal/infrastructure/llm"
	"github.com/critique/backend/internal/infrastructure/logger"
	"github.com/critique/backend/internal/infrastructure/personas"
	"github.com/critique/backend/internal/infrastructure/ratelimit"
	"github.com/critique/backend/internal/infrastructure/telemetry"
	"github.com/critique/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	serviceName := cfg.Telemetry.ServiceName

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   serviceName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       serviceName,
		Insecure:          cfg.Telemetry.Insecure,
		ProfileSpans:      profiler.IsEnabled(),
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       serviceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	if lp.IsEnabled() {
		// Tee every entry to the OTLP log exporter as well.
		log, err = logger.New(logCfg, lp.ZapCore(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting critique backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("auth_required", cfg.Auth.Enabled()),
	)

	registry, err := personas.Load(cfg.Personas.File)
	if err != nil {
		log.Fatal("Failed to load personas", zap.String("file", cfg.Personas.File), zap.Error(err))
	}
	log.Info("Personas loaded", zap.Int("count", registry.Len()))

	gateway, err := llm.NewGateway(cfg.LLM, log)
	if err != nil {
		log.Fatal("Failed to initialize model gateway", zap.Error(err))
	}

	orchOpts := []critique.Option{critique.WithLogger(log)}
	var meter metric.Meter
	if mp.IsEnabled() {
		meter = mp.Meter(serviceName)
		recorder, err := telemetry.NewCritiqueMetrics(meter)
		if err != nil {
			log.Fatal("Failed to create critique metrics", zap.Error(err))
		}
		orchOpts = append(orchOpts, critique.WithRecorder(recorder))
	}
	orchestrator := critique.NewOrchestrator(registry, gateway, orchOpts...)

	var limiter ratelimit.Limiter
	if cfg.HTTP.RateLimitEnabled {
		limiter, err = ratelimit.New(ctx, cfg.HTTP, cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to initialize rate limiter", zap.Error(err))
		}
	}

	engine, err := router.NewEngine(router.Dependencies{
		Config:       cfg,
		Logger:       log,
		Orchestrator: orchestrator,
		Limiter:      limiter,
		Meter:        meter,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           cfg.App.Addr(),
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	closeLimiter(limiter, log)
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := lp.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}
	_ = profiler.Stop()

	log.Info("Server exited gracefully")
}

func closeLimiter(limiter ratelimit.Limiter, log *zap.Logger) {
	switch l := limiter.(type) {
	case *ratelimit.MemoryLimiter:
		l.Stop()
	case *ratelimit.RedisLimiter:
		if err := l.Close(); err != nil {
			log.Error("Error closing Redis rate limiter", zap.Error(err))
		}
	}
}
