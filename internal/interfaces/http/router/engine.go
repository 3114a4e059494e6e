package router

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"

	"github.com/critique/backend/internal/application/critique"
	"github.com/critique/backend/internal/infrastructure/auth"
	"github.com/critique/backend/internal/infrastructure/config"
	"github.com/critique/backend/internal/infrastructure/logger"
	"github.com/critique/backend/internal/infrastructure/ratelimit"
	"github.com/critique/backend/internal/interfaces/http/handler"
	"github.com/critique/backend/internal/interfaces/http/middleware"
)

// HealthPath is served outside the API prefix and without authentication.
const HealthPath = "/health"

// Dependencies are the collaborators the engine needs.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Orchestrator *critique.Orchestrator
	// Limiter is required when rate limiting is enabled.
	Limiter ratelimit.Limiter
	// Meter enables HTTP metrics when set.
	Meter metric.Meter
	// TracerProvider overrides the global provider for request spans.
	TracerProvider trace.TracerProvider
	// Heartbeat overrides the keep-alive interval of event streams.
	Heartbeat time.Duration
}

// NewEngine builds the gin engine with the full middleware chain and every
// route registered.
func NewEngine(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	metricsMiddleware, err := middleware.HTTPMetrics(deps.Meter)
	if err != nil {
		return nil, err
	}

	// Order: tracing first so every later log line carries the trace id.
	engine.Use(
		middleware.Tracing(middleware.TracingConfig{
			ServiceName:    cfg.App.Name,
			Enabled:        cfg.Telemetry.Enabled,
			SkipPaths:      []string{HealthPath},
			TracerProvider: deps.TracerProvider,
		}),
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log, logger.WithSkipPaths(HealthPath)),
		middleware.SpanEnricher(),
		middleware.Profiling(cfg.Profiling.Enabled, HealthPath),
		metricsMiddleware,
		middleware.Secure(),
		middleware.CORS(middleware.CORSConfigFrom(cfg.HTTP)),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	systemHandler := handler.NewSystemHandler(handler.SystemInfo{
		Name:         cfg.App.Name,
		Provider:     cfg.LLM.Provider,
		Model:        cfg.LLM.Model,
		PersonaCount: deps.Orchestrator.Registry().Len(),
		AuthRequired: cfg.Auth.Enabled(),
	})
	engine.GET(HealthPath, systemHandler.Health)

	r := NewRouter(engine)
	r.Use(middleware.Authenticate(middleware.AuthConfig{
		APIKey:     cfg.Auth.APIKey,
		JWTService: auth.NewJWTService(cfg.Auth),
	}))
	if cfg.HTTP.RateLimitEnabled && deps.Limiter != nil {
		r.Use(middleware.RateLimit(deps.Limiter))
	}

	var feedbackOpts []handler.FeedbackOption
	if deps.Heartbeat > 0 {
		feedbackOpts = append(feedbackOpts, handler.WithHeartbeat(deps.Heartbeat))
	}
	feedbackHandler := handler.NewFeedbackHandler(deps.Orchestrator, feedbackOpts...)
	feedbackRoutes := NewDomainGroup("feedback", "/feedback")
	feedbackRoutes.POST("", feedbackHandler.Batch)
	feedbackRoutes.POST("/stream", feedbackHandler.Stream)
	r.Register(feedbackRoutes)

	personaHandler := handler.NewPersonaHandler(deps.Orchestrator)
	personaRoutes := NewDomainGroup("personas", "/personas")
	personaRoutes.GET("", personaHandler.List)
	r.Register(personaRoutes)

	systemRoutes := NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)
	r.Register(systemRoutes)

	r.Setup()
	return engine, nil
}
