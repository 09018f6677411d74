package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/handlers"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/middleware"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
	"github.com/jsamuelsen/devflow-identity/internal/platform/telemetry"
)

// RouterConfig contains configuration for setting up the router.
type RouterConfig struct {
	// Logger is the structured logger for request logging.
	Logger *slog.Logger

	// AppConfig contains application configuration.
	AppConfig *config.AppConfig

	// HealthHandler handles health check endpoints.
	HealthHandler *handlers.HealthHandler

	AuthHandler    *handlers.AuthHandler
	UserHandler    *handlers.UserHandler
	AccountHandler *handlers.AccountHandler
}

// SetupRouter configures all routes and middleware on the Gin engine.
// Middleware is applied in the following order (first to last):
//  1. Recovery - catch panics first
//  2. Request ID - generate/extract request ID
//  3. Correlation ID - handle distributed tracing correlation
//  4. OpenTelemetry - span extraction, then metrics
//  5. Logging - request logging (skips health endpoints)
//
// Route groups:
//   - /-/ (internal): Health endpoints
//   - /api/v1/ (public API): identity endpoints
//
// API routes carry no request timeout. Storage transaction lifetimes bound
// their latency.
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	engine.Use(
		middleware.Recovery(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
		telemetry.TracingMiddleware(cfg.AppConfig.Name),
		telemetry.Middleware(cfg.AppConfig.Name),
		middleware.Logging(cfg.Logger),
	)

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterProbeRoutes(engine)
	}

	setupAPIRoutes(engine.Group("/api/v1"), cfg)
}

// setupAPIRoutes registers the identity endpoints. Every failure is
// rendered by RespondWithError.
func setupAPIRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.AuthHandler != nil {
		cfg.AuthHandler.RegisterAuthRoutes(rg, RespondWithError)
	}

	if cfg.UserHandler != nil {
		cfg.UserHandler.RegisterUserRoutes(rg, RespondWithError)
	}

	if cfg.AccountHandler != nil {
		cfg.AccountHandler.RegisterAccountRoutes(rg, RespondWithError)
	}
}
