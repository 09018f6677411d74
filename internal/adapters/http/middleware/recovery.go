package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/dto"
	"github.com/jsamuelsen/devflow-identity/internal/platform/logging"
)

// Recovery turns a handler panic into the generic 500 envelope. The panic
// value and stack are logged, never returned. Register it first so it also
// covers the other middleware.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				recoverRequest(c, logger, r)
			}
		}()

		c.Next()
	}
}

func recoverRequest(c *gin.Context, logger *slog.Logger, panicValue any) {
	ctx := c.Request.Context()

	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	logging.FromContextOr(ctx, logger).Error("handler panicked",
		slog.Any("panic", panicValue),
		slog.String("method", c.Request.Method),
		slog.String("route", c.FullPath()),
		slog.String("stack", string(debug.Stack())),
	)

	// Headers already sent: the status cannot change.
	if c.Writer.Written() {
		c.Abort()
		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError,
		dto.Failed(dto.GenericErrorMessage, nil).WithTraceID(traceID))
}
