// Package middleware provides HTTP middleware components for the Gin server.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jsamuelsen/devflow-identity/internal/platform/logging"
)

const (
	// HeaderRequestID carries the per-hop request identifier.
	HeaderRequestID = "X-Request-ID"

	// HeaderCorrelationID carries the identifier shared by every hop of a
	// sign-in flow.
	HeaderCorrelationID = "X-Correlation-ID"

	// ContextKeyRequestID is the gin.Context key holding the request ID.
	ContextKeyRequestID = "request_id"

	// ContextKeyCorrelationID is the gin.Context key holding the correlation ID.
	ContextKeyCorrelationID = "correlation_id"

	// maxInboundIDLength bounds IDs accepted from callers.
	maxInboundIDLength = 128
)

type idKey int

const (
	requestIDKey idKey = iota
	correlationIDKey
)

// RequestIDFromContext returns the request ID stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// CorrelationIDFromContext returns the correlation ID stored in ctx, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// ContextWithRequestID stores a request ID for outbound propagation.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithCorrelationID stores a correlation ID for outbound propagation.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// RequestID accepts a well-formed X-Request-ID from the caller or mints a
// UUIDv7. The ID is echoed on the response and attached to the request
// context and its logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := inboundID(c, HeaderRequestID)
		if id == "" {
			id = newID()
		}

		bindID(c, HeaderRequestID, ContextKeyRequestID, id, func(ctx context.Context) context.Context {
			return logging.WithRequestID(ContextWithRequestID(ctx, id), id)
		})
	}
}

// CorrelationID accepts a well-formed X-Correlation-ID from the caller. A
// request that starts a flow reuses its request ID, so both headers agree
// on the first hop.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := inboundID(c, HeaderCorrelationID)
		if id == "" {
			id = GetRequestID(c)
		}

		if id == "" {
			id = newID()
		}

		bindID(c, HeaderCorrelationID, ContextKeyCorrelationID, id, func(ctx context.Context) context.Context {
			return logging.WithCorrelationID(ContextWithCorrelationID(ctx, id), id)
		})
	}
}

// GetRequestID returns the request ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// GetCorrelationID returns the correlation ID set by CorrelationID, or "".
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(ContextKeyCorrelationID)
}

func bindID(c *gin.Context, header, key, id string, enrich func(context.Context) context.Context) {
	c.Set(key, id)
	c.Header(header, id)
	c.Request = c.Request.WithContext(enrich(c.Request.Context()))
	c.Next()
}

// inboundID returns the header value when it is safe to echo and log.
func inboundID(c *gin.Context, header string) string {
	id := c.GetHeader(header)
	if id == "" || len(id) > maxInboundIDLength {
		return ""
	}

	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return ""
		}
	}

	return id
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}
