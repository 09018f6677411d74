package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/dto"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/platform/logging"
)

// CallerContext selects how a translated failure is delivered.
type CallerContext int

const (
	// CallerAPI renders the failure as an HTTP response.
	CallerAPI CallerContext = iota

	// CallerInternal returns the failure as a plain InternalResponse value.
	CallerInternal
)

// String returns the caller name used in logs.
func (c CallerContext) String() string {
	if c == CallerInternal {
		return "internal"
	}

	return "api"
}

// InternalResponse is a translated failure for non-HTTP callers.
type InternalResponse struct {
	Status   int
	Envelope dto.Envelope
}

// Translate converts err into the status and envelope callers see, logging
// it once on the way. Anything outside the taxonomy is treated as
// unclassified and its message replaced so no storage or driver text leaks.
func Translate(ctx context.Context, err error, caller CallerContext) (int, dto.Envelope) {
	failure := domain.Classify(err)
	if failure == nil {
		return http.StatusOK, dto.OK(nil)
	}

	status := renderStatus(failure)
	envelope := dto.Failed(failureMessage(failure), failureDetails(failure))

	if span := trace.SpanFromContext(ctx); span.SpanContext().HasTraceID() {
		envelope = envelope.WithTraceID(span.SpanContext().TraceID().String())
	}

	level := slog.LevelError
	if domain.IsTimeout(failure) {
		// The client has already warned about the timeout.
		level = slog.LevelDebug
	}

	logging.FromContext(ctx).Log(ctx, level, "request failed",
		slog.String("kind", failureKind(failure)),
		slog.Int("status", status),
		slog.String("caller", caller.String()),
		slog.String("error", err.Error()),
		slog.String("trace_id", envelope.TraceID),
	)

	return status, envelope
}

// TranslateInternal translates err for callers that are not HTTP handlers.
func TranslateInternal(ctx context.Context, err error) InternalResponse {
	status, envelope := Translate(ctx, err, CallerInternal)
	return InternalResponse{Status: status, Envelope: envelope}
}

// RespondWithError writes the translated failure to the gin.Context.
func RespondWithError(c *gin.Context, err error) {
	status, envelope := Translate(c.Request.Context(), err, CallerAPI)
	c.JSON(status, envelope)
}

// RespondOK writes a successful envelope with the given status.
func RespondOK(c *gin.Context, status int, data any) {
	c.JSON(status, dto.OK(data))
}

// renderStatus returns the HTTP status for a failure. Request errors that
// never got a response carry status 0 and are rendered as gateway errors.
func renderStatus(f domain.Failure) int {
	status := f.StatusCode()
	if status >= http.StatusBadRequest && status < 600 {
		return status
	}

	if domain.IsTimeout(f) {
		return http.StatusGatewayTimeout
	}

	return http.StatusBadGateway
}

func failureMessage(f domain.Failure) string {
	var unclassified *domain.UnclassifiedError
	if errors.As(f, &unclassified) {
		return dto.GenericErrorMessage
	}

	return f.Error()
}

func failureDetails(f domain.Failure) map[string][]string {
	switch e := f.(type) {
	case *domain.ValidationError:
		return e.FieldErrors
	case *domain.RequestError:
		if len(e.FieldErrors) > 0 {
			return e.FieldErrors
		}
	}

	return nil
}

func failureKind(f domain.Failure) string {
	switch f.(type) {
	case *domain.ValidationError:
		return "validation"
	case *domain.NotFoundError:
		return "not_found"
	case *domain.RequestError:
		return "request"
	default:
		return "unclassified"
	}
}
