package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/http/middleware"
	"github.com/jsamuelsen/devflow-identity/internal/domain"
	"github.com/jsamuelsen/devflow-identity/internal/platform/config"
	"github.com/jsamuelsen/devflow-identity/internal/platform/logging"
	"github.com/jsamuelsen/devflow-identity/internal/platform/telemetry"
)

const (
	instrumentationName = "github.com/jsamuelsen/devflow-identity/internal/adapters/clients"

	// DefaultTimeout bounds a call when neither the client nor the request
	// sets a timeout.
	DefaultTimeout = 5 * time.Second

	contentTypeJSON = "application/json"
)

// Config configures a Client.
type Config struct {
	// BaseURL is prefixed to SendRequest.Path.
	BaseURL string

	// ServiceName names the downstream in logs, spans and metrics.
	ServiceName string

	// Timeout is the default per-call deadline.
	Timeout time.Duration

	Circuit   config.CircuitBreakerConfig
	Transport config.TransportConfig

	// Logger is optional.
	Logger *slog.Logger
}

// SendRequest describes one outbound call.
type SendRequest struct {
	// Method defaults to GET.
	Method string

	// URL is used as is when set. Otherwise Path is joined to the base URL.
	URL  string
	Path string

	// Body is JSON-encoded when non-nil. json.RawMessage and []byte are sent
	// untouched.
	Body any

	// Headers override the JSON defaults.
	Headers http.Header

	// Timeout overrides the client's default deadline for this call.
	Timeout time.Duration
}

// Response is a completed HTTP exchange.
type Response struct {
	Status int
	Header http.Header
	Body   json.RawMessage
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("empty response body")
	}

	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}

	return nil
}

// Client sends JSON requests with a per-call deadline and a circuit breaker.
// It never retries: a *domain.RequestError with Timeout set means the remote
// outcome is unknown and only the caller can decide whether to repeat.
type Client struct {
	http        *http.Client
	baseURL     string
	serviceName string
	timeout     time.Duration
	logger      *slog.Logger
	cb          *CircuitBreaker
	tracer      trace.Tracer
}

// New creates a client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(
		slog.String("component", "clients.Client"),
		slog.String("downstream", cfg.ServiceName),
	)

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:   max(cfg.Circuit.MaxFailures, 1),
		Timeout:       cfg.Circuit.Timeout,
		HalfOpenLimit: max(cfg.Circuit.HalfOpenLimit, 1),
	})
	cb.OnStateChange(func(from, to State) {
		logger.Warn("circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Transport.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.Transport.MaxIdleConns
	}

	if cfg.Transport.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Transport.MaxIdleConnsPerHost
	}

	if cfg.Transport.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.Transport.IdleConnTimeout
	}

	return &Client{
		http:        &http.Client{Transport: transport},
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceName: cfg.ServiceName,
		timeout:     timeout,
		logger:      logger,
		cb:          cb,
		tracer:      otel.Tracer(instrumentationName),
	}, nil
}

// Send performs req.
//
// A 2xx response returns the body untouched. Any other status returns both
// the Response and a *domain.RequestError{Status: code, Message: "HTTP error:
// <code>"}, so callers that understand the body may refine the error. A call
// that produced no response returns a *domain.RequestError with Status
// domain.StatusNoResponse; Timeout is set when the deadline expired.
func (c *Client) Send(ctx context.Context, req SendRequest) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if target == "" {
		target = c.buildURL(req.Path)
	}

	logger := c.requestLogger(ctx, method, target)
	start := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", method, c.serviceName),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target),
			attribute.String("peer.service", c.serviceName),
		),
	)
	defer span.End()

	httpReq, err := c.newRequest(ctx, method, target, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.Classify(err)
	}

	if !c.cb.Allow() {
		span.SetStatus(codes.Error, ErrCircuitOpen.Error())
		telemetry.ObserveClientRequest(c.serviceName, method, "circuit_open", time.Since(start))
		logger.WarnContext(ctx, "request blocked by circuit breaker")

		return nil, &domain.RequestError{
			Status:  domain.StatusNoResponse,
			Message: ErrCircuitOpen.Error(),
			Cause:   ErrCircuitOpen,
		}
	}

	logging.Trace(ctx, "sending request", slog.String("method", method), slog.String("url", target))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportFailure(ctx, logger, span, method, start, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportFailure(ctx, logger, span, method, start, fmt.Errorf("reading response body: %w", err))
	}

	return c.complete(ctx, logger, span, method, start, &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	})
}

// CircuitState returns the current state of the circuit breaker.
func (c *Client) CircuitState() State {
	return c.cb.State()
}

func (c *Client) newRequest(ctx context.Context, method, target string, req SendRequest) (*http.Request, error) {
	var body io.Reader = http.NoBody

	switch b := req.Body.(type) {
	case nil:
	case json.RawMessage:
		body = bytes.NewReader(b)
	case []byte:
		body = bytes.NewReader(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("Accept", contentTypeJSON)

	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		httpReq.Header.Set(middleware.HeaderRequestID, requestID)
	}

	if correlationID := middleware.CorrelationIDFromContext(ctx); correlationID != "" {
		httpReq.Header.Set(middleware.HeaderCorrelationID, correlationID)
	}

	for key, values := range req.Headers {
		httpReq.Header.Del(key)

		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	return httpReq, nil
}

func (c *Client) complete(
	ctx context.Context,
	logger *slog.Logger,
	span trace.Span,
	method string,
	start time.Time,
	resp *Response,
) (*Response, error) {
	duration := time.Since(start)

	span.SetAttributes(attribute.Int("http.status_code", resp.Status))

	if resp.Status >= http.StatusInternalServerError {
		c.cb.RecordFailure()
	} else {
		c.cb.RecordSuccess()
	}

	if resp.Status >= http.StatusOK && resp.Status < http.StatusMultipleChoices {
		telemetry.ObserveClientRequest(c.serviceName, method, telemetry.OutcomeSuccess, duration)
		logger.DebugContext(ctx, "request completed",
			slog.Int("status", resp.Status),
			slog.Duration("duration", duration),
		)
		logging.Trace(ctx, "response body", slog.String("body", string(resp.Body)))

		return resp, nil
	}

	span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.Status))
	telemetry.ObserveClientRequest(c.serviceName, method, fmt.Sprintf("%dxx", resp.Status/100), duration)
	logger.DebugContext(ctx, "request returned error status",
		slog.Int("status", resp.Status),
		slog.Duration("duration", duration),
	)

	return resp, &domain.RequestError{
		Status:  resp.Status,
		Message: fmt.Sprintf("HTTP error: %d", resp.Status),
	}
}

// transportFailure converts a call that produced no response.
func (c *Client) transportFailure(
	ctx context.Context,
	logger *slog.Logger,
	span trace.Span,
	method string,
	start time.Time,
	err error,
) error {
	duration := time.Since(start)

	c.cb.RecordFailure()
	span.RecordError(err)

	if isTimeout(ctx, err) {
		span.SetStatus(codes.Error, ErrTimeout.Error())
		telemetry.ObserveClientRequest(c.serviceName, method, telemetry.OutcomeTimeout, duration)
		logger.WarnContext(ctx, "request timed out",
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)

		return &domain.RequestError{
			Status:  domain.StatusNoResponse,
			Message: ErrTimeout.Error(),
			Timeout: true,
			Cause:   errors.Join(ErrTimeout, err),
		}
	}

	span.SetStatus(codes.Error, err.Error())
	telemetry.ObserveClientRequest(c.serviceName, method, telemetry.OutcomeError, duration)
	logger.ErrorContext(ctx, "request failed",
		slog.Duration("duration", duration),
		slog.Any("error", err),
	)

	return &domain.RequestError{
		Status:  domain.StatusNoResponse,
		Message: "request failed: " + err.Error(),
		Cause:   err,
	}
}

func (c *Client) requestLogger(ctx context.Context, method, target string) *slog.Logger {
	logger := c.logger.With(
		slog.String("method", method),
		slog.String("url", target),
	)

	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		logger = logger.With(slog.String("request_id", requestID))
	}

	if correlationID := middleware.CorrelationIDFromContext(ctx); correlationID != "" {
		logger = logger.With(slog.String("correlation_id", correlationID))
	}

	return logger
}

func (c *Client) buildURL(path string) string {
	if path == "" {
		return c.baseURL
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

// isTimeout reports whether err is the per-call deadline expiring rather
// than the caller cancelling.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
