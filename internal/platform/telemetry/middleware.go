package telemetry

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jsamuelsen/devflow-identity/internal/platform/logging"
)

const instrumentationName = "github.com/jsamuelsen/devflow-identity/telemetry"

// TraceIDHeader echoes the trace id of every traced request.
const TraceIDHeader = "X-Trace-ID"

// unmatchedRoute labels requests that matched no route, keeping label
// cardinality bounded under path scans.
const unmatchedRoute = "unmatched"

var httpRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "devflow",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "Duration of inbound HTTP requests by route and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// Metrics holds the OpenTelemetry HTTP server instruments. They are exported
// over OTLP when telemetry is enabled.
type Metrics struct {
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
}

// NewMetrics creates the HTTP server instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestDuration: requestDuration,
		activeRequests:  activeRequests,
	}, nil
}

// Middleware records request metrics, echoes the trace id and adds it to
// the request logger. It must run
// after TracingMiddleware.
func Middleware(serviceName string) gin.HandlerFunc {
	// Metric creation failures are reported to the global otel error handler.
	metrics, err := NewMetrics()
	if err != nil {
		otel.Handle(err)
	}

	service := attribute.String("service.name", serviceName)

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()

		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID := sc.TraceID().String()
			c.Header(TraceIDHeader, traceID)
			ctx = logging.WithTraceID(ctx, traceID)
			c.Request = c.Request.WithContext(ctx)
		}

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		attrs := metric.WithAttributes(
			service,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		)

		if metrics != nil {
			metrics.activeRequests.Add(ctx, 1, attrs)
			defer metrics.activeRequests.Add(ctx, -1, attrs)
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(duration)

		if metrics != nil {
			metrics.requestDuration.Record(ctx, duration, attrs,
				metric.WithAttributes(attribute.Int("http.status_code", status)))
		}
	}
}

// TracingMiddleware returns the otelgin middleware, which extracts the
// inbound trace context and starts the server span.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}
