package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcome labels shared by the identity collectors.
const (
	OutcomeSuccess  = "success"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

var (
	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devflow",
		Subsystem: "identity",
		Name:      "reconciliations_total",
		Help:      "OAuth sign-in reconciliations by outcome.",
	}, []string{"outcome"})

	storeTransactions = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "devflow",
		Subsystem: "identity",
		Name:      "store_transaction_duration_seconds",
		Help:      "Duration of identity store transactions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"driver", "outcome"})

	clientRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "devflow",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Duration of outbound requests made by the request client.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"client", "method", "outcome"})
)

// RecordReconciliation counts one sign-in reconciliation.
func RecordReconciliation(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

// ObserveStoreTransaction records how long a store transaction took.
func ObserveStoreTransaction(driver, outcome string, d time.Duration) {
	storeTransactions.WithLabelValues(driver, outcome).Observe(d.Seconds())
}

// ObserveClientRequest records how long an outbound request took.
func ObserveClientRequest(client, method, outcome string, d time.Duration) {
	clientRequests.WithLabelValues(client, method, outcome).Observe(d.Seconds())
}

// StartSpan starts a span on the service tracer. With telemetry disabled the
// global provider is a noop and the span costs nothing.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

// StoreOutcome maps a store transaction error onto an outcome label.
func StoreOutcome(err error, conflict error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, conflict):
		return OutcomeConflict
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}
