// Package events publishes identity events. The NATS publisher sends one JSON
// message per event on <prefix>.<event type>.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// Compile-time interface checks.
var (
	_ ports.EventPublisher = (*Publisher)(nil)
	_ ports.HealthChecker  = (*Publisher)(nil)
	_ ports.EventPublisher = Noop{}
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	IsConnected() bool
	Drain() error
}

// Envelope is the message body of every identity event.
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// Publisher publishes events to NATS.
type Publisher struct {
	conn   Conn
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// Connect dials url and returns a publisher for subjects under prefix.
func Connect(url, name, prefix string, logger *slog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	return NewPublisher(conn, prefix, logger), nil
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		conn:   conn,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "events.Publisher")),
	}
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish sends event. The trace context of ctx travels in the message
// headers.
func (p *Publisher) Publish(ctx context.Context, event ports.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(Envelope{
		Type:       event.EventType(),
		OccurredAt: p.now(),
		Data:       event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.EventType(), err)
	}

	msg := nats.NewMsg(p.Subject(event.EventType()))
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, uuid.NewString())
	msg.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing %s: %w", msg.Subject, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("subject", msg.Subject),
		slog.String("event_type", event.EventType()),
	)

	return nil
}

// Name implements ports.HealthChecker.
func (p *Publisher) Name() string {
	return "nats"
}

// Check implements ports.HealthChecker.
func (p *Publisher) Check(context.Context) error {
	if !p.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}

	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// Noop discards every event. It is used when publishing is disabled.
type Noop struct{}

// Publish implements ports.EventPublisher.
func (Noop) Publish(context.Context, ports.Event) error {
	return nil
}
