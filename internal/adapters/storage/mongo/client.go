// Package mongo implements the identity store on MongoDB. Transactions need
// a replica set; every sign-in runs in one explicit session transaction with
// snapshot reads and majority writes, and the driver is never asked to retry
// the callback.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrConnect is returned when no connection could be established within the
// configured attempts.
var ErrConnect = errors.New("failed to connect to mongo")

// Config contains the connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	RetryAttempts  int
	RetryInterval  time.Duration
}

// Connect opens a client and pings the primary, retrying up to
// cfg.RetryAttempts times.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	attempts := max(cfg.RetryAttempts, 1)

	var lastErr error

	for attempt := range attempts {
		client, err := mongo.Connect(opts)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, nil
			}

			_ = client.Disconnect(context.WithoutCancel(ctx))
		}

		lastErr = err

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrConnect, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrConnect, lastErr)
}
