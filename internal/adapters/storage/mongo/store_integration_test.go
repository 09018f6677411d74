//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/mongo"
	"github.com/jsamuelsen/devflow-identity/internal/adapters/storage/storetest"
	"github.com/jsamuelsen/devflow-identity/internal/ports"
)

// startMongo starts a single-node replica set, which transactions require.
func startMongo(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := tcmongodb.Run(ctx, "docker.io/mongo:7", tcmongodb.WithReplicaSet("rs0"))
	require.NoError(t, err, "starting mongo container")

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate mongo container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	return uri
}

func TestStore_Integration(t *testing.T) {
	uri := startMongo(t)

	database := 0

	storetest.Run(t, func(t *testing.T) ports.Store {
		ctx := context.Background()

		client, err := mongo.Connect(ctx, mongo.Config{
			URI:            uri,
			ConnectTimeout: 10 * time.Second,
			RetryAttempts:  5,
			RetryInterval:  time.Second,
		})
		require.NoError(t, err)

		database++
		store := mongo.New(client, fmt.Sprintf("devflow_test_%d", database))
		require.NoError(t, store.EnsureIndexes(ctx))

		t.Cleanup(func() { _ = store.Close(ctx) })

		return store
	})
}
