//go:build integration

package ranking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"chainarena/config"
	"chainarena/internal/storage"
)

func TestMongoDBStore_Integration(t *testing.T) {
	ctx := context.Background()

	// UpdatePair runs in a transaction, which needs a replica set
	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	runStoreSuite(t, func(t *testing.T) Store {
		db, err := storage.NewMongoDB(ctx, config.MongoDBConfig{URL: url, Database: "chainarena_test"})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		require.NoError(t, db.MongoDatabase().Collection("participants").Drop(ctx))

		s, err := NewStore(ctx, db)
		require.NoError(t, err)
		return s
	})
}
