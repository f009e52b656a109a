//go:build integration

package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"chainarena/config"
	"chainarena/internal/storage"
)

func TestPostgreSQLStore_Integration(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("chainarena"),
		postgres.WithUsername("arena"),
		postgres.WithPassword("arena"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	runStoreSuite(t, func(t *testing.T) Store {
		db, err := storage.NewPostgreSQL(ctx, config.PostgreSQLConfig{URL: url, MaxConns: 25})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		_, err = db.PostgreSQLPool().Exec(ctx, "DROP TABLE IF EXISTS participants")
		require.NoError(t, err)

		s, err := NewStore(ctx, db)
		require.NoError(t, err)
		return s
	})
}
