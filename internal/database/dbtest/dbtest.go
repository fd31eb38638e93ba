// Package dbtest starts a throwaway PostgreSQL container with the run store
// schema applied. It is used by integration tests only.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/keyword-hunter/internal/config"
	"github.com/helixir/keyword-hunter/internal/database"
)

// Image is the PostgreSQL image the container runs.
const Image = "postgres:16-alpine"

// Start runs a container, connects a pool and migrates it to the latest
// schema. Everything is torn down when t finishes.
func Start(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("keyword_hunter_test"),
		postgres.WithUsername("keyhunter"),
		postgres.WithPassword("keyhunter"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:           host,
		Port:           port.Int(),
		User:           "keyhunter",
		Password:       "keyhunter",
		Name:           "keyword_hunter_test",
		SSLMode:        config.SSLModeDisable,
		MaxConns:       4,
		MinConns:       1,
		ConnectTimeout: 10 * time.Second,
	}

	db, err := database.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	migrator, err := database.NewMigrator(db, "", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	return db
}
