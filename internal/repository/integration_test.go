package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/SergeiKhy/tinylink/internal/config"
	"github.com/SergeiKhy/tinylink/internal/migrations"
	"github.com/SergeiKhy/tinylink/internal/repository"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresLinkRepository прогоняет общий набор проверок на PostgreSQL в контейнере
func TestPostgresLinkRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	ctx := context.Background()

	dbContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("tinylink"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbContainer.Terminate(context.Background()) })

	host, err := dbContainer.Host(ctx)
	require.NoError(t, err)
	port, err := dbContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dbConfig := config.DBConfig{
		Host:     host,
		Port:     port.Port(),
		User:     "user",
		Password: "password",
		Name:     "tinylink",
		SSLMode:  "disable",
	}

	require.NoError(t, migrations.Run(dbConfig.DSN(), nil))

	db, err := repository.NewPostgresDB(ctx, dbConfig, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	runLinkRepositorySuite(t, func(t *testing.T) repository.LinkRepository {
		_, err := db.Pool.Exec(context.Background(), "TRUNCATE TABLE links RESTART IDENTITY")
		require.NoError(t, err)
		return repository.NewLinkRepository(db)
	})
}

// TestRedisLinkRepository прогоняет общий набор проверок на Redis в контейнере
func TestRedisLinkRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(context.Background()) })

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisDB, err := repository.NewRedisClient(ctx, config.RedisConfig{
		Host: host,
		Port: port.Port(),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisDB.Close() })

	runLinkRepositorySuite(t, func(t *testing.T) repository.LinkRepository {
		require.NoError(t, redisDB.Client.FlushDB(context.Background()).Err())
		return repository.NewRedisLinkRepository(redisDB, "test:")
	})
}
