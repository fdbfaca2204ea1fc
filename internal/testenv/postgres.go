//go:build integration

// Package testenv starts throwaway infrastructure for integration tests.
package testenv

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmehra2102/storefront/internal/database"
	"github.com/dmehra2102/storefront/pkg/logging"
)

type Env struct {
	PG    *postgres.PostgresContainer
	PGURL string
	Pool  *pgxpool.Pool
}

// Postgres starts a postgres container, applies the schema and registers teardown on t.
func Postgres(t testing.TB) *Env {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	pool, err := database.Connect(ctx, pgURL, 20)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(ctx, logging.Discard(), pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &Env{PG: pgC, PGURL: pgURL, Pool: pool}
}

// Reset truncates every table between subtests.
func (e *Env) Reset(t testing.TB) {
	t.Helper()
	_, err := e.Pool.Exec(context.Background(),
		`TRUNCATE order_items, orders, products, users, outbox RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}
