// Package testutil starts the PostgreSQL instance shared by the backend tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DSNEnv points the tests at an existing server instead of a container.
const DSNEnv = "STEPWISE_TEST_POSTGRES_DSN"

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// GetPostgresDSN returns the DSN of a shared Testcontainers PostgreSQL
// instance. Tests are skipped when the container cannot be started.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()

	pgOnce.Do(func() {
		if dsn := os.Getenv(DSNEnv); dsn != "" {
			pgDSN = dsn
			return
		}
		pgDSN, pgErr = startPostgres()
	})
	if pgErr != nil {
		t.Skipf("postgres backend: %v (set %s to use a running server)", pgErr, DSNEnv)
	}
	return pgDSN
}

func startPostgres() (dsn string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting Postgres testcontainer panicked: %v", r)
		}
	}()

	postgresC, err := testcontainers.Run(
		ctx, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("ready to accept connections"),
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://stepwise:stepwise@%s:%s/stepwise_test?sslmode=disable", host, port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "stepwise",
			"POSTGRES_PASSWORD": "stepwise",
			"POSTGRES_DB":       "stepwise_test",
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start Postgres testcontainer: %w", err)
	}

	endpoint, err := postgresC.Endpoint(ctx, "")
	if err != nil {
		_ = postgresC.Terminate(context.Background())
		return "", err
	}
	return fmt.Sprintf("postgres://stepwise:stepwise@%s/stepwise_test?sslmode=disable", endpoint), nil
}
