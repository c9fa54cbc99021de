// Package testutil starts the Redis instance shared by the backend tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// AddrEnv points the tests at an existing server instead of a container.
const AddrEnv = "STEPWISE_TEST_REDIS_ADDR"

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// GetRedisAddress returns the address of a shared Testcontainers Redis
// instance. Tests are skipped when the container cannot be started (e.g.
// Docker not available).
func GetRedisAddress(t *testing.T) string {
	t.Helper()

	redisOnce.Do(func() {
		if addr := os.Getenv(AddrEnv); addr != "" {
			redisAddr = addr
			return
		}
		redisAddr, redisErr = startRedisContainer()
	})
	if redisErr != nil {
		t.Skipf("redis backend: %v (set %s to use a running server)", redisErr, AddrEnv)
	}
	return redisAddr
}

func startRedisContainer() (addr string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	// Testcontainers panics when no Docker host can be found.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting Redis testcontainer panicked: %v", r)
		}
	}()

	redisC, err := testcontainers.Run(
		ctx, "redis:7",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start Redis testcontainer: %w", err)
	}

	// The container is reaped by Testcontainers at process exit.
	endpoint, err := redisC.Endpoint(ctx, "")
	if err != nil {
		_ = redisC.Terminate(context.Background())
		return "", err
	}
	return endpoint, nil
}
