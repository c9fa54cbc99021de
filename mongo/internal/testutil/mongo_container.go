// Package testutil starts the MongoDB instance shared by the backend tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// URIEnv points the tests at an existing server instead of a container.
const URIEnv = "STEPWISE_TEST_MONGO_URI"

var (
	mongoOnce sync.Once
	mongoURI  string
	mongoErr  error
)

// GetMongoURI returns the URI of the shared test server. Tests are skipped
// when no server is configured and no container can be started.
func GetMongoURI(t *testing.T) string {
	t.Helper()

	mongoOnce.Do(func() {
		if uri := os.Getenv(URIEnv); uri != "" {
			mongoURI = uri
			return
		}
		mongoURI, mongoErr = startMongo()
	})
	if mongoErr != nil {
		t.Skipf("mongo backend: %v (set %s to use a running server)", mongoErr, URIEnv)
	}
	return mongoURI
}

func startMongo() (uri string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("no docker host: %v", r)
		}
	}()

	c, err := testcontainers.Run(
		ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp").WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("start mongo:7: %w", err)
	}

	endpoint, err := c.PortEndpoint(ctx, "27017/tcp", "mongodb")
	if err != nil {
		_ = c.Terminate(context.Background())
		return "", fmt.Errorf("mongo endpoint: %w", err)
	}
	// IPv4 loopback; localhost may resolve to ::1 which the container does not bind.
	return strings.Replace(endpoint, "localhost", "127.0.0.1", 1), nil
}
