//go:build integration

package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/Sternrassler/consortium-doi-report/pkg/period"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisURL starts a Redis container and returns its redis:// URL.
func setupRedisURL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(context.Background()) })

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	return fmt.Sprintf("redis://%s/0", endpoint)
}

func TestPublisher_Integration_Connect(t *testing.T) {
	ctx := context.Background()
	rdb, err := Connect(ctx, setupRedisURL(t))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer rdb.Close()

	p := NewPublisher(rdb, 2*time.Minute)
	snap := FromReport("integration-run", testReport(), time.Now())
	if err := p.Publish(ctx, snap); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	key := Key{Consortium: "dc", Instance: client.InstanceProduction, Year: 2024, Granularity: period.Quarterly}
	got, err := p.Latest(ctx, key)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.RunID != "integration-run" || got.Filename != snap.Filename {
		t.Errorf("Latest() = %+v", got)
	}

	if ttl := rdb.TTL(ctx, key.Latest()).Val(); ttl <= 0 || ttl > 2*time.Minute {
		t.Errorf("latest pointer TTL = %v", ttl)
	}
}

func TestPublisher_Integration_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Connect(ctx, "redis://127.0.0.1:1/0"); err == nil {
		t.Error("expected error for unreachable server")
	}
}
