//go:build integration

package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/exhibit-client/internal/testutil"
	"github.com/Sternrassler/exhibit-client/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
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

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_SummaryAndDetailCached(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.AddSearch("flowers", 1, 2)
	mock.AddObject(1, "Iris", nil)
	mock.AddObject(2, "Peony", nil)

	client := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	for round := 0; round < 2; round++ {
		summary, err := client.FetchSummary(ctx, "flowers")
		if err != nil {
			t.Fatalf("round %d: FetchSummary() error = %v", round, err)
		}
		for _, id := range summary.ObjectIDs {
			if _, err := client.FetchDetail(ctx, id); err != nil {
				t.Fatalf("round %d: FetchDetail(%d) error = %v", round, id, err)
			}
		}
	}

	// Mock responses carry no freshness headers, so DefaultTTL keeps them fresh
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("Server requests = %d, want 3 (second round served from Redis)", got)
	}

	key := cache.KeyForURL(&url.URL{
		Host: mockHost(t, mock),
		Path: testutil.ObjectPath(1),
	})
	entry, err := client.GetCache().Get(ctx, key)
	if err != nil {
		t.Fatalf("Cache lookup failed: %v", err)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("Cached status = %d, want 200", entry.StatusCode)
	}
}

func TestIntegration_ConditionalRevalidation(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetHandler(testutil.ObjectPath(5), testutil.NewConditionalHandler(`"etag-5"`, `{"objectID": 5, "title": "Lantern"}`))

	client := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		artifact, err := client.FetchDetail(ctx, 5)
		if err != nil {
			t.Fatalf("FetchDetail() attempt %d error = %v", i+1, err)
		}
		if artifact.Title != "Lantern" {
			t.Errorf("Title = %q, want Lantern", artifact.Title)
		}
	}

	if got := mock.GetConditionalCount(); got != 2 {
		t.Errorf("Conditional requests = %d, want 2", got)
	}
}

func TestIntegration_ThrottleSharedThroughRedis(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetResponse(testutil.SearchPath(), testutil.NewRateLimitResponse(60))

	first := newTestClient(t, mock.URL(), redisClient)
	second := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	_, err := first.FetchSummary(ctx, "anything")
	if KindOf(err) != InvalidResponse {
		t.Fatalf("FetchSummary() kind = %q, want %q (err: %v)", KindOf(err), InvalidResponse, err)
	}

	before := mock.GetRequestCount()
	_, err = second.FetchSummary(ctx, "anything")
	if !errors.Is(err, ErrRequestBlocked) {
		t.Errorf("second client error = %v, want ErrRequestBlocked", err)
	}
	if mock.GetRequestCount() != before {
		t.Error("second client reached the server while throttled")
	}
}

func TestIntegration_CacheExpiration(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.SetHandler(testutil.ObjectPath(8), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=1")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"objectID": 8, "title": "Brief"}`))
	})

	client := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	if _, err := client.FetchDetail(ctx, 8); err != nil {
		t.Fatalf("FetchDetail() error = %v", err)
	}
	if _, err := client.FetchDetail(ctx, 8); err != nil {
		t.Fatalf("FetchDetail() error = %v", err)
	}
	if got := mock.GetPathCount(testutil.ObjectPath(8)); got != 1 {
		t.Errorf("Requests within max-age = %d, want 1", got)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, err := client.FetchDetail(ctx, 8); err != nil {
		t.Fatalf("FetchDetail() error = %v", err)
	}
	if got := mock.GetPathCount(testutil.ObjectPath(8)); got != 2 {
		t.Errorf("Requests after expiry = %d, want 2", got)
	}
}

func mockHost(t *testing.T, mock *testutil.MockCatalog) string {
	t.Helper()
	u, err := url.Parse(mock.ServerURL())
	if err != nil {
		t.Fatalf("parse mock url: %v", err)
	}
	return u.Host
}
