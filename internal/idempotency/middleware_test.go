package idempotency_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"ms-bookings/internal/idempotency"
	"ms-bookings/internal/logger"
)

func TestMiddlewarePassthroughWithoutHeader(t *testing.T) {
	// No header means the store is never consulted; a nil client would panic
	// if it were.
	store := idempotency.NewStore(nil, 0)
	calls := 0

	handler := idempotency.Middleware(store, logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader("{}")))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 2, calls, "every call without a key executes")
}

func TestMiddlewareReplayWithRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	store := idempotency.NewStore(client, idempotency.DefaultWindow)
	log := logger.NewNop()

	t.Run("successful outcome is replayed", func(t *testing.T) {
		calls := 0
		handler := idempotency.Middleware(store, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"success":true}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/transitions", strings.NewReader("{}"))
		req.Header.Set(idempotency.HeaderKey, "key-success")

		first := httptest.NewRecorder()
		handler.ServeHTTP(first, req.Clone(ctx))
		assert.Equal(t, http.StatusOK, first.Code)
		assert.Empty(t, first.Header().Get("Idempotent-Replay"))

		second := httptest.NewRecorder()
		handler.ServeHTTP(second, req.Clone(ctx))
		assert.Equal(t, http.StatusOK, second.Code)
		assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, 1, calls, "the retry must not re-execute the handler")
	})

	t.Run("server errors are retried", func(t *testing.T) {
		calls := 0
		handler := idempotency.Middleware(store, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte(`{"success":false}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"success":true}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b2/transitions", strings.NewReader("{}"))
		req.Header.Set(idempotency.HeaderKey, "key-retry")

		first := httptest.NewRecorder()
		handler.ServeHTTP(first, req.Clone(ctx))
		assert.Equal(t, http.StatusBadGateway, first.Code)

		// A 5xx is not cached, so the retry executes and its outcome is the
		// one that sticks.
		second := httptest.NewRecorder()
		handler.ServeHTTP(second, req.Clone(ctx))
		assert.Equal(t, http.StatusOK, second.Code)
		assert.Equal(t, 2, calls)

		third := httptest.NewRecorder()
		handler.ServeHTTP(third, req.Clone(ctx))
		assert.Equal(t, http.StatusOK, third.Code)
		assert.Equal(t, "true", third.Header().Get("Idempotent-Replay"))
		assert.Equal(t, 2, calls)
	})

	t.Run("client errors are cached", func(t *testing.T) {
		calls := 0
		handler := idempotency.Middleware(store, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"success":false}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b3/transitions", strings.NewReader("{}"))
		req.Header.Set(idempotency.HeaderKey, "key-conflict")

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req.Clone(ctx))
			assert.Equal(t, http.StatusConflict, rec.Code)
		}
		assert.Equal(t, 1, calls, "a 409 is deterministic and replayable")
	})
}
