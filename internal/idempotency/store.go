// Package idempotency makes client-side retries of mutating endpoints safe:
// the first outcome for a caller-supplied key is cached for 24 hours and
// replayed verbatim on retry instead of re-executing the request.
package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultWindow is how long a cached outcome stays replayable.
const DefaultWindow = 24 * time.Hour

const keyPrefix = "idem:"

// CachedResponse is the stored outcome of a mutating request.
type CachedResponse struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

// Cacheable reports whether an outcome may be stored. Only 2xx/4xx are
// cached: a 5xx may not reflect durable server-side state, so the retry must
// re-execute.
func (r CachedResponse) Cacheable() bool {
	return (r.StatusCode >= 200 && r.StatusCode < 300) || (r.StatusCode >= 400 && r.StatusCode < 500)
}

type Store struct {
	Client *redis.Client
	Window time.Duration
}

func NewStore(client *redis.Client, window time.Duration) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{Client: client, Window: window}
}

// Get returns the cached outcome for the key, or nil when none exists.
func (s *Store) Get(ctx context.Context, key string) (*CachedResponse, error) {
	raw, err := s.Client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cached CachedResponse
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// Put stores the outcome under the key unless one is already present. SetNX
// keeps the first stored outcome authoritative when two retries race.
func (s *Store) Put(ctx context.Context, key string, resp CachedResponse) error {
	if !resp.Cacheable() {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.Client.SetNX(ctx, keyPrefix+key, raw, s.Window).Err()
}
