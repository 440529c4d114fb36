package idempotency

import (
	"bytes"
	"fmt"
	"net/http"

	"ms-bookings/internal/logger"
)

// HeaderKey is where callers supply their idempotency key.
const HeaderKey = "Idempotency-Key"

// responseRecorder buffers the handler's output so it can be cached after the
// status is known.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// Middleware replays the cached outcome for a repeated Idempotency-Key and
// records first-time outcomes. Requests without the header pass through
// untouched.
func Middleware(store *Store, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			cached, err := store.Get(r.Context(), key)
			if err != nil {
				// The cache being down must not block mutations; execute and
				// skip recording.
				log.Warn("IDEMPOTENCY", fmt.Sprintf("cache lookup failed for key %s: %v", key, err))
				next.ServeHTTP(w, r)
				return
			}
			if cached != nil {
				log.Info("IDEMPOTENCY", fmt.Sprintf("replaying cached response for key %s", key))
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(cached.StatusCode)
				w.Write(cached.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			outcome := CachedResponse{
				StatusCode:  rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := store.Put(r.Context(), key, outcome); err != nil {
				log.Warn("IDEMPOTENCY", fmt.Sprintf("failed to cache response for key %s: %v", key, err))
			}
		})
	}
}
