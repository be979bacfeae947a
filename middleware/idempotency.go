package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yashasviy/cave-treasure-api/auth"
)

const (
	// IdempotencyHeader is the standard HTTP header for idempotency keys
	IdempotencyHeader = "Idempotency-Key"

	// IdempotencyHitHeader marks a response replayed from the cache
	IdempotencyHitHeader = "X-Idempotency-Hit"

	// IdempotencyCacheTTL defines how long responses are cached in Redis
	IdempotencyCacheTTL = 24 * time.Hour

	// LockTimeout prevents indefinite locks if a request crashes
	LockTimeout = 10 * time.Second

	// HandlerTimeout bounds a keyed request so it gives up waiting for the
	// transfer lock well before its in-flight lock can expire
	HandlerTimeout = LockTimeout / 2

	// RedisKeyPrefix for namespacing idempotency keys
	RedisKeyPrefix = "idempotency:"

	// LockKeyPrefix for namespacing in-flight request locks
	LockKeyPrefix = "lock:idempotency:"
)

// responseWriterWrapper captures the status code and body of a response so
// successful ones can be replayed.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriterWrapper) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Idempotency replays the cached response of a request whose Idempotency-Key
// was already processed, and answers 409 while a request with the same key
// is still in flight. Keys are scoped to the authenticated principal so one
// caller can never replay another's transfer.
//
// Flow:
//  1. Extract idempotency key from request headers
//  2. Check Redis cache for existing response
//  3. Acquire a SET NX lock to stop concurrent duplicates
//  4. Process request if not cached, within HandlerTimeout
//  5. Store 2xx responses in Redis with TTL
func Idempotency(rdb *redis.Client, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = resolveLogger(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			idempotencyKey := r.Header.Get(IdempotencyHeader)
			if idempotencyKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			scope := "anonymous"
			if principal, ok := auth.PrincipalFrom(ctx); ok {
				scope = principal.Name
			}
			cacheKey := RedisKeyPrefix + scope + ":" + idempotencyKey
			lockKey := LockKeyPrefix + scope + ":" + idempotencyKey

			cachedResponse, err := rdb.Get(ctx, cacheKey).Result()
			if err == nil {
				logger.Info("idempotent response replayed",
					"event", "idempotency_hit",
					"module", "middleware",
					"layer", "transport",
					"idempotency_key", idempotencyKey,
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(IdempotencyHitHeader, "true")
				_, _ = w.Write([]byte(cachedResponse))
				return
			}
			if err != redis.Nil {
				logger.Error("idempotency cache read failed",
					"event", "idempotency_read_failed",
					"module", "middleware",
					"layer", "transport",
					"error", err.Error(),
				)
				writeError(w, http.StatusServiceUnavailable, "store_unavailable", "idempotency cache unavailable")
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "processing", LockTimeout).Result()
			if err != nil {
				logger.Error("idempotency lock acquisition failed",
					"event", "idempotency_lock_failed",
					"module", "middleware",
					"layer", "transport",
					"error", err.Error(),
				)
				writeError(w, http.StatusServiceUnavailable, "store_unavailable", "idempotency cache unavailable")
				return
			}
			if !acquired {
				logger.Warn("concurrent duplicate request",
					"event", "idempotency_conflict",
					"module", "middleware",
					"layer", "transport",
					"idempotency_key", idempotencyKey,
				)
				writeError(w, http.StatusConflict, "conflict", "a request with this idempotency key is currently being processed")
				return
			}

			// The response and lock outlive a client that hangs up mid-request.
			detached := context.WithoutCancel(ctx)
			defer func() {
				if err := rdb.Del(detached, lockKey).Err(); err != nil {
					logger.Error("idempotency lock release failed",
						"event", "idempotency_unlock_failed",
						"module", "middleware",
						"layer", "transport",
						"error", err.Error(),
					)
				}
			}()

			wrapper := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			bounded, cancel := context.WithTimeout(ctx, HandlerTimeout)
			defer cancel()
			next.ServeHTTP(wrapper, r.WithContext(bounded))

			if wrapper.statusCode < 200 || wrapper.statusCode >= 300 {
				return
			}
			if err := rdb.Set(detached, cacheKey, wrapper.body.String(), IdempotencyCacheTTL).Err(); err != nil {
				logger.Error("idempotency cache write failed",
					"event", "idempotency_write_failed",
					"module", "middleware",
					"layer", "transport",
					"error", err.Error(),
				)
				return
			}
			logger.Debug("idempotent response cached",
				"event", "idempotency_stored",
				"module", "middleware",
				"layer", "transport",
				"idempotency_key", idempotencyKey,
				"ttl", IdempotencyCacheTTL.String(),
			)
		})
	}
}
