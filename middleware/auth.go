package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yashasviy/cave-treasure-api/auth"
	"github.com/yashasviy/cave-treasure-api/models"
)

// Authenticate verifies the bearer credential and stores the principal in
// the request context. Requests without a valid credential get 401.
func Authenticate(gate auth.Gate, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = resolveLogger(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
				return
			}

			principal, err := gate.Verify(r.Context(), token)
			if err != nil {
				logger.Warn("bearer verification failed",
					"event", "auth_verify_failed",
					"module", "middleware",
					"layer", "transport",
					"path", r.URL.Path,
					"error", err.Error(),
				)
				if errors.Is(err, auth.ErrUnauthenticated) {
					writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal", "credential verification unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// Authorize rejects the request unless the principal satisfies op. It runs
// before the handler, so a denied request never touches the balance store.
func Authorize(policy auth.Policy, op auth.Operation, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = resolveLogger(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
				return
			}
			if err := policy.Authorize(op, principal.Capabilities); err != nil {
				logger.Warn("operation denied",
					"event", "authz_denied",
					"module", "middleware",
					"layer", "transport",
					"operation", string(op),
					"principal", principal.Name,
					"error", err.Error(),
				)
				writeError(w, http.StatusForbidden, "forbidden", "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: code, Message: message})
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
