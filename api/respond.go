package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yashasviy/cave-treasure-api/models"
	"github.com/yashasviy/cave-treasure-api/treasure"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps treasure errors onto HTTP responses. A partial write
// is checked first because it also matches ErrStoreUnavailable.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var partial *treasure.PartialWriteError
	switch {
	case errors.Is(err, treasure.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, treasure.ErrUnknownBalance):
		writeError(w, http.StatusBadRequest, "unknown_owner", err.Error())
	case errors.Is(err, treasure.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient_funds", err.Error())
	case errors.As(err, &partial):
		logger.Error("transfer left balances inconsistent",
			"event", "transfer_partial_write",
			"module", "api",
			"layer", "transport",
			"written", partial.Written,
			"failed", partial.Failed,
			"error", err.Error(),
		)
		writeError(w, http.StatusInternalServerError, "partial_write", err.Error())
	case errors.Is(err, treasure.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "balance store unavailable")
	case errors.Is(err, treasure.ErrLockUnavailable):
		writeError(w, http.StatusServiceUnavailable, "lock_unavailable", "transfer lock unavailable")
	default:
		logger.Error("unexpected error",
			"event", "api_unexpected_error",
			"module", "api",
			"layer", "transport",
			"error", err.Error(),
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
