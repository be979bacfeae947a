package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yashasviy/cave-treasure-api/auth"
	"github.com/yashasviy/cave-treasure-api/models"
	"github.com/yashasviy/cave-treasure-api/treasure"
)

// MaxTransferBody caps the transfer request body in bytes.
const MaxTransferBody = 4 << 10

// TransferHandler moves treasure from the thief balance to the holder
// balance. The body's owner must name the holder balance or be empty; keys
// are server configuration, never client input.
func TransferHandler(engine treasure.Engine, logger *slog.Logger) http.HandlerFunc {
	logger = resolveLogger(logger)
	ledger := engine.Reader.Ledger
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxTransferBody)

		var req models.TransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_body", "body must be {owner, amount} with an integer amount")
			return
		}

		owner := strings.TrimSpace(req.Owner)
		if owner != "" && owner != ledger.HolderKey {
			writeError(w, http.StatusBadRequest, "unknown_owner", "owner must be "+ledger.HolderKey)
			return
		}

		principal, _ := auth.PrincipalFrom(r.Context())
		result, err := engine.Transfer(r.Context(), treasure.Request{
			From:      ledger.ThiefKey,
			To:        ledger.HolderKey,
			Amount:    req.Amount,
			Initiator: principal.Name,
		})
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, result.Balances())
	}
}
