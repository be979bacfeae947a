package api

import (
	"log/slog"
	"net/http"

	"github.com/yashasviy/cave-treasure-api/models"
	"github.com/yashasviy/cave-treasure-api/treasure"
)

// BalanceHandler returns one balance, seeding it if it has expired.
func BalanceHandler(engine treasure.Engine, key string, logger *slog.Logger) http.HandlerFunc {
	logger = resolveLogger(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		amount, err := engine.Balance(r.Context(), key)
		if err != nil {
			writeDomainError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, models.TreasureModel{Owner: key, Amount: amount})
	}
}
