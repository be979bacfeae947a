package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/yashasviy/cave-treasure-api/auth"
	"github.com/yashasviy/cave-treasure-api/middleware"
	"github.com/yashasviy/cave-treasure-api/models"
	"github.com/yashasviy/cave-treasure-api/treasure"
)

// Deps is everything the router wires together.
type Deps struct {
	Engine       treasure.Engine
	Gate         auth.Gate
	Policy       auth.Policy
	PublicConfig models.AppConfig

	// Idempotency guards the transfer route when set.
	Idempotency func(http.Handler) http.Handler

	Logger *slog.Logger
}

// NewRouter builds the HTTP surface. Authorization runs as route middleware
// ahead of each handler so a denied request never reaches the store.
func NewRouter(deps Deps) http.Handler {
	logger := resolveLogger(deps.Logger)
	ledger := deps.Engine.Reader.Ledger

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/public/config.json", PublicConfigHandler(deps.PublicConfig))

	r.Route("/cave", func(r chi.Router) {
		r.Use(middleware.Authenticate(deps.Gate, logger))

		guard := func(op auth.Operation) func(http.Handler) http.Handler {
			return middleware.Authorize(deps.Policy, op, logger)
		}

		r.With(guard(auth.OpReadThief)).Get("/thief-balance", BalanceHandler(deps.Engine, ledger.ThiefKey, logger))
		r.With(guard(auth.OpReadHolder)).Get("/holder-balance", BalanceHandler(deps.Engine, ledger.HolderKey, logger))
		r.With(guard(auth.OpAuthorities)).Get("/authorities", AuthoritiesHandler())

		transfer := r.With(guard(auth.OpTransfer))
		if deps.Idempotency != nil {
			transfer = transfer.With(deps.Idempotency)
		}
		transfer.Post("/transfer", TransferHandler(deps.Engine, logger))
	})

	return r
}
