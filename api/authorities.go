package api

import (
	"net/http"

	"github.com/yashasviy/cave-treasure-api/auth"
	"github.com/yashasviy/cave-treasure-api/models"
)

// AuthoritiesHandler echoes the caller's name and capability tags. It is a
// diagnostics aid and grants nothing.
func AuthoritiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "bearer token required")
			return
		}
		authorities := principal.Capabilities
		if authorities == nil {
			authorities = []string{}
		}
		writeJSON(w, http.StatusOK, models.Authorities{Name: principal.Name, Authorities: authorities})
	}
}

// PublicConfigHandler serves the client configuration without authentication.
func PublicConfigHandler(cfg models.AppConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, cfg)
	}
}
