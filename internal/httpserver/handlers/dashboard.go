package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/concierge/internal/dashboard"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/deps"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/envelope"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/mw"
	"github.com/MrSnakeDoc/concierge/internal/logger"
)

// Dashboard serves the dashboard of role for the authenticated caller.
func Dashboard(d deps.Deps, role dashboard.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := mw.CallerFromContext(r.Context())

		res, err := d.Dashboards.Dashboard(r.Context(), role, caller)
		switch {
		case err == nil:
			envelope.Data(w, res.Payload, res.Cached)
		case errors.Is(err, dashboard.ErrAuthenticationMissing):
			envelope.Fail(w, http.StatusUnauthorized, "User ID is required", "")
		default:
			d.Logger.Error("dashboard failed",
				logger.String("role", string(role)),
				logger.String("user_id", caller.UserID),
				logger.Error(err))
			envelope.Fail(w, http.StatusInternalServerError,
				"Failed to load "+string(role)+" dashboard", dashboard.ErrAggregationFailure.Error())
		}
	}
}

// ClearCache evicts every cached dashboard.
func ClearCache(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := mw.CallerFromContext(r.Context())

		if err := d.Dashboards.ClearCache(r.Context()); err != nil {
			d.Logger.Error("dashboard cache clear failed", logger.Error(err))
			envelope.Fail(w, http.StatusInternalServerError,
				"Failed to clear dashboard cache", dashboard.ErrCacheClearFailure.Error())
			return
		}

		d.Logger.Info("dashboard cache cleared via endpoint",
			logger.String("user_id", caller.UserID))
		envelope.Message(w, http.StatusOK, "Dashboard cache cleared")
	}
}
