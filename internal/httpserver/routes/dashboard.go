package routes

import (
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/concierge/internal/dashboard"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/deps"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/mw"
)

func init() { Register("dashboard", registerDashboard) }

// registerDashboard mounts the dashboard API at the root and, when set, under the route prefix.
func registerDashboard(r chi.Router, d deps.Deps) {
	mount := func(r chi.Router) {
		r.Use(mw.Authenticate(d.JWTSecret, d.Logger))

		r.With(mw.RequireRole(d.Logger, dashboard.RoleAdmin)).
			Get("/admin", handlers.Dashboard(d, dashboard.RoleAdmin))
		r.With(mw.RequireRole(d.Logger, dashboard.RoleReceptionist, dashboard.RoleAdmin)).
			Get("/receptionist", handlers.Dashboard(d, dashboard.RoleReceptionist))
		r.With(mw.RequireRole(d.Logger, dashboard.RoleHousekeeper, dashboard.RoleAdmin)).
			Get("/housekeeper", handlers.Dashboard(d, dashboard.RoleHousekeeper))
		r.With(mw.RequireRole(d.Logger, dashboard.RoleAdmin)).
			Post("/cache/clear", handlers.ClearCache(d))
	}

	r.Group(mount)
	if prefix := strings.TrimRight(d.RoutePrefix, "/"); prefix != "" {
		r.Route(prefix, mount)
	}
}
