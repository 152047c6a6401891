package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/concierge/internal/httpserver/deps"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/concierge/internal/httpserver/mw"
)

func init() { Register("infra", registerInfra) }

func registerInfra(r chi.Router, d deps.Deps) {
	ops := r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
	ops.Get("/infra", handlers.Infra(d))
	ops.Post("/infra/probe", handlers.TriggerProbe(d))
}
