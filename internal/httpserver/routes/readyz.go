package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/factsync/internal/httpserver/handlers"
)

func init() {
	Register(Group{Name: "liveness", Register: func(r chi.Router, d deps.Deps) {
		r.Get("/healthz", handlers.Healthz(d))
	}})
	Register(Group{Name: "readiness", Guarded: true, Register: func(r chi.Router, d deps.Deps) {
		r.Get("/readyz", handlers.Readyz(d))
	}})
}
