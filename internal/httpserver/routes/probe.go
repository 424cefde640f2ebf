package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/factsync/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/factsync/internal/httpserver/mw"
)

// probeRate allows a short burst of manual triggers per client.
var probeRate = mw.RateLimitConfig{Burst: 3, PerMinute: 6}

func init() {
	Register(Group{
		Name:    "trigger",
		Guarded: true,
		Extra: func(d deps.Deps) []Middleware {
			cfg := probeRate
			cfg.TrustProxy = d.TrustProxy
			return []Middleware{mw.RateLimit(cfg, d.Logger)}
		},
		Register: func(r chi.Router, d deps.Deps) {
			r.Post("/probe", handlers.Probe(d))
		},
	})
}
