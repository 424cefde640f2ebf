package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/factsync/internal/httpserver/mw"
	"github.com/MrSnakeDoc/factsync/internal/logger"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

// Group is a named set of ops routes. Guarded groups sit behind the CIDR
// allow-list; Extra middlewares run after the guard.
type Group struct {
	Name     string
	Guarded  bool
	Extra    func(d deps.Deps) []Middleware
	Register Registrar
}

var registry []Group

// Register adds a group. Called from init in each route file.
func Register(g Group) {
	registry = append(registry, g)
}

// RegisterAll mounts every group on r and returns their names in mount order.
// Called once from server.New().
func RegisterAll(r chi.Router, d deps.Deps) []string {
	names := make([]string, 0, len(registry))
	for _, g := range registry {
		var mws []Middleware
		if g.Guarded {
			mws = append(mws, mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
		}
		if g.Extra != nil {
			mws = append(mws, g.Extra(d)...)
		}

		if len(mws) == 0 {
			g.Register(r, d)
		} else {
			g.Register(r.With(mws...), d)
		}

		names = append(names, g.Name)
		if d.Logger != nil {
			d.Logger.Debug("ops routes mounted",
				logger.String("group", g.Name),
				logger.Bool("guarded", g.Guarded))
		}
	}
	return names
}
