package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/scheduler"
)

// Loop is the view of a poll loop the handlers need.
type Loop interface {
	Name() string
	Status() scheduler.Status
	Trigger() bool
}

// Store is the view of the store connection the handlers need.
type Store interface {
	Configured() bool
	Addr() string
	Ping(ctx context.Context) error
}

// Watcher is the view of the ip change watcher the handlers need.
type Watcher interface {
	Running() bool
	LastKnown() string
}

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	TimeNow          func() time.Time // for testing, defaults to time.Now
	AllowedCIDRS     []string         // IPs allowed to access the ops endpoints
	TrustProxy       bool             // true if running behind a trusted reverse proxy
	PublisherID      string           // stamped into every published record
	Store            Store            // nil when no store is wired
	StorePingTimeout time.Duration    // bound on the readiness ping
	Loops            []Loop           // running poll loops
	Watcher          Watcher          // nil when the watcher is disabled
	Metrics          http.Handler     // Prometheus exposition handler
	Ready            func() bool      // true once every unit has started
}

// Now returns the current time using TimeNow when set.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
