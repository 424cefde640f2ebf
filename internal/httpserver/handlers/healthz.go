package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
)

type buildInfo struct {
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

type healthzResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	PublisherID   string    `json:"publisher_id,omitempty"`
	Loops         []string  `json:"loops"`
	Watcher       bool      `json:"watcher"`
	Build         buildInfo `json:"build"`
}

// Healthz is liveness only: it answers as long as the process serves HTTP and
// never touches the store.
func Healthz(d deps.Deps) http.HandlerFunc {
	loops := make([]string, 0, len(d.Loops))
	for _, l := range d.Loops {
		loops = append(loops, l.Name())
	}
	build := buildInfo{
		Version:   d.Version,
		Commit:    d.Commit,
		BuildDate: d.BuildDate,
		GoVersion: d.GoVersion,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(healthzResponse{
			Status:        "ok",
			UptimeSeconds: d.Now().Sub(d.StartTime).Seconds(),
			PublisherID:   d.PublisherID,
			Loops:         loops,
			Watcher:       d.Watcher != nil,
			Build:         build,
		})
	}
}
