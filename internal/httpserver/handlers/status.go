package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/factsync/internal/scheduler"
)

type watcherStatus struct {
	Running   bool   `json:"running"`
	LastKnown string `json:"last_known_ip,omitempty"`
}

type statusResponse struct {
	PublisherID string             `json:"publisher_id,omitempty"`
	Loops       []scheduler.Status `json:"loops"`
	Watcher     *watcherStatus     `json:"watcher,omitempty"`
}

// Status reports every loop's counters and the watcher's last observation.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			PublisherID: d.PublisherID,
			Loops:       make([]scheduler.Status, 0, len(d.Loops)),
		}
		for _, l := range d.Loops {
			resp.Loops = append(resp.Loops, l.Status())
		}
		if d.Watcher != nil {
			resp.Watcher = &watcherStatus{
				Running:   d.Watcher.Running(),
				LastKnown: d.Watcher.LastKnown(),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
