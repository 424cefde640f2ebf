package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/factsync/internal/logger"
)

type probeResponse struct {
	Triggered []string `json:"triggered"`
	Pending   []string `json:"pending,omitempty"`
}

// Probe wakes every loop from its sleep. 202 if at least one trigger was
// queued, 429 if all loops already had one pending.
func Probe(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := probeResponse{Triggered: []string{}}
		for _, l := range d.Loops {
			if l.Trigger() {
				resp.Triggered = append(resp.Triggered, l.Name())
				continue
			}
			resp.Pending = append(resp.Pending, l.Name())
		}

		status := http.StatusAccepted
		if len(resp.Triggered) == 0 {
			status = http.StatusTooManyRequests
			d.Logger.Warn("manual probe already pending",
				logger.String("remote_ip", r.RemoteAddr))
		} else {
			d.Logger.Info("manual probe triggered via endpoint",
				logger.Strings("loops", resp.Triggered),
				logger.String("remote_ip", r.RemoteAddr))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			d.Logger.Debug("failed to write response", logger.Error(err))
		}
	}
}
