package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
)

type storeStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode"`
	Addr   string `json:"addr,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready bool        `json:"ready"`
	Store storeStatus `json:"store"`
}

// Readyz reports 200 once every unit has started. A degraded store does not
// make the process unready: publishing retries on its own.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := d.Ready == nil || d.Ready()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if ready {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(readyzResponse{
			Ready: ready,
			Store: checkStore(r.Context(), d),
		})
	}
}

func checkStore(ctx context.Context, d deps.Deps) storeStatus {
	if d.Store == nil || !d.Store.Configured() {
		return storeStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "publishing-disabled",
		}
	}

	timeout := d.StorePingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return storeStatus{
			OK:     false,
			Mode:   "degraded",
			Addr:   d.Store.Addr(),
			Impact: "publishes-failing",
			Error:  err.Error(),
		}
	}

	return storeStatus{
		OK:   true,
		Mode: "optimal",
		Addr: d.Store.Addr(),
	}
}
