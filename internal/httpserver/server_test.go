package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/factsync/internal/config"
	"github.com/MrSnakeDoc/factsync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/factsync/internal/httpserver/routes"
	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/metrics"
	"github.com/MrSnakeDoc/factsync/internal/scheduler"
)

type fakeLoop struct {
	name    string
	status  scheduler.Status
	trigger bool
}

func (l *fakeLoop) Name() string             { return l.name }
func (l *fakeLoop) Status() scheduler.Status { return l.status }
func (l *fakeLoop) Trigger() bool            { return l.trigger }

type fakeStore struct {
	configured bool
	err        error
}

func (s fakeStore) Configured() bool           { return s.configured }
func (s fakeStore) Addr() string               { return "redis:6379" }
func (s fakeStore) Ping(context.Context) error { return s.err }

type fakeWatcher struct{}

func (fakeWatcher) Running() bool     { return true }
func (fakeWatcher) LastKnown() string { return "203.0.113.7" }

var started = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func testDeps() deps.Deps {
	return deps.Deps{
		Logger:      logger.Nop(),
		StartTime:   started,
		Version:     "v1.2.3",
		TimeNow:     func() time.Time { return started.Add(90 * time.Second) },
		PublisherID: "pub-1",
		Loops: []deps.Loop{
			&fakeLoop{name: "public_ip", trigger: true, status: scheduler.Status{Name: "public_ip", Iterations: 4, LastKnown: "203.0.113.7"}},
			&fakeLoop{name: "server_time", trigger: true, status: scheduler.Status{Name: "server_time", Failures: 2}},
		},
		Watcher: fakeWatcher{},
		Metrics: metrics.New().Handler(),
		Ready:   func() bool { return true },
	}
}

func serve(t *testing.T, d deps.Deps, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	srv := New(&config.Config{ListenAddr: ":0"}, logger.Nop(), d)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status        string   `json:"status"`
		UptimeSeconds float64  `json:"uptime_seconds"`
		PublisherID   string   `json:"publisher_id"`
		Loops         []string `json:"loops"`
		Watcher       bool     `json:"watcher"`
		Build         struct {
			Version string `json:"version"`
		} `json:"build"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "v1.2.3", body.Build.Version)
	assert.Equal(t, "pub-1", body.PublisherID)
	assert.Equal(t, []string{"public_ip", "server_time"}, body.Loops)
	assert.True(t, body.Watcher)
	assert.InDelta(t, 90.0, body.UptimeSeconds, 0.001)
}

func TestHealthzWithoutWatcher(t *testing.T) {
	d := testDeps()
	d.Watcher = nil
	d.Loops = nil
	rec := serve(t, d, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loops":[]`)
	assert.Contains(t, rec.Body.String(), `"watcher":false`)
}

func TestRouteGroups(t *testing.T) {
	names := routes.RegisterAll(chi.NewRouter(), testDeps())
	assert.ElementsMatch(t, []string{"liveness", "readiness", "status", "trigger"}, names)
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		store    deps.Store
		ready    bool
		wantCode int
		wantMode string
	}{
		{"no store wired", nil, true, http.StatusOK, "disabled"},
		{"store unconfigured", fakeStore{}, true, http.StatusOK, "disabled"},
		{"store healthy", fakeStore{configured: true}, true, http.StatusOK, "optimal"},
		{"store down", fakeStore{configured: true, err: errors.New("connection refused")}, true, http.StatusOK, "degraded"},
		{"not started", fakeStore{configured: true}, false, http.StatusServiceUnavailable, "optimal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDeps()
			d.Store = tt.store
			d.Ready = func() bool { return tt.ready }

			rec := serve(t, d, http.MethodGet, "/readyz")
			assert.Equal(t, tt.wantCode, rec.Code)

			var body struct {
				Ready bool `json:"ready"`
				Store struct {
					Mode string `json:"mode"`
				} `json:"store"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.ready, body.Ready)
			assert.Equal(t, tt.wantMode, body.Store.Mode)
		})
	}
}

func TestStatus(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		PublisherID string             `json:"publisher_id"`
		Loops       []scheduler.Status `json:"loops"`
		Watcher     struct {
			Running   bool   `json:"running"`
			LastKnown string `json:"last_known_ip"`
		} `json:"watcher"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pub-1", body.PublisherID)
	require.Len(t, body.Loops, 2)
	assert.Equal(t, int64(4), body.Loops[0].Iterations)
	assert.Equal(t, 2, body.Loops[1].Failures)
	assert.True(t, body.Watcher.Running)
	assert.Equal(t, "203.0.113.7", body.Watcher.LastKnown)
}

func TestProbeTrigger(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodPost, "/probe")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"triggered":["public_ip","server_time"]}`, rec.Body.String())

	d := testDeps()
	for _, l := range d.Loops {
		l.(*fakeLoop).trigger = false
	}
	rec = serve(t, d, http.MethodPost, "/probe")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"), "pending trigger, not the rate limiter")

	rec = serve(t, testDeps(), http.MethodGet, "/probe")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProbeRateLimited(t *testing.T) {
	srv := New(&config.Config{}, logger.Nop(), testDeps())

	codes := make([]int, 0, 4)
	for range 4 {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/probe", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{202, 202, 202, 429}, codes)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(t, testDeps(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAllowList(t *testing.T) {
	d := testDeps()
	d.AllowedCIDRS = []string{"10.0.0.0/8"}

	// httptest requests come from 192.0.2.1
	assert.Equal(t, http.StatusForbidden, serve(t, d, http.MethodGet, "/status").Code)
	assert.Equal(t, http.StatusForbidden, serve(t, d, http.MethodGet, "/metrics").Code)
	assert.Equal(t, http.StatusForbidden, serve(t, d, http.MethodPost, "/probe").Code)
	assert.Equal(t, http.StatusForbidden, serve(t, d, http.MethodGet, "/readyz").Code)
	assert.Equal(t, http.StatusOK, serve(t, d, http.MethodGet, "/healthz").Code, "liveness stays open")

	d.AllowedCIDRS = []string{"192.0.2.0/24"}
	assert.Equal(t, http.StatusOK, serve(t, d, http.MethodGet, "/status").Code)
}

func TestServeAndStop(t *testing.T) {
	srv := New(&config.Config{ListenAddr: "127.0.0.1:0"}, logger.Nop(), testDeps())

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	// give the listener a moment, then shut down
	time.Sleep(20 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
