package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/logger"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func textServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func hangingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestIPProbe(endpoints []string, rec *sleepRecorder, opts ...IPOption) *IPProbe {
	base := []IPOption{
		WithTimeout(100 * time.Millisecond),
		WithSleep(rec.sleep),
	}
	return NewIPProbe(&http.Client{}, endpoints, logger.Nop(), append(base, opts...)...)
}

func TestIPProbe_FirstEndpointWins(t *testing.T) {
	var firstHits, secondHits atomic.Int32
	first := textServer(t, http.StatusOK, "203.0.113.7\n", &firstHits)
	second := textServer(t, http.StatusOK, "198.51.100.9", &secondHits)

	rec := &sleepRecorder{}
	p := newTestIPProbe([]string{first.URL, second.URL}, rec)

	snap, err := p.Probe(context.Background())
	require.NoError(t, err)

	ip, ok := snap.(domain.IPSnapshot)
	require.True(t, ok)
	assert.Equal(t, "203.0.113.7", ip.Address)
	assert.Equal(t, int32(1), firstHits.Load())
	assert.Equal(t, int32(0), secondHits.Load(), "remaining endpoints must not be consulted")
	assert.Empty(t, rec.calls)
}

func TestIPProbe_TimeoutsThenNextEndpoint(t *testing.T) {
	var hangHits, okHits atomic.Int32
	hanging := hangingServer(t, &hangHits)
	second := textServer(t, http.StatusOK, "198.51.100.9", &okHits)

	rec := &sleepRecorder{}
	p := newTestIPProbe([]string{hanging.URL, second.URL}, rec, WithAttempts(2))

	snap, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9", snap.Identity())
	assert.Equal(t, int32(2), hangHits.Load())
	assert.Equal(t, int32(1), okHits.Load())
	assert.Equal(t, []time.Duration{time.Second}, rec.calls, "one 2^0 backoff between the two timed-out attempts")
}

func TestIPProbe_TimeoutBackoffSchedule(t *testing.T) {
	var hits atomic.Int32
	hanging := hangingServer(t, &hits)

	rec := &sleepRecorder{}
	p := newTestIPProbe([]string{hanging.URL}, rec, WithAttempts(3))

	_, err := p.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, IsFailure(err))
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.calls)
}

func TestIPProbe_NonTimeoutErrorsAbandonEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "oops"},
		{"rate limited", http.StatusTooManyRequests, "203.0.113.7"},
		{"html body", http.StatusOK, "<html>captcha</html>"},
		{"empty body", http.StatusOK, "   "},
		{"truncated address", http.StatusOK, "203.0.113"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var badHits, goodHits atomic.Int32
			bad := textServer(t, tt.status, tt.body, &badHits)
			good := textServer(t, http.StatusOK, "2001:db8::7", &goodHits)

			rec := &sleepRecorder{}
			p := newTestIPProbe([]string{bad.URL, good.URL}, rec)

			snap, err := p.Probe(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "2001:db8::7", snap.Identity())
			assert.Equal(t, int32(1), badHits.Load(), "no retry on non-timeout errors")
			assert.Empty(t, rec.calls)
		})
	}
}

func TestIPProbe_AllEndpointsExhausted(t *testing.T) {
	a := textServer(t, http.StatusBadGateway, "", nil)
	b := textServer(t, http.StatusOK, "not an ip", nil)

	p := newTestIPProbe([]string{a.URL, b.URL}, &sleepRecorder{})

	snap, err := p.Probe(context.Background())
	assert.Nil(t, snap)
	require.Error(t, err)
	assert.True(t, IsFailure(err))
	assert.Contains(t, err.Error(), "exhausted")
}

func TestIPProbe_NoEndpoints(t *testing.T) {
	p := newTestIPProbe(nil, &sleepRecorder{})
	_, err := p.Probe(context.Background())
	assert.True(t, IsFailure(err))
}

func TestIPProbe_CancelledContext(t *testing.T) {
	var hits atomic.Int32
	srv := textServer(t, http.StatusOK, "203.0.113.7", &hits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestIPProbe([]string{srv.URL, srv.URL}, &sleepRecorder{})
	_, err := p.Probe(ctx)
	require.Error(t, err)
	assert.True(t, IsFailure(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIPProbe_StampsObservationTime(t *testing.T) {
	srv := textServer(t, http.StatusOK, "203.0.113.7", nil)
	fixed := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	p := newTestIPProbe([]string{srv.URL}, &sleepRecorder{}, WithIPClock(func() time.Time { return fixed }))
	snap, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed, snap.ObservedAt())
}

func TestTimeoutBackoff(t *testing.T) {
	assert.Equal(t, time.Second, timeoutBackoff(0))
	assert.Equal(t, 2*time.Second, timeoutBackoff(1))
	assert.Equal(t, 4*time.Second, timeoutBackoff(2))
	assert.Equal(t, 8*time.Second, timeoutBackoff(3))
	assert.Equal(t, 8*time.Second, timeoutBackoff(12))
}

func TestNewHTTPClientSetsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.UserAgent())
		_, _ = fmt.Fprint(w, "203.0.113.7")
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPClientConfig{Timeout: time.Second, UserAgent: "factsync/test"})
	p := NewIPProbe(client, []string{srv.URL}, logger.Nop())

	_, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "factsync/test", ua.Load())
}
