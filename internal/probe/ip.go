package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/utils"
)

const (
	// DefaultIPAttempts is the number of tries per endpoint, timeouts only.
	DefaultIPAttempts = 3
	// DefaultIPTimeout bounds one request to one endpoint.
	DefaultIPTimeout = 10 * time.Second
	// maxTimeoutBackoff caps the 2^attempt wait between timed-out attempts.
	maxTimeoutBackoff = 8 * time.Second
	// maxBodyBytes is more than enough for any textual IPv6 address.
	maxBodyBytes = 256
)

var errBadStatus = errors.New("unexpected status")

// IPProbe asks a prioritized list of lookup endpoints for the public address.
type IPProbe struct {
	client    *http.Client
	endpoints []string
	attempts  int
	timeout   time.Duration
	logger    logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// IPOption configures an IPProbe.
type IPOption func(*IPProbe)

// WithAttempts sets the per-endpoint attempt count (timeouts only).
func WithAttempts(n int) IPOption {
	return func(p *IPProbe) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) IPOption {
	return func(p *IPProbe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithSleep replaces the backoff sleeper (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) IPOption {
	return func(p *IPProbe) { p.sleep = fn }
}

// WithIPClock replaces the clock used to stamp snapshots (tests).
func WithIPClock(fn func() time.Time) IPOption {
	return func(p *IPProbe) { p.now = fn }
}

// NewIPProbe creates a probe over endpoints, tried in order.
func NewIPProbe(client *http.Client, endpoints []string, log logger.Logger, opts ...IPOption) *IPProbe {
	p := &IPProbe{
		client:    client,
		endpoints: endpoints,
		attempts:  DefaultIPAttempts,
		timeout:   DefaultIPTimeout,
		logger:    log,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns the first valid address any endpoint yields.
func (p *IPProbe) Probe(ctx context.Context) (domain.Snapshot, error) {
	if len(p.endpoints) == 0 {
		return nil, &Failure{Reason: "no lookup endpoints configured"}
	}

	var lastErr error
	for _, endpoint := range p.endpoints {
		snap, err := p.queryEndpoint(ctx, endpoint)
		if err == nil {
			p.logger.Debug("public ip resolved",
				logger.String("endpoint", endpoint),
				logger.String("ip", snap.Address))
			return snap, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, &Failure{Reason: "probe interrupted", Err: ctx.Err()}
		}
	}

	return nil, &Failure{
		Reason: fmt.Sprintf("all %d lookup endpoints exhausted", len(p.endpoints)),
		Err:    lastErr,
	}
}

// queryEndpoint retries one endpoint on timeouts only; any other error abandons it.
func (p *IPProbe) queryEndpoint(ctx context.Context, endpoint string) (domain.IPSnapshot, error) {
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		snap, err := p.fetch(ctx, endpoint)
		if err == nil {
			return snap, nil
		}
		lastErr = err

		if !isTimeout(err) || ctx.Err() != nil {
			p.logger.Warn("lookup endpoint failed, trying next",
				logger.String("endpoint", endpoint),
				logger.Error(err))
			return domain.IPSnapshot{}, err
		}

		p.logger.Warn("lookup endpoint timed out",
			logger.String("endpoint", endpoint),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", p.attempts),
			logger.Error(err))

		if attempt < p.attempts-1 {
			if err := p.sleep(ctx, timeoutBackoff(attempt)); err != nil {
				return domain.IPSnapshot{}, err
			}
		}
	}
	return domain.IPSnapshot{}, lastErr
}

func (p *IPProbe) fetch(ctx context.Context, endpoint string) (domain.IPSnapshot, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return domain.IPSnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.IPSnapshot{}, err
	}
	defer utils.DrainAndClose(resp.Body, 4<<10)

	if resp.StatusCode != http.StatusOK {
		return domain.IPSnapshot{}, fmt.Errorf("%w: %d", errBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return domain.IPSnapshot{}, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return domain.IPSnapshot{}, fmt.Errorf("%w: body larger than %d bytes", domain.ErrInvalidAddress, maxBodyBytes)
	}

	return domain.NewIPSnapshot(string(body), p.now())
}

// timeoutBackoff is 2^attempt seconds, capped.
func timeoutBackoff(attempt int) time.Duration {
	if attempt > 3 {
		return maxTimeoutBackoff
	}
	d := time.Duration(1<<attempt) * time.Second
	if d > maxTimeoutBackoff {
		return maxTimeoutBackoff
	}
	return d
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
