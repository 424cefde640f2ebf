package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

const defaultNTPCacheTTL = 10 * time.Minute

// NTPOffset measures the local clock offset against an NTP server and caches
// the answer so the clock loop does not query the server every iteration.
type NTPOffset struct {
	server string
	ttl    time.Duration
	query  func(server string, opts ntp.QueryOptions) (*ntp.Response, error)
	now    func() time.Time

	mu        sync.Mutex
	offset    time.Duration
	checkedAt time.Time
}

func NewNTPOffset(server string) *NTPOffset {
	return &NTPOffset{
		server: server,
		ttl:    defaultNTPCacheTTL,
		query:  ntp.QueryWithOptions,
		now:    time.Now,
	}
}

func (n *NTPOffset) Offset(ctx context.Context) (time.Duration, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.checkedAt.IsZero() && n.now().Sub(n.checkedAt) < n.ttl {
		return n.offset, nil
	}

	opts := ntp.QueryOptions{Timeout: 2 * time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		opts.Timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	resp, err := n.query(n.server, opts)
	if err != nil {
		return 0, fmt.Errorf("ntp query %s: %w", n.server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("ntp response from %s: %w", n.server, err)
	}

	n.offset = resp.ClockOffset
	n.checkedAt = n.now()
	return n.offset, nil
}
