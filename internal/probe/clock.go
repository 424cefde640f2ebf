package probe

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/logger"
)

// OffsetSource reports how far the local clock is from a reference clock.
type OffsetSource interface {
	Offset(ctx context.Context) (time.Duration, error)
}

// ClockProbe renders the current instant in every configured zone.
type ClockProbe struct {
	zones         []domain.Zone
	now           func() time.Time
	offset        OffsetSource
	offsetTimeout time.Duration
	logger        logger.Logger
}

// ClockOption configures a ClockProbe.
type ClockOption func(*ClockProbe)

// WithClock replaces time.Now (tests).
func WithClock(fn func() time.Time) ClockOption {
	return func(p *ClockProbe) { p.now = fn }
}

// WithOffsetSource attaches an optional reference clock, bounded by timeout.
func WithOffsetSource(src OffsetSource, timeout time.Duration) ClockOption {
	return func(p *ClockProbe) {
		p.offset = src
		p.offsetTimeout = timeout
	}
}

func NewClockProbe(zones []domain.Zone, log logger.Logger, opts ...ClockOption) *ClockProbe {
	p := &ClockProbe{
		zones:         zones,
		now:           time.Now,
		offsetTimeout: 2 * time.Second,
		logger:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe never fails. The offset is best effort and omitted when unavailable.
func (p *ClockProbe) Probe(ctx context.Context) (domain.Snapshot, error) {
	instant := p.now().UTC()

	snap := domain.ClockSnapshot{
		UTC:   instant,
		Zones: domain.BuildZoneTable(instant, p.zones),
	}

	if p.offset != nil {
		octx, cancel := context.WithTimeout(ctx, p.offsetTimeout)
		d, err := p.offset.Offset(octx)
		cancel()
		if err != nil {
			p.logger.Debug("clock offset unavailable", logger.Error(err))
		} else {
			snap.Offset = &d
		}
	}

	return snap, nil
}
