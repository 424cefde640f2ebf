package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/metrics"
	conn "github.com/MrSnakeDoc/factsync/internal/redis"
)

//go:generate mockgen -destination=mocks/mock_conn.go -package=mocks -source=pipeline.go Conn

const (
	// DefaultPublishAttempts is the number of writes tried per Publish.
	DefaultPublishAttempts = 3
	// maxRetryBackoff caps the 2^attempt wait between failed reconnects.
	maxRetryBackoff = 8 * time.Second
)

// ErrSerialization marks a snapshot that could not be encoded. Never retried.
var ErrSerialization = errors.New("serialization failure")

// Conn is the part of the store connection the pipeline depends on.
type Conn interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Reconnect(ctx context.Context) error
}

// Pipeline serializes snapshots and writes them with bounded retry.
type Pipeline struct {
	conn        Conn
	logger      logger.Logger
	metrics     *metrics.Metrics
	attempts    int
	publisherID string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAttempts sets the write attempts per Publish.
func WithAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.attempts = n
		}
	}
}

// WithPublisherID overrides the generated instance id.
func WithPublisherID(id string) Option {
	return func(p *Pipeline) { p.publisherID = id }
}

// WithMetrics records publish results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces the clock used for updated_at (tests).
func WithClock(fn func() time.Time) Option {
	return func(p *Pipeline) { p.now = fn }
}

// WithSleep replaces the retry sleeper (tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = fn }
}

// NewPipeline creates a pipeline over c.
func NewPipeline(c Conn, log logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		conn:        c,
		logger:      log,
		attempts:    DefaultPublishAttempts,
		publisherID: uuid.NewString(),
		now:         time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublisherID is stamped into every record this pipeline writes.
func (p *Pipeline) PublisherID() string { return p.publisherID }

// Publish writes s under its kind's key. Connection failures are retried after
// asking the connection to re-establish; anything else is returned at once.
func (p *Pipeline) Publish(ctx context.Context, s domain.Snapshot) error {
	key, value, err := p.encode(s)
	if err != nil {
		p.metrics.RecordPublish("unknown", "serialization_error")
		return err
	}

	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		err := p.conn.Put(ctx, key, value)
		if err == nil {
			p.logger.Info("published",
				logger.String("key", key),
				logger.String("value", s.Identity()),
				logger.Int("attempt", attempt+1))
			p.metrics.RecordPublish(key, "ok")
			return nil
		}

		switch {
		case errors.Is(err, conn.ErrStoreUnconfigured):
			p.metrics.RecordPublish(key, "unconfigured")
			return err
		case !errors.Is(err, conn.ErrStoreConnection):
			p.logger.Error("store rejected write",
				logger.String("key", key),
				logger.Error(err))
			p.metrics.RecordPublish(key, "error")
			return err
		}

		lastErr = err
		p.logger.Warn("publish attempt failed",
			logger.String("key", key),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", p.attempts),
			logger.Error(err))

		if attempt == p.attempts-1 {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		p.metrics.RecordPublishRetry(key)
		if rerr := p.conn.Reconnect(ctx); rerr != nil {
			p.logger.Warn("reconnect failed, backing off",
				logger.String("key", key),
				logger.Duration("backoff", retryBackoff(attempt)),
				logger.Error(rerr))
			if err := p.sleep(ctx, retryBackoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	p.logger.Error("publish failed",
		logger.String("key", key),
		logger.Int("attempts", p.attempts),
		logger.Error(lastErr))
	p.metrics.RecordPublish(key, "failed")
	return fmt.Errorf("publish %s: %w", key, lastErr)
}

// Fetch reads back the record stored for kind and returns its snapshot.
func (p *Pipeline) Fetch(ctx context.Context, kind domain.Kind) (domain.Snapshot, error) {
	key, err := KeyFor(kind)
	if err != nil {
		return nil, err
	}

	raw, err := p.conn.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	switch kind {
	case domain.KindPublicIP:
		var rec domain.PublicIPRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrSerialization, key, err)
		}
		return rec.Snapshot(), nil
	default:
		var rec domain.ServerTimeRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrSerialization, key, err)
		}
		return rec.Snapshot(), nil
	}
}

func (p *Pipeline) encode(s domain.Snapshot) (string, string, error) {
	if s == nil {
		return "", "", fmt.Errorf("%w: nil snapshot", ErrSerialization)
	}
	key, err := KeyFor(s.Kind())
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	rec, err := domain.NewRecord(s, p.now(), p.publisherID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", "", fmt.Errorf("%w: marshal %s: %v", ErrSerialization, key, err)
	}
	return key, string(data), nil
}

// retryBackoff is 2^attempt seconds, capped.
func retryBackoff(attempt int) time.Duration {
	if attempt > 3 {
		return maxRetryBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxRetryBackoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
