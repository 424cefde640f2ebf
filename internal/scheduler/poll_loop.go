package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/metrics"
	"github.com/MrSnakeDoc/factsync/internal/probe"
	conn "github.com/MrSnakeDoc/factsync/internal/redis"
)

// DefaultPollInterval is the sleep after a successful or skipped iteration.
const DefaultPollInterval = 60 * time.Second

// errStopped is returned by the sleeper when Stop interrupts it.
var errStopped = errors.New("poll loop stopped")

// Outcome is how one iteration ended.
type Outcome string

const (
	OutcomePublished    Outcome = "published"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeUnconfigured Outcome = "unconfigured"
	OutcomeFailed       Outcome = "failed"
)

// Publisher writes a snapshot to the store.
type Publisher interface {
	Publish(ctx context.Context, s domain.Snapshot) error
}

// Status is a read-only view of a loop.
type Status struct {
	Name        string    `json:"name"`
	ChangeOnly  bool      `json:"change_only"`
	Iterations  int64     `json:"iterations"`
	Failures    int       `json:"consecutive_failures"`
	CoolingDown bool      `json:"cooling_down"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	LastKnown   string    `json:"last_known,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success,omitzero"`
}

// LoopConfig parameterizes a PollLoop.
type LoopConfig struct {
	Name       string
	Interval   time.Duration
	ChangeOnly bool
	Policy     Policy
}

type sleepFunc func(ctx context.Context, d time.Duration, wake <-chan struct{}) error

// PollLoop drives probe then publish on a schedule with failure backoff.
type PollLoop struct {
	name       string
	probe      probe.Probe
	publisher  Publisher
	logger     logger.Logger
	metrics    *metrics.Metrics
	interval   time.Duration
	changeOnly bool
	policy     Policy

	stopOnce      sync.Once
	stopCh        chan struct{}
	manualTrigger chan struct{}
	sleep         sleepFunc
	now           func() time.Time

	mu                 sync.Mutex
	status             Status
	unconfiguredLogged bool
}

// LoopOption configures a PollLoop.
type LoopOption func(*PollLoop)

// WithLoopMetrics records iteration outcomes.
func WithLoopMetrics(m *metrics.Metrics) LoopOption {
	return func(l *PollLoop) { l.metrics = m }
}

// WithLoopSleep replaces the sleeper (tests).
func WithLoopSleep(fn sleepFunc) LoopOption {
	return func(l *PollLoop) { l.sleep = fn }
}

// WithLoopClock replaces the clock used for LastSuccess (tests).
func WithLoopClock(fn func() time.Time) LoopOption {
	return func(l *PollLoop) { l.now = fn }
}

// NewPollLoop creates a loop. Zero config fields take the defaults.
func NewPollLoop(cfg LoopConfig, p probe.Probe, pub Publisher, log logger.Logger, opts ...LoopOption) *PollLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	def := DefaultPolicy()
	if cfg.Policy.Threshold <= 0 {
		cfg.Policy.Threshold = def.Threshold
	}
	if cfg.Policy.Cooldown <= 0 {
		cfg.Policy.Cooldown = def.Cooldown
	}
	if cfg.Policy.MaxBackoff <= 0 {
		cfg.Policy.MaxBackoff = def.MaxBackoff
	}

	l := &PollLoop{
		name:          cfg.Name,
		probe:         p,
		publisher:     pub,
		logger:        log.With(logger.String("loop", cfg.Name)),
		interval:      cfg.Interval,
		changeOnly:    cfg.ChangeOnly,
		policy:        cfg.Policy,
		stopCh:        make(chan struct{}),
		manualTrigger: make(chan struct{}, 1),
		now:           time.Now,
		status:        Status{Name: cfg.Name, ChangeOnly: cfg.ChangeOnly},
	}
	l.sleep = l.sleepInterruptible
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the loop name.
func (l *PollLoop) Name() string { return l.name }

// Run loops until Stop is called or ctx is done. The stop signal is honored
// between iterations; ctx cancellation also aborts in-flight I/O.
func (l *PollLoop) Run(ctx context.Context) error {
	l.logger.Info("poll loop started",
		logger.Duration("interval", l.interval),
		logger.Bool("change_only", l.changeOnly),
		logger.Int("escalation_threshold", l.policy.Threshold))
	defer l.logger.Info("poll loop stopped")

	for {
		if l.stopRequested(ctx) {
			return nil
		}

		delay, escalated := l.iterate(ctx)

		var wake <-chan struct{}
		if !escalated {
			wake = l.manualTrigger
		}
		err := l.sleep(ctx, delay, wake)

		if err != nil {
			return nil
		}
		if escalated {
			l.endCooldown()
		}
	}
}

// Stop asks the loop to exit at its next check point. Safe to call twice.
func (l *PollLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Trigger wakes the loop from its normal sleep. It reports false when a
// trigger is already pending.
func (l *PollLoop) Trigger() bool {
	select {
	case l.manualTrigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Seed sets the last known value of a change-only loop that has not published
// yet. It reports whether the value was taken.
func (l *PollLoop) Seed(identity string) bool {
	if !l.changeOnly || identity == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status.LastKnown != "" {
		return false
	}
	l.status.LastKnown = identity
	return true
}

// Status returns a copy of the loop state.
func (l *PollLoop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// iterate runs one iteration and returns the sleep that follows it.
func (l *PollLoop) iterate(ctx context.Context) (time.Duration, bool) {
	l.mu.Lock()
	l.status.Iterations++
	iteration := l.status.Iterations
	l.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("unexpected panic in poll loop",
				logger.Critical(),
				logger.Int64("iteration", iteration),
				logger.Any("panic", r))
			panic(r)
		}
	}()

	l.logger.Debug("iteration start", logger.Int64("iteration", iteration))

	outcome, err := l.runOnce(ctx)
	l.metrics.RecordIteration(l.name, string(outcome))

	l.mu.Lock()
	defer l.mu.Unlock()

	l.status.LastOutcome = outcome
	if outcome != OutcomeFailed {
		l.status.Failures = 0
		l.status.LastError = ""
		if outcome != OutcomeUnconfigured {
			l.status.LastSuccess = l.now()
			l.metrics.RecordSuccess(l.name, float64(l.status.LastSuccess.Unix()))
		}
		l.metrics.SetFailures(l.name, 0)
		return l.interval, false
	}

	l.status.Failures++
	l.status.LastError = err.Error()
	l.metrics.SetFailures(l.name, l.status.Failures)

	delay, escalate := l.policy.Next(l.status.Failures)
	if escalate {
		l.status.CoolingDown = true
		l.logger.Error("consecutive failure threshold reached, entering cooldown",
			logger.Critical(),
			logger.Int("failures", l.status.Failures),
			logger.Duration("cooldown", delay),
			logger.Error(err))
		l.metrics.RecordEscalation(l.name)
		return delay, true
	}

	l.logger.Warn("iteration failed, backing off",
		logger.Int("failures", l.status.Failures),
		logger.Duration("backoff", delay),
		logger.Error(err))
	return delay, false
}

// runOnce probes, applies change detection and publishes.
func (l *PollLoop) runOnce(ctx context.Context) (Outcome, error) {
	snap, err := l.probe.Probe(ctx)
	if err != nil {
		l.logger.Warn("probe failed", logger.Error(err))
		return OutcomeFailed, err
	}

	identity := snap.Identity()
	if l.changeOnly && identity == l.lastKnown() {
		l.logger.Debug("value unchanged, skipping publish", logger.String("value", identity))
		return OutcomeSkipped, nil
	}

	err = l.publisher.Publish(ctx, snap)
	switch {
	case err == nil:
		l.mu.Lock()
		l.status.LastKnown = identity
		l.mu.Unlock()
		return OutcomePublished, nil
	case errors.Is(err, conn.ErrStoreUnconfigured):
		l.logUnconfigured()
		return OutcomeUnconfigured, nil
	default:
		return OutcomeFailed, err
	}
}

func (l *PollLoop) lastKnown() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status.LastKnown
}

// logUnconfigured logs at info once, then at debug.
func (l *PollLoop) logUnconfigured() {
	l.mu.Lock()
	first := !l.unconfiguredLogged
	l.unconfiguredLogged = true
	l.mu.Unlock()

	if first {
		l.logger.Info("store not configured, publish skipped")
		return
	}
	l.logger.Debug("store not configured, publish skipped")
}

func (l *PollLoop) endCooldown() {
	l.mu.Lock()
	l.status.Failures = 0
	l.status.CoolingDown = false
	l.mu.Unlock()

	l.metrics.SetFailures(l.name, 0)
	l.logger.Info("cooldown finished, resuming")
}

func (l *PollLoop) stopRequested(ctx context.Context) bool {
	select {
	case <-l.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleepInterruptible waits for d. Stop and ctx abort the wait; wake ends it early.
func (l *PollLoop) sleepInterruptible(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-wake:
		l.logger.Info("manual trigger, probing early")
		return nil
	case <-l.stopCh:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
