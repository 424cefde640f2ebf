package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/logger"
	"github.com/MrSnakeDoc/factsync/internal/metrics"
	"github.com/MrSnakeDoc/factsync/internal/probe"
)

const (
	// DefaultWatchInterval is the watcher's probe interval.
	DefaultWatchInterval = time.Hour
	// DefaultStopTimeout bounds the wait in Stop.
	DefaultStopTimeout = 2 * time.Second
)

var (
	// ErrAlreadyRunning is returned by a second Start.
	ErrAlreadyRunning = errors.New("watcher already running")
	// ErrStopTimeout is returned when the background goroutine did not exit in time.
	ErrStopTimeout = errors.New("watcher did not stop in time")
)

// ChangeSink receives the watcher's observations.
type ChangeSink interface {
	Initial(addr string)
	Changed(oldAddr, newAddr string)
	Unchanged(addr string)
	Failed(err error)
}

// LogSink reports observations to the log and metrics.
type LogSink struct {
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

func (s LogSink) Initial(addr string) {
	s.Logger.Info("public ip observed", logger.String("ip", addr))
	s.Metrics.RecordWatcherCheck("initial")
}

func (s LogSink) Changed(oldAddr, newAddr string) {
	s.Logger.Warn("public ip changed",
		logger.String("old_ip", oldAddr),
		logger.String("new_ip", newAddr))
	s.Metrics.RecordWatcherCheck("changed")
	s.Metrics.RecordIPChange()
}

func (s LogSink) Unchanged(addr string) {
	s.Logger.Debug("public ip unchanged", logger.String("ip", addr))
	s.Metrics.RecordWatcherCheck("unchanged")
}

func (s LogSink) Failed(err error) {
	s.Logger.Warn("public ip check failed", logger.Error(err))
	s.Metrics.RecordWatcherCheck("failed")
}

// Watcher periodically checks the public address and reports changes. It never
// writes to the store and keeps its own last known value.
type Watcher struct {
	probe    probe.Probe
	sink     ChangeSink
	logger   logger.Logger
	interval time.Duration

	mu        sync.Mutex
	running   bool
	lastKnown string
	stopCh    chan struct{}
	done      chan struct{}
}

// NewWatcher creates a stopped watcher.
func NewWatcher(p probe.Probe, sink ChangeSink, log logger.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		probe:    p,
		sink:     sink,
		logger:   log,
		interval: interval,
	}
}

// Start checks once synchronously, then keeps checking in the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("watcher already running")
		return ErrAlreadyRunning
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})
	stopCh, done := w.stopCh, w.done
	w.mu.Unlock()

	w.logger.Info("watcher started", logger.Duration("interval", w.interval))
	w.check(ctx)

	go w.loop(ctx, stopCh, done)
	return nil
}

// Stop signals the background goroutine and waits up to timeout for it to exit.
func (w *Watcher) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	done := w.done
	w.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-done:
		w.logger.Info("watcher stopped")
		return nil
	case <-t.C:
		w.logger.Warn("watcher did not stop in time", logger.Duration("timeout", timeout))
		return ErrStopTimeout
	}
}

// Running reports whether Start has been called without a matching Stop.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// LastKnown returns the last observed address, empty before the first success.
func (w *Watcher) LastKnown() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastKnown
}

func (w *Watcher) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check(ctx)
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	snap, err := w.probe.Probe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			w.logger.Debug("ip check interrupted", logger.Error(err))
			return
		}
		w.sink.Failed(err)
		return
	}

	addr := snap.Identity()
	w.mu.Lock()
	old := w.lastKnown
	w.lastKnown = addr
	w.mu.Unlock()

	switch {
	case old == "":
		w.sink.Initial(addr)
	case old != addr:
		w.sink.Changed(old, addr)
	default:
		w.sink.Unchanged(addr)
	}
}
