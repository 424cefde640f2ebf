package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/probe"
)

type probeResult struct {
	snap domain.Snapshot
	err  error
}

// scriptedProbe replays results in order and repeats the last one.
type scriptedProbe struct {
	mu      sync.Mutex
	results []probeResult
	calls   int
}

func (p *scriptedProbe) Probe(context.Context) (domain.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.results[min(p.calls, len(p.results)-1)]
	p.calls++
	return r.snap, r.err
}

func (p *scriptedProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func ipResult(addr string) probeResult {
	return probeResult{snap: domain.IPSnapshot{Address: addr, At: time.Unix(1700000000, 0).UTC()}}
}

func failedResult(reason string) probeResult {
	return probeResult{err: &probe.Failure{Reason: reason}}
}

// recordingPublisher counts writes and can fail on demand.
type recordingPublisher struct {
	mu     sync.Mutex
	writes []string
	errFn  func(call int) error
	calls  int
}

func (p *recordingPublisher) Publish(_ context.Context, s domain.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.errFn != nil {
		if err := p.errFn(p.calls); err != nil {
			return err
		}
	}
	p.writes = append(p.writes, s.Identity())
	return nil
}

func (p *recordingPublisher) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

type sleepCall struct {
	d        time.Duration
	wakeable bool
}

// sleepRecorder records every sleep and cancels the run after limit sleeps.
type sleepRecorder struct {
	limit  int
	cancel context.CancelFunc
	calls  []sleepCall
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	s.calls = append(s.calls, sleepCall{d: d, wakeable: wake != nil})
	if len(s.calls) >= s.limit {
		s.cancel()
		return context.Canceled
	}
	return ctx.Err()
}

func (s *sleepRecorder) durations() []time.Duration {
	out := make([]time.Duration, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.d
	}
	return out
}

var errWrite = errors.New("publish example.key: store connection failure")
