// Package probe produces fact snapshots: the host's public address and a
// timezone conversion table.
package probe

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/factsync/internal/domain"
)

// Probe produces one snapshot per call. Expected failure modes (timeouts,
// bad status, malformed payloads) are reported as *Failure, never panics.
type Probe interface {
	Probe(ctx context.Context) (domain.Snapshot, error)
}

// Failure is a transient, expected probe failure.
type Failure struct {
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "probe failed: " + f.Reason
	}
	return "probe failed: " + f.Reason + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// IsFailure reports whether err is (or wraps) a probe Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
