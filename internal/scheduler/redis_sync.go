package scheduler

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/factsync/internal/domain"
	"github.com/MrSnakeDoc/factsync/internal/logger"
	conn "github.com/MrSnakeDoc/factsync/internal/redis"
)

// Fetcher reads back the last record published for a kind.
type Fetcher interface {
	Fetch(ctx context.Context, kind domain.Kind) (domain.Snapshot, error)
}

// RedisSyncer primes change-only loops with the values already in the store,
// so a restart does not rewrite an unchanged fact.
type RedisSyncer struct {
	store  Fetcher
	logger logger.Logger
}

// NewRedisSyncer creates a new Redis syncer
func NewRedisSyncer(store Fetcher, log logger.Logger) *RedisSyncer {
	return &RedisSyncer{
		store:  store,
		logger: log,
	}
}

// Sync seeds each change-only loop whose name is a known kind. Missing keys are
// normal on a fresh store; any other failure is logged and the loop starts cold.
// It returns how many loops were seeded.
func (rs *RedisSyncer) Sync(ctx context.Context, loops ...*PollLoop) int {
	seeded := 0
	for _, l := range loops {
		if !l.changeOnly {
			continue
		}

		snap, err := rs.store.Fetch(ctx, domain.Kind(l.Name()))
		switch {
		case err == nil:
		case errors.Is(err, conn.ErrNotFound):
			rs.logger.Info("no previous record in redis", logger.String("loop", l.Name()))
			continue
		case errors.Is(err, conn.ErrStoreUnconfigured):
			return seeded
		default:
			rs.logger.Warn("failed to sync from redis on startup",
				logger.String("loop", l.Name()),
				logger.Error(err))
			continue
		}

		if l.Seed(snap.Identity()) {
			seeded++
			rs.logger.Info("synced last known value from redis",
				logger.String("loop", l.Name()),
				logger.String("value", snap.Identity()),
				logger.Time("observed_at", snap.ObservedAt()))
		}
	}
	return seeded
}
