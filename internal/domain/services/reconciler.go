package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"civicpulse/internal/infrastructure/cache"
	"civicpulse/pkg/logger"
)

// DriftStore finds and repairs department copies that disagree with the
// primary report record.
type DriftStore interface {
	FindIndexDrift(ctx context.Context, limit int) ([]uuid.UUID, error)
	RepairIndex(ctx context.Context, id uuid.UUID) error
}

const reconcilerLockName = "reconciler"

// Reconciler periodically rewrites drifted department copies from the primary
// record. Only one replica runs a pass at a time.
type Reconciler struct {
	store     DriftStore
	locker    Locker
	interval  time.Duration
	batchSize int
	lockTTL   time.Duration
	logger    *logger.Logger
}

// NewReconciler creates a new reconciler. locker may be nil for single-replica runs.
func NewReconciler(store DriftStore, locker Locker, interval time.Duration, batchSize int, lockTTL time.Duration, log *logger.Logger) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Reconciler{
		store:     store,
		locker:    locker,
		interval:  interval,
		batchSize: batchSize,
		lockTTL:   lockTTL,
		logger:    log.WithComponent("reconciler"),
	}
}

// RunOnce runs a single pass and returns how many reports were repaired.
// A pass skipped because another replica holds the lock repairs nothing.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	if r.locker != nil {
		lockKey := cache.LeaderLockKey(reconcilerLockName)
		token, ok, err := r.locker.AcquireLock(ctx, lockKey, r.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire reconciler lock: %w", err)
		}
		if !ok {
			r.logger.Debug().Msg("another replica is reconciling, skipping")
			return 0, nil
		}
		defer func() {
			if _, err := r.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				r.logger.Warn().Err(err).Msg("failed to release reconciler lock")
			}
		}()
	}

	ids, err := r.store.FindIndexDrift(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find drift: %w", err)
	}

	repaired := 0
	for _, id := range ids {
		log := r.logger.WithReport(id.String()).WithStage("reconcile")
		log.Error().Msg("department index out of sync with primary record, repairing")

		if err := r.store.RepairIndex(ctx, id); err != nil {
			log.Error().Err(err).Msg("failed to repair department index")
			continue
		}
		repaired++
	}

	if len(ids) > 0 {
		r.logger.Info().Int("found", len(ids)).Int("repaired", repaired).Msg("reconciliation pass finished")
	}
	return repaired, nil
}

// Start runs a pass immediately and then every interval until ctx ends
func (r *Reconciler) Start(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")

	r.runLogged(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runLogged(ctx)
		}
	}
}

func (r *Reconciler) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error().Err(err).Msg("reconciliation pass failed")
	}
}
