package sched

import (
	"context"
	"errors"
	"time"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/infra/redis"
	"catalog-enrichment/internal/usecase"

	"github.com/rs/zerolog"
)

const leaderKey = "reconciler:leader"

// Reconciler periodically returns stale processing items to the queue.
// This covers workers that crashed or lost their database connection after
// claiming a batch: their leases expire and someone else picks the items up.
//
// Only one instance runs a sweep at a time; a redis lock elects the leader
// per tick so replicas do not double-scan.
type Reconciler struct {
	queue      *usecase.QueueUseCase
	locker     redis.Locker
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a claim must be to reclaim
	log        *zerolog.Logger
}

func NewReconciler(queue *usecase.QueueUseCase, locker redis.Locker, interval, staleAfter time.Duration, logger *zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	l := logger.With().Str("component", "reconciler").Logger()
	return &Reconciler{queue: queue, locker: locker, interval: interval, staleAfter: staleAfter, log: &l}
}

func (w *Reconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *Reconciler) tick(ctx context.Context) {
	token, err := w.locker.TryLock(ctx, leaderKey, w.interval)
	if err != nil {
		if !errors.Is(err, domain.ErrLockUnavailable) {
			w.log.Error().Err(err).Msg("leader lock")
		}
		return
	}
	defer func() {
		if err := w.locker.Unlock(context.Background(), leaderKey, token); err != nil {
			w.log.Warn().Err(err).Msg("leader unlock")
		}
	}()

	jobIDs, err := w.queue.UnfinishedJobs(ctx, 100)
	if err != nil {
		w.log.Error().Err(err).Msg("list unfinished jobs")
		return
	}
	for _, jobID := range jobIDs {
		moved, err := w.queue.RequeueStale(ctx, jobID, w.staleAfter)
		if err != nil {
			w.log.Error().Err(err).Str("job_id", jobID).Msg("requeue stale")
			continue
		}
		if moved > 0 {
			if _, err := w.queue.UpdateJobStatus(ctx, jobID); err != nil {
				w.log.Error().Err(err).Str("job_id", jobID).Msg("refresh status")
			}
		}
	}
}
