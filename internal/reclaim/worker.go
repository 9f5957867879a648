// Package reclaim implements the background sweep that releases holds for
// checkout sessions past their expiry.
package reclaim

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/checkout-engine/internal/domain/reservation"
	"github.com/example/checkout-engine/internal/metrics"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 5 * time.Minute

// Releaser releases all reservations of one session. Satisfied by
// checkout.Manager.
type Releaser interface {
	ReleaseReservations(ctx context.Context, sessionID, reason string) error
}

// ExpiredLister finds timed-out active sessions. Satisfied by
// checkout.SessionRepository.
type ExpiredLister interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Locker guards a sweep cycle so only one instance runs it. Optional.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

type Worker struct {
	sessions  ExpiredLister
	releaser  Releaser
	scheduler Scheduler
	lock      Locker
	batch     int
	parallel  int
	clock     func() time.Time
	logger    zerolog.Logger
}

type WorkerConfig struct {
	Sessions  ExpiredLister
	Releaser  Releaser
	Scheduler Scheduler
	Lock      Locker // optional
	Batch     int    // max sessions per cycle, default 100
	Parallel  int    // concurrent releases, default 4
	Clock     func() time.Time
}

func NewWorker(cfg WorkerConfig, logger zerolog.Logger) *Worker {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 4
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Worker{
		sessions:  cfg.Sessions,
		releaser:  cfg.Releaser,
		scheduler: cfg.Scheduler,
		lock:      cfg.Lock,
		batch:     cfg.Batch,
		parallel:  cfg.Parallel,
		clock:     cfg.Clock,
		logger:    logger.With().Str("component", "reclaim-worker").Logger(),
	}
}

// Run drives sweep cycles from the scheduler until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("reclaim worker started")
	return w.scheduler.Run(ctx, w.Sweep)
}

// Sweep runs one reclaim cycle. Each expired session is released in its own
// transaction; one failure is logged and never aborts the rest of the
// cycle. Racing a live confirm on the same session is safe: the confirm
// re-checks expiry inside its own transaction.
func (w *Worker) Sweep(ctx context.Context) error {
	if w.lock != nil {
		release, ok, err := w.lock.TryLock(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("sweep lock unavailable")
			return nil
		}
		if !ok {
			w.logger.Debug().Msg("sweep already running elsewhere, skipping cycle")
			return nil
		}
		defer release()
	}

	metrics.SweepCycles.Inc()
	ids, err := w.sessions.ListExpired(ctx, w.clock(), w.batch)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to list expired sessions")
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(w.parallel)
	for _, id := range ids {
		g.Go(func() error {
			if err := w.releaser.ReleaseReservations(ctx, id, reservation.ReleaseReasonExpired); err != nil {
				metrics.SweepFailures.Inc()
				w.logger.Error().Err(err).Str("session_id", id).Msg("failed to release expired session")
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info().Int("sessions", len(ids)).Msg("reclaim sweep completed")
	return nil
}
