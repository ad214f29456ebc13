package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/services"
	"github.com/greenloop/recircle-backend/internal/utils"
)

// Worker drains the pending-action queue. Each poll claims at most one
// action per goroutine; the conditional claim update means any number
// of replicas can run the same loop safely.
type Worker struct {
	db          *gorm.DB
	log         *logger.Logger
	actionRepo  repos.RecycleActionRepo
	actions     services.ActionService
	concurrency int
	interval    time.Duration
	staleCutoff time.Duration

	wg sync.WaitGroup
}

func New(db *gorm.DB, actionRepo repos.RecycleActionRepo, actions services.ActionService, baseLog *logger.Logger) *Worker {
	log := baseLog.With("component", "VerificationWorker")
	concurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, log)
	intervalMs := utils.GetEnvAsInt("WORKER_POLL_INTERVAL_MS", 1000, log)
	staleMin := utils.GetEnvAsInt("WORKER_STALE_CLAIM_MINUTES", 10, log)
	return &Worker{
		db:          db,
		log:         log,
		actionRepo:  actionRepo,
		actions:     actions,
		concurrency: concurrency,
		interval:    time.Duration(intervalMs) * time.Millisecond,
		staleCutoff: time.Duration(staleMin) * time.Minute,
	}
}

func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
	w.log.Info("verification worker started", "concurrency", w.concurrency, "interval", w.interval)
}

// Wait blocks until every loop has observed context cancellation.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain until the queue is empty, then go back to sleep.
			for {
				if ctx.Err() != nil {
					return
				}
				claimed, err := w.processOne(ctx)
				if err != nil {
					w.log.Warn("verification pass failed", "worker", id, "error", err)
					break
				}
				if !claimed {
					break
				}
			}
		}
	}
}

func (w *Worker) processOne(ctx context.Context) (bool, error) {
	action, err := w.actionRepo.ClaimNextPending(ctx, w.db, w.staleCutoff)
	if err != nil {
		return false, fmt.Errorf("claim next pending: %w", err)
	}
	if action == nil {
		return false, nil
	}

	w.log.Debug("claimed action", "action_id", action.ID, "user_id", action.UserID)
	// A panicking verification must not take the loop down with it; the
	// stale-claim cutoff re-queues the action later.
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("verification panic", "action_id", action.ID, "panic", r)
			}
		}()
		if err := w.actions.Process(ctx, action); err != nil {
			w.log.Error("verification failed", "action_id", action.ID, "error", err)
		}
	}()
	return true, nil
}
