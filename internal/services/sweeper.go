package services

import (
	"context"
	"sync"
	"time"

	"github.com/baharkarakas/welfare-backend/internal/models"
	repo "github.com/baharkarakas/welfare-backend/internal/repository"
	"github.com/baharkarakas/welfare-backend/internal/worker"
	"go.uber.org/zap"
)

// Reconciler settles a single stale contribution.
type Reconciler interface {
	ReconcileIfStale(ctx context.Context, txID string) (models.Contribution, error)
}

// Sweeper finds pending contributions past the staleness threshold and
// reconciles each one on the worker pool.
type Sweeper struct {
	contributions repo.Contributions
	rec           Reconciler
	pool          *worker.Pool
	log           *zap.Logger
	staleAfter    time.Duration
	batch         int
	now           clock
}

func NewSweeper(contributions repo.Contributions, rec Reconciler, pool *worker.Pool, log *zap.Logger, staleAfter time.Duration, batch int) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		contributions: contributions,
		rec:           rec,
		pool:          pool,
		log:           log,
		staleAfter:    staleAfter,
		batch:         batch,
		now:           utcNow,
	}
}

type SweepReport struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Sweep reconciles one batch and waits for it to finish.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	stale, err := s.contributions.ListStalePending(ctx, s.now().Add(-s.staleAfter), s.batch)
	if err != nil {
		return SweepReport{}, err
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = SweepReport{Checked: len(stale)}
	)
	for _, c := range stale {
		txID := c.TransactionID
		wg.Add(1)
		err := s.pool.Submit(ctx, func(context.Context) {
			defer wg.Done()
			got, err := s.rec.ReconcileIfStale(ctx, txID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				s.log.Warn("reconcile failed", zap.String("transaction_id", txID), zap.Error(err))
				report.Pending++
			case got.Status == models.ContributionCompleted:
				report.Completed++
			case got.Status == models.ContributionFailed:
				report.Failed++
			default:
				report.Pending++
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return report, err
		}
	}
	wg.Wait()

	if report.Checked > 0 {
		s.log.Info("reconcile sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("completed", report.Completed),
			zap.Int("failed", report.Failed),
			zap.Int("pending", report.Pending),
		)
	}
	return report, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("reconcile sweep failed", zap.Error(err))
			}
		}
	}
}
