package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bavena95/mode-app/pkg/db"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ProcessingLister lists records still waiting on the provider.
type ProcessingLister interface {
	ListProcessingGenerations(ctx context.Context, limit int) ([]db.Generation, error)
}

type GenerationReconciler interface {
	Reconcile(ctx context.Context, gen *db.Generation) (*db.Generation, error)
}

// Reconciler periodically reconciles processing records so they reach a
// terminal state even if nobody asks for their status.
type Reconciler struct {
	lister   ProcessingLister
	target   GenerationReconciler
	interval time.Duration
	batch    int
	workers  int
}

func NewReconciler(lister ProcessingLister, target GenerationReconciler, interval time.Duration, batch, workers int) *Reconciler {
	return &Reconciler{lister: lister, target: target, interval: interval, batch: batch, workers: workers}
}

// Run ticks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	log.Infof("Reconciler: started, interval %s, batch %d, workers %d", r.interval, r.batch, r.workers)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Reconciler: stopped")
			return
		case <-ticker.C:
			if n, err := r.RunOnce(ctx); err != nil {
				log.Errorf("Reconciler: pass failed after %d records: %v", n, err)
			} else if n > 0 {
				log.Debugf("Reconciler: reconciled %d records", n)
			}
		}
	}
}

// RunOnce reconciles one batch and returns how many records it visited. A
// failing record does not stop the others; all failures are joined.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	gens, err := r.lister.ListProcessingGenerations(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(r.workers)
	for i := range gens {
		gen := &gens[i]
		g.Go(func() error {
			if _, err := r.target.Reconcile(ctx, gen); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(gens), errors.Join(errs...)
}
