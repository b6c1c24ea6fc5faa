// Package app wires the sync engine into long-running application services.
package app

import (
	"context"
	"log"
	"time"

	"github.com/ternmail/tern/internal/syncengine"
)

// Worker drives periodic background sync passes for one account. It is
// independent of the interactive request path; the local store is the only
// thing the two share.
type Worker struct {
	engine   *syncengine.Engine
	interval time.Duration
}

// NewWorker creates a Worker syncing at the given interval.
func NewWorker(engine *syncengine.Engine, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{engine: engine, interval: interval}
}

// Run performs an immediate pass and then one per interval until the context
// is canceled. Errors are logged and the next tick proceeds; a failed pass
// keeps whatever progress its committed chunks made.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[sync] worker started, interval %s", w.interval)
	w.pass(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sync] worker stopped")
			return
		case <-ticker.C:
			w.pass(ctx)
		}
	}
}

func (w *Worker) pass(ctx context.Context) {
	start := time.Now()
	if err := w.engine.SyncAccount(ctx); err != nil {
		log.Printf("[sync] pass failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[sync] pass completed in %s", time.Since(start).Round(time.Millisecond))
}
