package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/linesmerrill/camp-cad-api/logging"
	"github.com/linesmerrill/camp-cad-api/models"
)

// Target is one destination for change events
type Target interface {
	Name() string
	Send(ctx context.Context, event models.ChangeEvent) error
}

// Fanout delivers every change event to all of its targets concurrently
type Fanout struct {
	mu      sync.RWMutex
	targets []Target
}

// NewFanout returns a fan-out over targets
func NewFanout(targets ...Target) *Fanout {
	return &Fanout{targets: targets}
}

// Add registers another target
func (f *Fanout) Add(t Target) {
	f.mu.Lock()
	f.targets = append(f.targets, t)
	f.mu.Unlock()
}

// Notify delivers event and logs any failed target. It never fails the caller.
func (f *Fanout) Notify(ctx context.Context, event models.ChangeEvent) {
	if err := f.Deliver(ctx, event); err != nil {
		logging.FromContext(ctx).Warnw("change notification failed",
			"entityType", event.EntityType,
			"entityID", event.EntityID,
			"changeKind", event.ChangeKind,
			"error", err,
		)
	}
}

// Deliver sends event to every target and returns the combined failures
func (f *Fanout) Deliver(ctx context.Context, event models.ChangeEvent) error {
	f.mu.RLock()
	targets := append([]Target(nil), f.targets...)
	f.mu.RUnlock()

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			if err := t.Send(ctx, event); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", t.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
