// Package worker runs the background jobs that keep live observers in step
// with writes made by other processes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/notify"
	"golang.org/x/sync/errgroup"
)

// Refresher re-emits an owner's records to local observers.
type Refresher interface {
	Refresh(ctx context.Context, ownerID string) error
}

// ChangeListener refreshes local observers when another process reports a
// change, and periodically sweeps every observed owner in case a message was
// lost.
type ChangeListener struct {
	bus       notify.Bus
	refresher Refresher
	owners    func() []string
	interval  time.Duration
	logger    *log.Logger
}

func NewChangeListener(bus notify.Bus, refresher Refresher, owners func() []string, interval time.Duration, logger *log.Logger) *ChangeListener {
	if logger == nil {
		logger = log.Discard()
	}
	return &ChangeListener{
		bus:       bus,
		refresher: refresher,
		owners:    owners,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleOwnerChanged refreshes the owner named in msg. Messages published by
// this process and owners nobody here observes are skipped.
func (w *ChangeListener) HandleOwnerChanged(ctx context.Context, msg *notify.OwnerChangedMessage) error {
	if msg.Origin == w.bus.Origin() {
		return nil
	}
	if !slices.Contains(w.owners(), msg.OwnerID) {
		w.logger.DebugContext(ctx, "Ignoring change for unobserved owner", log.FieldOwnerID, msg.OwnerID)
		return nil
	}

	w.logger.InfoContext(ctx, "Processing owner change",
		log.FieldOwnerID, msg.OwnerID,
		log.FieldOrigin, msg.Origin)

	if err := w.refresher.Refresh(ctx, msg.OwnerID); err != nil {
		return fmt.Errorf("refresh owner %s: %w", msg.OwnerID, err)
	}
	return nil
}

// ProcessActiveOwners refreshes every owner that has observers. It keeps
// going past individual failures and reports how many there were.
func (w *ChangeListener) ProcessActiveOwners(ctx context.Context) error {
	owners := w.owners()
	if len(owners) == 0 {
		return nil
	}

	successCount, errorCount := 0, 0
	for _, owner := range owners {
		if err := w.refresher.Refresh(ctx, owner); err != nil {
			w.logger.ErrorContext(ctx, "Failed to refresh owner", log.FieldOwnerID, owner, log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.DebugContext(ctx, "Periodic refresh completed",
		"total", len(owners),
		"refreshed", successCount,
		"errors", errorCount)

	if errorCount > 0 {
		return fmt.Errorf("refresh failed for %d of %d owners", errorCount, len(owners))
	}
	return nil
}

// Run consumes the bus and runs the periodic sweep until ctx is done.
func (w *ChangeListener) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.bus.Consume(gctx, w.HandleOwnerChanged)
	})

	if w.interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
					if err := w.ProcessActiveOwners(gctx); err != nil {
						w.logger.WarnContext(gctx, "Periodic refresh had failures", log.FieldError, err)
					}
				}
			}
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
