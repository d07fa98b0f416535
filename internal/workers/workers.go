// Package workers runs the background sweep that resolves challenges no
// check-in request will ever touch again: a missed day only becomes
// observable when the user stops showing up.
package workers

import (
	"context"
	"log"
	"time"
)

// Sweeper is implemented by the challenge service.
type Sweeper interface {
	SweepMissedDays(ctx context.Context) error
}

// StartSweeper runs the missed-day sweep on a fixed interval until the
// context is cancelled. One run at boot, then every tick.
func StartSweeper(ctx context.Context, s Sweeper, interval time.Duration) {
	go func() {
		run := func() {
			sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()

			if err := s.SweepMissedDays(sweepCtx); err != nil {
				log.Printf("Missed-day sweep failed: %v", err)
			}
		}

		run()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
