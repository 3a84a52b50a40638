package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is the part of Service the janitor needs.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// RunJanitor sweeps expired records every interval until ctx is done.
// It sweeps once immediately. A non-positive interval returns at once.
// It always returns nil so it can run under an errgroup next to the server.
func RunJanitor(ctx context.Context, sw Sweeper, interval time.Duration, log *slog.Logger) error {
	if interval <= 0 || sw == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}

	log.Info("session.janitor.start", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweepOnce(ctx, sw, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("session.janitor.stop")
			return nil
		case <-ticker.C:
			sweepOnce(ctx, sw, log)
		}
	}
}

func sweepOnce(ctx context.Context, sw Sweeper, log *slog.Logger) {
	n, err := sw.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("session.janitor.sweep.fail", "err", err)
		}
		return
	}
	if n > 0 {
		log.Info("session.janitor.sweep", "removed", n)
	}
}
