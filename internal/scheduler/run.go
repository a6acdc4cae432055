package scheduler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ncolony/ncolony/internal/clock"
)

// Run launches cfg.Args every cfg.Frequency until ctx is cancelled. Each
// tick's invocation runs in its own goroutine so a previous tick still
// running (or still being TERM'd/KILL'd by its own timers) never blocks the
// next one from starting.
func Run(ctx context.Context, cfg Config, clk clock.Clock, log *logrus.Entry) {
	ticker := clk.NewTicker(cfg.Frequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			go Tick(cfg, clk, log)
		}
	}
}
