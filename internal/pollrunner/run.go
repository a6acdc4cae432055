// Package pollrunner drives a poll function on every tick of an injected
// Clock, throttling repeated error logging so a persistently broken
// filesystem does not flood the log.
package pollrunner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ncolony/ncolony/internal/clock"
)

// Run invokes poll() once per tick of freq until ctx is cancelled. poll
// errors are logged, rate-limited to one message per freq per distinct error
// string, and never stop the loop: a single bad poll is not fatal.
func Run(ctx context.Context, clk clock.Clock, freq time.Duration, log *logrus.Entry, poll func() error) error {
	ticker := clk.NewTicker(freq)
	defer ticker.Stop()

	limiter := rate.NewLimiter(rate.Every(freq), 1)
	lastErr := ""

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			if err := poll(); err != nil {
				msg := err.Error()
				if msg != lastErr || limiter.Allow() {
					log.WithError(err).Warn("poll failed, will retry next tick")
				}
				lastErr = msg
			} else {
				lastErr = ""
			}
		}
	}
}
