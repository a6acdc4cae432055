// Command ncolony-beatcheck is the standalone companion process that polls
// the configuration directory for stale heartbeats and writes RESTART
// messages for them.
package main

import (
	"context"
	"flag"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ncolony/ncolony/internal/beatcheck"
	"github.com/ncolony/ncolony/internal/clock"
	"github.com/ncolony/ncolony/internal/pollrunner"
)

func main() {
	log := logrus.WithField("component", "ncolony-beatcheck")

	configDir := flag.String("config", "", "configuration directory")
	messagesDir := flag.String("messages", "", "messages directory")
	pollSeconds := flag.Float64("poll-frequency-seconds", 10, "poll frequency in seconds")
	flag.Parse()

	if *configDir == "" || *messagesDir == "" {
		log.Fatal("-config and -messages are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM, unix.SIGINT)
	defer stop()

	clk := clock.Real{}
	checker := beatcheck.New(*configDir, clk, log)
	counter := 0

	freq := time.Duration(*pollSeconds * float64(time.Second))
	err := pollrunner.Run(ctx, clk, freq, log, func() error {
		return beatcheck.Tick(checker, *messagesDir, &counter, log)
	})
	if err != nil && err != context.Canceled {
		log.WithError(err).Fatal("ncolony-beatcheck exited with error")
	}
}
