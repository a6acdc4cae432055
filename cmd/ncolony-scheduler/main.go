// Command ncolony-scheduler runs one command periodically, terminating it if
// it overruns its allotted timeout and killing it if it still hasn't exited
// after the grace period.
package main

import (
	"context"
	"flag"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ncolony/ncolony/internal/clock"
	"github.com/ncolony/ncolony/internal/scheduler"
)

func main() {
	log := logrus.WithField("component", "ncolony-scheduler")

	freqSeconds := flag.Float64("frequency-seconds", 60, "how often to launch the command")
	timeoutSeconds := flag.Float64("timeout-seconds", 30, "seconds before TERM is sent")
	graceSeconds := flag.Float64("grace-seconds", 5, "seconds after TERM before KILL is sent")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal("usage: ncolony-scheduler [flags] -- <command> [args...]")
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM, unix.SIGINT)
	defer stop()

	cfg := scheduler.Config{
		Args:      args,
		Timeout:   time.Duration(*timeoutSeconds * float64(time.Second)),
		Grace:     time.Duration(*graceSeconds * float64(time.Second)),
		Frequency: time.Duration(*freqSeconds * float64(time.Second)),
	}
	scheduler.Run(ctx, cfg, clock.Real{}, log)
}
