// Package scheduler runs one command periodically with an enforced maximum
// runtime: timeout seconds after launch it is TERM'd, grace seconds after
// that it is KILL'd. A tick does not wait for the previous invocation: an
// earlier run that is still live is left to its own TERM/KILL timers while
// the next tick launches a fresh one, so two runs can be live at once.
package scheduler

import (
	"bufio"
	"io"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ncolony/ncolony/internal/clock"
)

// Config describes one scheduled command.
type Config struct {
	Args      []string
	Timeout   time.Duration
	Grace     time.Duration
	Frequency time.Duration
}

// Tick launches one instance of cfg.Args and lets it run to completion,
// applying the TERM/KILL escalation independently of any other instance.
// It does not block past cfg.Timeout+cfg.Grace: the caller should invoke it
// from its own goroutine per tick so runs never serialize against the
// scheduler's ticker.
func Tick(cfg Config, clk clock.Clock, log *logrus.Entry) {
	if len(cfg.Args) == 0 {
		log.Warn("scheduler: empty args, skipping tick")
		return
	}
	cmd := exec.Command(cfg.Args[0], cfg.Args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.WithError(err).Warn("scheduler: stdout pipe failed")
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		log.WithError(err).Warn("scheduler: stderr pipe failed")
		return
	}

	if err := cmd.Start(); err != nil {
		log.WithError(err).Warn("scheduler: spawn failed")
		return
	}

	go tagLines(stdout, log.WithField("stream", "stdout"))
	go tagLines(stderr, log.WithField("stream", "stderr"))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	termTimer := clk.After(cfg.Timeout)
	killTimer := clk.After(cfg.Timeout + cfg.Grace)

	for {
		select {
		case err := <-done:
			if err != nil {
				log.WithError(err).Info("scheduler: command exited")
			} else {
				log.Info("scheduler: command exited cleanly")
			}
			return
		case <-termTimer:
			if cmd.Process != nil {
				_ = cmd.Process.Signal(unix.SIGTERM)
			}
		case <-killTimer:
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
	}
}

func tagLines(r io.Reader, log *logrus.Entry) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Info(scanner.Text())
	}
}
