// Command ncolonyd is the ncolony supervisor daemon: it watches a
// configuration directory and a messages directory, keeps every configured
// process running, and applies restart/liveness policy through the
// checkers' RESTART messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/ncolony/ncolony/internal/clock"
	"github.com/ncolony/ncolony/internal/dirmon"
	"github.com/ncolony/ncolony/internal/events"
	"github.com/ncolony/ncolony/internal/ncconfig"
	"github.com/ncolony/ncolony/internal/pollrunner"
	"github.com/ncolony/ncolony/internal/process"
)

func main() {
	log := logrus.WithField("component", "ncolonyd")

	var (
		configFile = flag.String("config-file", "", "optional ncolonyd.toml startup config")
		configDir  = flag.String("config", "", "configuration directory")
		messages   = flag.String("messages", "", "messages directory")
		pidDir     = flag.String("pid-dir", "", "pid directory (optional)")
		pollSecs   = flag.Float64("poll-frequency-seconds", 0, "override poll_frequency_seconds")
	)
	flag.Parse()

	base := ncconfig.Default()
	cfg, err := ncconfig.Load(*configFile, base)
	if err != nil {
		log.WithError(err).Fatal("loading config file")
	}
	if *configDir != "" {
		cfg.ConfigDir = *configDir
	}
	if *messages != "" {
		cfg.MessagesDir = *messages
	}
	if *pidDir != "" {
		cfg.PidDir = *pidDir
	}
	if *pollSecs != 0 {
		cfg.PollFrequencySeconds = *pollSecs
	}
	if cfg.ConfigDir == "" || cfg.MessagesDir == "" {
		log.Fatal("both -config and -messages are required (or their config_dir/messages_dir keys)")
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("ncolonyd exited with error")
	}
}

func run(cfg ncconfig.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM, unix.SIGINT)
	defer stop()

	clk := clock.Real{}

	procCfg := process.Config{
		Threshold:       cfg.RestartThreshold(),
		MinRestartDelay: cfg.MinRestartDelay(),
		MaxRestartDelay: cfg.MaxRestartDelay(),
		GrowthFactor:    2,
		KillTime:        cfg.KillTimeout(),
		PidDir:          cfg.PidDir,
	}
	monitor, err := process.New(procCfg, process.OSSpawner{}, clk, log.WithField("subsystem", "process"))
	if err != nil {
		return fmt.Errorf("ncolonyd: building process monitor: %w", err)
	}
	defer monitor.Close()

	receiver := events.New(monitor, os.LookupEnv, log.WithField("subsystem", "events"))

	configMon := dirmon.New(cfg.ConfigDir, dirmon.ModeConfig, receiver, log.WithField("subsystem", "dirmon-config"))
	messagesMon := dirmon.New(cfg.MessagesDir, dirmon.ModeMessages, receiver, log.WithField("subsystem", "dirmon-messages"))

	// The first config poll populates every initially configured process
	// before readiness is announced, so systemd-dependent units see a
	// daemon that has already started what it was told to start.
	if err := configMon.Poll(); err != nil {
		return fmt.Errorf("ncolonyd: initial config poll: %w", err)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.WithError(err).Warn("sd_notify failed, continuing without it")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pollrunner.Run(ctx, clk, cfg.PollFrequency(), log.WithField("subsystem", "dirmon-config"), configMon.Poll)
	})
	g.Go(func() error {
		return pollrunner.Run(ctx, clk, cfg.PollFrequency(), log.WithField("subsystem", "dirmon-messages"), messagesMon.Poll)
	})

	err = g.Wait()
	if err != nil && err != context.Canceled {
		return err
	}

	log.Info("shutting down on signal, stopping supervised children")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.KillTimeout()+5*time.Second)
	defer cancelShutdown()
	if err := monitor.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("not every supervised child reaped before shutdown deadline")
	}
	return nil
}
