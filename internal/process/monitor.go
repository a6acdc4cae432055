// Package process is the restart engine: it spawns one child per configured
// name, watches it, applies restart backoff, and escalates TERM to KILL on
// stop. It shares no memory with the liveness checkers; the only way to ask
// it to restart a child is through the same Monitor interface the event
// receiver drives.
package process

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ncolony/ncolony/internal/clock"
)

// ChildSpec is the subset of a ProcessSpec the process monitor needs to
// spawn a child; the event receiver has already applied env_inherit merging
// and the NCOLONY_* variables.
type ChildSpec struct {
	Args []string
	Env  map[string]string
	UID  *int
	GID  *int
}

// Monitor is the narrow interface the event receiver drives. It is the
// Go-native replacement for a runtime-registered "event receiver" contract:
// a plain interface with exactly the operations the receiver needs.
type Monitor interface {
	// AddProcess registers name with spec and starts supervising it.
	AddProcess(name string, spec ChildSpec) error
	// RemoveProcess stops supervising name: TERM, then KILL after killTime,
	// and no restart once it reaps.
	RemoveProcess(name string) error
	// StopForRestart stops name the same way, but restarts it once reaped.
	StopForRestart(name string) error
	// RestartAll stops every RUNNING child for restart; children currently
	// in backoff are left alone (they are not RUNNING).
	RestartAll() error
	// Shutdown TERMs every RUNNING child, escalates to KILL after KillTime,
	// and blocks until all supervised children have reaped or ctx expires.
	// No child is restarted once Shutdown has stopped it.
	Shutdown(ctx context.Context) error
}

// state is a child's position in the NONE -> STARTING -> RUNNING ->
// STOPPING -> NONE lifecycle.
type state int

const (
	stateNone state = iota
	stateStarting
	stateRunning
	stateStopping
)

// cause records why a child left RUNNING, to decide what happens after
// it reaps.
type cause int

const (
	causeExit cause = iota
	causeRemove
	causeStop
)

// Config bounds the restart engine's timing, per spec.md §4.3 defaults.
type Config struct {
	// Threshold is the minimum running time below which an exit
	// counts as "rapid" and triggers backoff instead of immediate restart.
	Threshold time.Duration
	// MinRestartDelay is the initial backoff delay.
	MinRestartDelay time.Duration
	// MaxRestartDelay caps the backoff delay.
	MaxRestartDelay time.Duration
	// GrowthFactor multiplies the delay on each rapid exit.
	GrowthFactor float64
	// KillTime is how long to wait after TERM before escalating to KILL.
	KillTime time.Duration
	// PidDir, if non-empty, receives "<name>" files holding the running
	// child's decimal pid.
	PidDir string
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:       1 * time.Second,
		MinRestartDelay: 1 * time.Second,
		MaxRestartDelay: 3600 * time.Second,
		GrowthFactor:    2,
		KillTime:        5 * time.Second,
	}
}

// Spawner abstracts process creation so tests can substitute a fake without
// forking real processes, per the mandated injectable spawn surface.
type Spawner interface {
	Spawn(spec ChildSpec) (Child, error)
}

// Child is a running (or just-exited) OS process handle.
type Child interface {
	Pid() int
	// Signal delivers sig; failure is logged and ignored by the caller, the
	// child is presumed already gone.
	Signal(sig unix.Signal) error
	// Wait blocks until the child exits and returns its error (nil on clean
	// exit). It is safe to call exactly once per spawned Child.
	Wait() error
}

type childRecord struct {
	spec         ChildSpec
	st           state
	pid          int
	startedAt    time.Time
	restartCount int
	backoff      *backoff.ExponentialBackOff
	cancelTimer  func()
	pendingCause cause
	removed      bool
	child        Child
}

// DefaultMonitor is the concrete Monitor implementation.
type DefaultMonitor struct {
	cfg     Config
	spawner Spawner
	clk     clock.Clock
	log     *logrus.Entry

	mu       sync.Mutex
	children map[string]*childRecord

	pidLock *flock.Flock
}

// New builds a DefaultMonitor. If cfg.PidDir is non-empty, a lock file
// "<PidDir>/.lock" is acquired for the monitor's lifetime so a second
// supervisor instance mistakenly pointed at the same directories cannot
// interleave pid file writes with this one.
func New(cfg Config, spawner Spawner, clk clock.Clock, log *logrus.Entry) (*DefaultMonitor, error) {
	m := &DefaultMonitor{
		cfg:      cfg,
		spawner:  spawner,
		clk:      clk,
		log:      log,
		children: make(map[string]*childRecord),
	}
	if cfg.PidDir != "" {
		if err := os.MkdirAll(cfg.PidDir, 0o755); err != nil {
			return nil, fmt.Errorf("process: creating pid dir: %w", err)
		}
		fl := flock.New(fmt.Sprintf("%s/.lock", cfg.PidDir))
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("process: locking pid dir: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("process: pid dir %s is already locked by another supervisor", cfg.PidDir)
		}
		m.pidLock = fl
	}
	return m, nil
}

// Close releases the pid directory lock, if held.
func (m *DefaultMonitor) Close() error {
	if m.pidLock != nil {
		return m.pidLock.Unlock()
	}
	return nil
}

func (m *DefaultMonitor) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.MinRestartDelay
	b.MaxInterval = m.cfg.MaxRestartDelay
	b.Multiplier = m.cfg.GrowthFactor
	b.MaxElapsedTime = 0 // retry forever; the spec has no give-up point
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// AddProcess implements Monitor.
func (m *DefaultMonitor) AddProcess(name string, spec ChildSpec) error {
	m.mu.Lock()
	if existing, ok := m.children[name]; ok {
		// A replace-in-place arrives as remove+add of the same name from
		// dirmon. If the remove half already asked this record to die
		// (RemoveProcess set removed and is draining it toward STOPPING),
		// this Add turns it back into a restart: the reap must respawn
		// with the new spec instead of deleting the record.
		existing.spec = spec
		existing.removed = false
		existing.pendingCause = causeStop
		m.mu.Unlock()
		return nil
	}
	rec := &childRecord{spec: spec, st: stateStarting, backoff: m.newBackoff()}
	m.children[name] = rec
	m.mu.Unlock()

	return m.spawn(name, rec)
}

func (m *DefaultMonitor) spawn(name string, rec *childRecord) error {
	child, err := m.spawner.Spawn(rec.spec)
	if err != nil {
		m.log.WithField("name", name).WithError(err).Warn("spawn failed, treating as immediate exit")
		return m.onExit(name, rec, causeExit)
	}

	m.mu.Lock()
	rec.st = stateRunning
	rec.pid = child.Pid()
	rec.child = child
	rec.startedAt = m.clk.Now()
	m.mu.Unlock()

	m.writePidFile(name, child.Pid())
	m.log.WithField("name", name).WithField("pid", child.Pid()).Info("started")

	go func() {
		waitErr := child.Wait()
		m.reap(name, rec, waitErr)
	}()
	return nil
}

func (m *DefaultMonitor) reap(name string, rec *childRecord, waitErr error) {
	m.removePidFile(name)

	m.mu.Lock()
	wasStopping := rec.st == stateStopping
	cause := rec.pendingCause
	if rec.cancelTimer != nil {
		rec.cancelTimer()
		rec.cancelTimer = nil
	}
	ran := m.clk.Now().Sub(rec.startedAt)
	rec.pid = 0
	m.mu.Unlock()

	if waitErr != nil {
		m.log.WithField("name", name).WithError(waitErr).Info("child exited")
	} else {
		m.log.WithField("name", name).Info("child exited cleanly")
	}

	if !wasStopping {
		cause = causeExit
	}
	m.onExitAfterRun(name, rec, cause, ran)
}

// onExit handles a spawn failure as an immediate exit.
func (m *DefaultMonitor) onExit(name string, rec *childRecord, cause cause) error {
	return m.onExitAfterRun(name, rec, cause, 0)
}

func (m *DefaultMonitor) onExitAfterRun(name string, rec *childRecord, cause cause, ran time.Duration) error {
	m.mu.Lock()
	if rec.removed || cause == causeRemove {
		rec.st = stateNone
		delete(m.children, name)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if ran >= m.cfg.Threshold {
		m.mu.Lock()
		rec.backoff.Reset()
		rec.st = stateStarting
		rec.restartCount++
		m.mu.Unlock()
		return m.spawn(name, rec)
	}

	delay := rec.backoff.NextBackOff()
	m.mu.Lock()
	rec.st = stateStarting
	m.mu.Unlock()

	timer := m.clk.After(delay)
	cancelCh := make(chan struct{})
	m.mu.Lock()
	rec.cancelTimer = func() { close(cancelCh) }
	m.mu.Unlock()

	go func() {
		select {
		case <-timer:
			m.mu.Lock()
			if _, stillTracked := m.children[name]; !stillTracked {
				m.mu.Unlock()
				return
			}
			rec.restartCount++
			m.mu.Unlock()
			_ = m.spawn(name, rec)
		case <-cancelCh:
		}
	}()
	return nil
}

// RemoveProcess implements Monitor.
func (m *DefaultMonitor) RemoveProcess(name string) error {
	return m.stop(name, causeRemove)
}

// StopForRestart implements Monitor.
func (m *DefaultMonitor) StopForRestart(name string) error {
	return m.stop(name, causeStop)
}

func (m *DefaultMonitor) stop(name string, cause cause) error {
	m.mu.Lock()
	rec, ok := m.children[name]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if cause == causeRemove {
		rec.removed = true
	}
	if rec.st != stateRunning {
		if cause == causeRemove {
			// Not running (e.g. still backing off): drop bookkeeping now,
			// there is nothing left to reap.
			if rec.cancelTimer != nil {
				rec.cancelTimer()
			}
			delete(m.children, name)
		}
		m.mu.Unlock()
		return nil
	}
	rec.st = stateStopping
	rec.pendingCause = cause
	child := rec.child
	m.mu.Unlock()

	if err := child.Signal(unix.SIGTERM); err != nil {
		m.log.WithField("name", name).WithError(err).Warn("TERM delivery failed, presuming child already gone")
	}

	killTimer := m.clk.After(m.cfg.KillTime)
	doneCh := make(chan struct{})
	m.mu.Lock()
	rec.cancelTimer = func() { close(doneCh) }
	m.mu.Unlock()

	go func() {
		select {
		case <-killTimer:
			if err := child.Signal(unix.SIGKILL); err != nil {
				m.log.WithField("name", name).WithError(err).Warn("KILL delivery failed, presuming child already gone")
			}
		case <-doneCh:
		}
	}()
	return nil
}

// RestartAll implements Monitor: every RUNNING child is stopped for
// restart. Children currently in backoff are left alone; they are not
// RUNNING, and the spec does not document including them.
func (m *DefaultMonitor) RestartAll() error {
	m.mu.Lock()
	names := make([]string, 0, len(m.children))
	for name, rec := range m.children {
		if rec.st == stateRunning {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if err := m.StopForRestart(name); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown implements Monitor: every tracked child is stopped for removal
// (TERM, then KILL after KillTime) and Shutdown blocks until each has
// reaped or ctx is done, whichever comes first.
func (m *DefaultMonitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.children))
	for name := range m.children {
		names = append(names, name)
	}
	m.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if err := m.RemoveProcess(name); err != nil {
			m.log.WithField("name", name).WithError(err).Warn("shutdown: stop request failed")
		}
	}

	ticker := m.clk.After(10 * time.Millisecond)
	for {
		m.mu.Lock()
		remaining := len(m.children)
		m.mu.Unlock()
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			m.log.WithField("remaining", remaining).Warn("shutdown: context done before all children reaped")
			return ctx.Err()
		case <-ticker:
			ticker = m.clk.After(10 * time.Millisecond)
		}
	}
}

func (m *DefaultMonitor) writePidFile(name string, pid int) {
	if m.cfg.PidDir == "" {
		return
	}
	path := fmt.Sprintf("%s/%s", m.cfg.PidDir, name)
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0o644); err != nil {
		m.log.WithField("name", name).WithError(err).Warn("writing pid file failed")
	}
}

func (m *DefaultMonitor) removePidFile(name string) {
	if m.cfg.PidDir == "" {
		return
	}
	path := fmt.Sprintf("%s/%s", m.cfg.PidDir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.log.WithField("name", name).WithError(err).Warn("removing pid file failed")
	}
}
