// Package beatcheck detects children that advertise a heartbeat contract
// (the "beatcheck" spec extension) but stop touching their status path, and
// restarts them by writing a RESTART message -- never by any direct call
// into the process monitor.
package beatcheck

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ncolony/ncolony/internal/clock"
	"github.com/ncolony/ncolony/internal/ncspec"
)

// Params is the "beatcheck" extension of a ProcessSpec.
type Params struct {
	Status string  `json:"status"`
	Period float64 `json:"period"`
	Grace  float64 `json:"grace"`
}

// Checker watches configDir and reports stale names on each Check call.
type Checker struct {
	configDir string
	clk       clock.Clock
	log       *logrus.Entry
	start     time.Time
}

// New builds a Checker. start is recorded as the reference floor so a child
// freshly discovered at daemon startup gets its full grace period.
func New(configDir string, clk clock.Clock, log *logrus.Entry) *Checker {
	return &Checker{configDir: configDir, clk: clk, log: log, start: clk.Now()}
}

// Check enumerates configDir and returns the basenames of children whose
// beatcheck status path is missing or stale.
func (c *Checker) Check() []string {
	entries, err := os.ReadDir(c.configDir)
	if err != nil {
		c.log.WithError(err).Warn("listing config dir failed")
		return nil
	}

	now := c.clk.Now()
	var stale []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".new" {
			continue
		}
		path := filepath.Join(c.configDir, name)
		if c.isBad(path, name, now) {
			stale = append(stale, name)
		}
	}
	return stale
}

func (c *Checker) isBad(path, name string, now time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false // raced out of existence; not our concern this tick
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var params Params
	found, err := ncspec.Extension(raw, "beatcheck", &params)
	if err != nil || !found {
		return false
	}

	reference := info.ModTime()
	if c.start.After(reference) {
		reference = c.start
	}
	period := time.Duration(params.Period * float64(time.Second))
	grace := params.Grace
	if now.Before(reference.Add(time.Duration(float64(period) * grace))) {
		return false // still within the startup grace window
	}

	statusPath := params.Status
	statusInfo, err := os.Stat(statusPath)
	if err != nil {
		return true // status path does not exist: stale
	}
	if statusInfo.IsDir() {
		statusInfo, err = os.Stat(filepath.Join(statusPath, name))
		if err != nil {
			return true
		}
	}
	return statusInfo.ModTime().Add(period).Before(now)
}
