// Package httpcheck implements the per-child HTTP liveness state machine
// described by the "httpcheck" spec extension. It is an explicit state
// machine (initial/hasURL/inPing/bad/closed) driven by a small event set,
// the Go-native replacement for the teacher domain's continuation-chained
// HTTP probing (§9 REDESIGN FLAGS).
package httpcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ncolony/ncolony/internal/clock"
	"github.com/ncolony/ncolony/internal/ncspec"
)

// Params is the "httpcheck" extension of a ProcessSpec.
type Params struct {
	URL     string  `json:"url"`
	Period  float64 `json:"period"`
	Timeout float64 `json:"timeout"`
	Grace   float64 `json:"grace"`
	MaxBad  int     `json:"maxBad"`
}

type phase int

const (
	phaseInitial phase = iota
	phaseHasURL
	phaseInPing
	phaseBad
	phaseClosed
)

var userAgent = fmt.Sprintf("ncolony-httpcheck/1 (%s)", runtime.Version())

type childState struct {
	phase     phase
	raw       string
	params    Params
	badCount  int
	nextCheck time.Time
	cancel    context.CancelFunc
	resultCh  chan bool
}

// Checker watches configDir's httpcheck extensions and reports stale names.
type Checker struct {
	configDir string
	clk       clock.Clock
	client    *http.Client
	log       *logrus.Entry
	states    map[string]*childState
}

// New builds a Checker using client for GET requests (nil selects
// http.DefaultClient's transport with per-request timeouts via context).
func New(configDir string, clk clock.Clock, client *http.Client, log *logrus.Entry) *Checker {
	if client == nil {
		client = &http.Client{}
	}
	return &Checker{
		configDir: configDir,
		clk:       clk,
		client:    client,
		log:       log,
		states:    make(map[string]*childState),
	}
}

// Check reconciles the tracked name set against configDir, advances every
// state machine by one check-tick, and returns the names found newly stale
// this tick.
func (c *Checker) Check() []string {
	entries, err := os.ReadDir(c.configDir)
	if err != nil {
		c.log.WithError(err).Warn("listing config dir failed")
		return nil
	}

	current := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".new" {
			continue
		}
		current[name] = true
	}

	for name, st := range c.states {
		if !current[name] {
			c.close(st)
			delete(c.states, name)
		}
	}
	for name := range current {
		if _, ok := c.states[name]; !ok {
			c.states[name] = &childState{phase: phaseInitial}
		}
	}

	var stale []string
	now := c.clk.Now()
	for name := range current {
		st := c.states[name]
		raw, err := os.ReadFile(filepath.Join(c.configDir, name))
		if err != nil {
			continue
		}
		c.applyContentChange(st, string(raw))
		if c.tick(name, st, now) {
			stale = append(stale, name)
		}
	}
	return stale
}

// applyContentChange implements the content-changed input: if the raw bytes
// differ from the last seen, cancel any pending request and reparse;
// unchanged bytes leave the state untouched.
func (c *Checker) applyContentChange(st *childState, raw string) {
	if raw == st.raw {
		return
	}
	st.raw = raw
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.resultCh = nil

	var params Params
	found, err := ncspec.Extension([]byte(raw), "httpcheck", &params)
	if err != nil || !found {
		st.phase = phaseInitial
		st.params = Params{}
		return
	}
	st.params = params
	st.badCount = 0
	period := time.Duration(params.Period * float64(time.Second))
	st.nextCheck = c.clk.Now().Add(time.Duration(params.Grace * float64(period)))
	st.phase = phaseHasURL
}

// tick implements the check-tick input and reports whether name is stale
// this tick.
func (c *Checker) tick(name string, st *childState, now time.Time) bool {
	switch st.phase {
	case phaseInitial, phaseClosed:
		return false

	case phaseBad:
		st.phase = phaseHasURL
		st.badCount = 0
		period := time.Duration(st.params.Period * float64(time.Second))
		st.nextCheck = now.Add(period)
		return true

	case phaseHasURL:
		if now.Before(st.nextCheck) {
			return false
		}
		c.startPing(name, st, now)
		return false

	case phaseInPing:
		select {
		case ok := <-st.resultCh:
			st.resultCh = nil
			st.cancel = nil
			if ok {
				st.badCount = 0
				st.phase = phaseHasURL
			} else {
				st.badCount++
				if st.badCount > st.params.MaxBad {
					st.phase = phaseBad
				} else {
					st.phase = phaseHasURL
				}
			}
		default:
			// still outstanding; nothing to do this tick
		}
		return false

	default:
		return false
	}
}

// startPing implements the ping-started input.
func (c *Checker) startPing(name string, st *childState, now time.Time) {
	period := time.Duration(st.params.Period * float64(time.Second))
	timeout := time.Duration(st.params.Timeout * float64(time.Second))
	if timeout > period {
		timeout = period
	}
	st.nextCheck = now.Add(period)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	st.cancel = cancel
	ch := make(chan bool, 1)
	st.resultCh = ch
	st.phase = phaseInPing

	url := st.params.URL
	go func() {
		ch <- c.doGet(ctx, url)
		cancel()
	}()
}

func (c *Checker) doGet(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.WithField("url", url).WithError(err).Warn("httpcheck transport error")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Checker) close(st *childState) {
	if st.cancel != nil {
		st.cancel()
	}
	st.phase = phaseClosed
}
