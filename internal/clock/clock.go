// Package clock provides an injectable notion of time so that components
// driven by periodic polling can be tested without real sleeps.
package clock

import "time"

// Clock abstracts time.Now and time.NewTicker so tests can substitute a fake.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// Ticker mirrors the subset of *time.Ticker that components need.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the Clock backed by the standard library.
type Real struct{}

// Now implements Clock.
func (Real) Now() time.Time { return time.Now() }

// NewTicker implements Clock.
func (Real) NewTicker(d time.Duration) Ticker { return &realTicker{t: time.NewTicker(d)} }

// After implements Clock.
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
