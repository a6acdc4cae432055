package clock

import (
	"sync"
	"time"
)

// Fake is a Clock under explicit test control: time only moves when Advance
// is called, and tickers fire exactly once per elapsed period.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake returns a Fake clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now implements Clock.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker implements Clock.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{period: d, ch: make(chan time.Time, 1), next: f.now.Add(d)}
	f.tickers = append(f.tickers, t)
	return t
}

// After implements Clock with a channel that fires once Advance passes the
// deadline.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	deadline := f.now.Add(d)
	if !deadline.After(f.now) {
		ch <- f.now
		return ch
	}
	t := &fakeTicker{period: 0, ch: ch, next: deadline, oneShot: true}
	f.tickers = append(f.tickers, t)
	return ch
}

// Advance moves the clock forward by d, firing any tickers/timers whose
// deadline has passed, possibly more than once for periodic tickers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.now.Add(d)
	for f.now.Before(target) {
		next := target
		for _, t := range f.tickers {
			if t.stopped || t.fired {
				continue
			}
			if t.next.Before(next) {
				next = t.next
			}
		}
		f.now = next
		live := f.tickers[:0]
		for _, t := range f.tickers {
			if t.stopped {
				continue
			}
			if !t.next.After(f.now) {
				select {
				case t.ch <- f.now:
				default:
				}
				if t.oneShot {
					t.fired = true
				} else {
					t.next = t.next.Add(t.period)
				}
			}
			if !t.oneShot || !t.fired {
				live = append(live, t)
			}
		}
		f.tickers = live
	}
}

type fakeTicker struct {
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
	oneShot bool
	fired   bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
