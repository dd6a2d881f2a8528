package clock

import (
	"sync"
	"time"
)

// Fake is a Clock whose time only moves when Advance or Set is called.
// Tickers fire synchronously during Advance, once per elapsed interval,
// dropping ticks the consumer has not drained (capacity 1, matching the
// real ticker).
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

// NewFake returns a fake clock starting at a fixed, arbitrary instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker returns a ticker driven by Advance.
func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := &fakeTicker{ch: make(chan time.Time, 1), interval: d, next: f.now.Add(d)}
	f.tickers = append(f.tickers, ft)
	return &Ticker{C: ft.ch, stopFunc: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		ft.stopped = true
	}}
}

// Sleep returns immediately; the fake clock never blocks the caller.
func (f *Fake) Sleep(time.Duration) {}

// Advance moves the fake time forward by d, firing due tickers.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(f.now.Add(d))
}

// Set jumps the fake time to t, firing due tickers. Panics if t is before
// the current fake time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.Before(f.now) {
		panic("clock: fake time cannot move backwards")
	}
	f.setLocked(t)
}

func (f *Fake) setLocked(t time.Time) {
	f.now = t
	for _, ft := range f.tickers {
		if ft.stopped {
			continue
		}
		for !ft.next.After(t) {
			select {
			case ft.ch <- ft.next:
			default:
				// Consumer behind; drop the tick.
			}
			ft.next = ft.next.Add(ft.interval)
		}
	}
}
