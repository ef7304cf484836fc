package engine

import "time"

// Timer is the part of *time.Timer the event loop uses.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock creates the coalescing timer. Tests substitute a manual clock so
// that expiry is driven explicitly.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

// SystemClock creates real timers.
type SystemClock struct{}

func (SystemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{t: time.NewTimer(d)}
}

type systemTimer struct {
	t *time.Timer
}

func (s systemTimer) C() <-chan time.Time { return s.t.C }

func (s systemTimer) Stop() bool { return s.t.Stop() }
