package clock

import (
	"sync/atomic"
	"time"
)

// Clock supplies nanosecond timestamps to the engine, accounts and venue.
// The runtime never reads time.Now directly so backtests and tests can drive
// time themselves.
type Clock interface {
	// NowNS returns the current time in Unix nanoseconds.
	NowNS() int64
	// Advance moves a manual clock forward. No-op on a realtime clock.
	Advance(ns int64)
}

// Realtime reads the wall clock.
type Realtime struct{}

// NewRealtime creates a wall clock.
func NewRealtime() *Realtime { return &Realtime{} }

// NowNS returns the wall-clock time in Unix nanoseconds.
func (*Realtime) NowNS() int64 { return time.Now().UnixNano() }

// Advance is a no-op for the wall clock.
func (*Realtime) Advance(int64) {}

// Manual is a test/backtest clock advanced explicitly.
type Manual struct {
	ns atomic.Int64
}

// NewManual creates a manual clock starting at startNS.
func NewManual(startNS int64) *Manual {
	c := &Manual{}
	c.ns.Store(startNS)
	return c
}

// NowNS returns the manual clock's current time.
func (c *Manual) NowNS() int64 { return c.ns.Load() }

// Advance moves the manual clock forward by ns.
func (c *Manual) Advance(ns int64) { c.ns.Add(ns) }

// SetTime pins the manual clock to an absolute time.
func (c *Manual) SetTime(ns int64) { c.ns.Store(ns) }
