// Package clock abstracts the host ledger timestamp source. The ledger
// clock is monotonic and advances only between operations; nothing in the
// engine reads wall time directly.
package clock

import "time"

// Clock yields the current ledger timestamp in seconds.
type Clock interface {
	Now() uint64
}

// System reads the OS clock. Suitable for hosts whose invocation boundary
// already pins a timestamp per operation.
type System struct{}

func (System) Now() uint64 { return uint64(time.Now().Unix()) }

// Manual is a hand-advanced clock for tests and replay harnesses.
type Manual struct {
	t uint64
}

// NewManual creates a manual clock starting at t.
func NewManual(t uint64) *Manual { return &Manual{t: t} }

func (m *Manual) Now() uint64 { return m.t }

// Set moves the clock to t. Moving backwards is allowed in tests only;
// production hosts guarantee monotonicity.
func (m *Manual) Set(t uint64) { m.t = t }

// Advance moves the clock forward by d seconds.
func (m *Manual) Advance(d uint64) { m.t += d }
