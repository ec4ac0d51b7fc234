// Package clock abstracts wall-clock time so scheduling and backoff math
// can be tested against a fixed or advancing time source.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns a Clock backed by time.Now in UTC.
func System() Clock { return systemClock{} }

// Fixed is a Clock pinned to a single instant. Advance moves it forward.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.T = f.T.Add(d) }
