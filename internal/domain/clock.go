package domain

import "github.com/jonboulle/clockwork"

// clock stamps AmbianceEvent.OccurredAt.
var clock = clockwork.NewRealClock()

// SetClock replaces the event timestamp source and returns a function that
// restores the previous one.
func SetClock(c clockwork.Clock) (restore func()) {
	prev := clock
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
	return func() { clock = prev }
}
