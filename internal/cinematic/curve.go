package cinematic

import (
	"math"
	"time"
)

// Timing of the highlight moment.
const (
	RampDuration    = 400 * time.Millisecond
	HoldDuration    = 2500 * time.Millisecond // measured from entry, includes the ramp
	FadeOutDuration = 800 * time.Millisecond
	PeakMultiplier  = 2.5
)

// TotalDuration is the time from entry until the curve settles at 1.0.
const TotalDuration = HoldDuration + FadeOutDuration

// Multiplier samples the intensity curve at elapsed time since entry. It
// reports done once the curve has settled and the phase should become Done.
func Multiplier(elapsed time.Duration) (float64, bool) {
	switch {
	case elapsed <= 0:
		return 0, false
	case elapsed < HoldDuration:
		return math.Min(elapsed.Seconds()/RampDuration.Seconds(), PeakMultiplier), false
	case elapsed < TotalDuration:
		progress := (elapsed - HoldDuration).Seconds() / FadeOutDuration.Seconds()
		return PeakMultiplier - (PeakMultiplier-1)*progress, false
	default:
		return 1, true
	}
}
