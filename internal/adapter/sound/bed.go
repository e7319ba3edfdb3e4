package sound

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
)

// profile shapes the noise bed. Smoothing is a one-pole low-pass coefficient:
// lower values give a darker sound.
type profile struct {
	gain      float64
	smoothing float64
	rumble    float64 // per-second chance of a thunder rumble
}

var profiles = map[domain.WeatherEffect]profile{
	domain.EffectRain:      {gain: 0.22, smoothing: 0.35},
	domain.EffectHeavyRain: {gain: 0.32, smoothing: 0.5},
	domain.EffectThunder:   {gain: 0.3, smoothing: 0.45, rumble: 0.15},
	domain.EffectSnow:      {gain: 0.06, smoothing: 0.04},
	domain.EffectFog:       {gain: 0.05, smoothing: 0.02},
	domain.EffectCloudy:    {gain: 0.04, smoothing: 0.02},
}

func profileFor(effect domain.WeatherEffect) profile {
	return profiles[effect]
}

const rumbleDuration = 2500 * time.Millisecond

// noiseBed is an endless filtered noise generator with occasional low
// rumbles. It never ends and never errors.
type noiseBed struct {
	rng     *rand.Rand
	profile profile

	lowpass [2]float64
	rumble  int // samples left in the current rumble
	phase   float64
}

func (n *noiseBed) Stream(samples [][2]float64) (int, bool) {
	p := n.profile
	rumbleLen := sampleRate.N(rumbleDuration)
	strikeChance := p.rumble / float64(sampleRate)

	for i := range samples {
		if p.gain == 0 {
			samples[i] = [2]float64{}
			continue
		}
		if n.rumble == 0 && strikeChance > 0 && n.rng.Float64() < strikeChance {
			n.rumble = rumbleLen
		}

		var rumble float64
		if n.rumble > 0 {
			env := float64(n.rumble) / float64(rumbleLen)
			n.phase += 2 * math.Pi * 45 / float64(sampleRate)
			rumble = 0.4 * env * env * math.Sin(n.phase)
			n.rumble--
		}

		for ch := range 2 {
			white := n.rng.Float64()*2 - 1
			n.lowpass[ch] += p.smoothing * (white - n.lowpass[ch])
			samples[i][ch] = p.gain*n.lowpass[ch] + rumble
		}
	}
	return len(samples), true
}

func (n *noiseBed) Err() error { return nil }
