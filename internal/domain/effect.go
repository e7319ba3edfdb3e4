package domain

import "math"

// windBias tilts the wind vector slightly to the right of straight down.
const windBias = 0.25 // radians

// MapCodeToEffect maps a WMO weather code to an effect. Codes outside every
// documented range map to EffectNone. Ranges are tested in a fixed order so
// that code 65 lands on heavy rain before the general rain range is checked.
func MapCodeToEffect(code int) WeatherEffect {
	switch {
	case code == 0 || code == 1:
		return EffectClear
	case code == 2 || code == 3:
		return EffectCloudy
	case code == 45 || code == 48:
		return EffectFog
	case code >= 51 && code <= 57:
		return EffectRain
	case code == 65:
		return EffectHeavyRain
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return EffectRain
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return EffectSnow
	case code >= 95 && code <= 99:
		return EffectThunder
	default:
		return EffectNone
	}
}

// ComputeIntensity derives render parameters from an effect and its metrics.
// It is pure: the same inputs always produce the same output. Negative metrics
// are clamped to zero before they enter a formula.
func ComputeIntensity(effect WeatherEffect, m WeatherMetrics) WeatherIntensity {
	precip := nonNegative(m.Precipitation)
	cloud := clamp(m.CloudCover, 0, 100)
	windMag := math.Min(nonNegative(m.WindSpeed)/60, 1)

	in := WeatherIntensity{
		Wind: Vec2{
			X: math.Sin(windBias) * windMag,
			Y: math.Cos(windBias) * windMag,
		},
		Speed: 1,
	}

	switch effect {
	case EffectRain:
		in.ParticleCount = particles(200 + 40*precip)
		in.Opacity = 0.35 + math.Min(precip/10, 0.4)
		in.Speed = 1 + 0.5*windMag
	case EffectHeavyRain:
		in.ParticleCount = particles(500 + 60*precip)
		in.Opacity = 0.5 + math.Min(precip/15, 0.35)
		in.Speed = 1.3 + 0.7*windMag
	case EffectSnow:
		in.ParticleCount = particles(150 + 30*precip)
		in.Opacity = 0.4 + math.Min(precip/8, 0.4)
		in.Speed = 0.3 + 0.2*windMag
	case EffectFog:
		in.Opacity = 0.3 + math.Min(cloud/150, 0.4)
		in.Speed = 0.15
		in.FogDensity = 0.4 + math.Min(cloud/100, 0.5)
	case EffectThunder:
		in.ParticleCount = particles(400 + 50*precip)
		in.Opacity = 0.55
		in.Speed = 1.5 + 0.6*windMag
		in.ThunderChance = 0.15 + math.Min(precip/20, 0.5)
	case EffectCloudy:
		in.Opacity = 0.1
		in.Speed = 0.1
		in.FogDensity = math.Min(cloud/200, 0.2)
	case EffectClear, EffectNone:
		// Nothing to draw.
	}

	in.Opacity = clamp(in.Opacity, 0, 1)
	in.FogDensity = clamp(in.FogDensity, 0, 1)
	in.ThunderChance = clamp(in.ThunderChance, 0, 1)
	return in
}

// ResolveReading maps a reading's code and computes the matching intensity.
func ResolveReading(code int, m WeatherMetrics) (WeatherEffect, WeatherIntensity) {
	effect := MapCodeToEffect(code)
	return effect, ComputeIntensity(effect, m)
}

// MaxParticles bounds ParticleCount however extreme the precipitation.
const MaxParticles = 20000

func particles(v float64) int {
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= MaxParticles:
		return MaxParticles
	}
	return int(math.Round(v))
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
