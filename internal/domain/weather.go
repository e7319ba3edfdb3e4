package domain

import (
	"fmt"
	"time"
)

// WeatherEffect is the categorical effect selected for rendering.
type WeatherEffect string

const (
	EffectNone      WeatherEffect = "none"
	EffectClear     WeatherEffect = "clear"
	EffectCloudy    WeatherEffect = "cloudy"
	EffectFog       WeatherEffect = "fog"
	EffectRain      WeatherEffect = "rain"
	EffectHeavyRain WeatherEffect = "heavy_rain"
	EffectSnow      WeatherEffect = "snow"
	EffectThunder   WeatherEffect = "thunder"
)

// AllEffects lists every effect in declaration order.
var AllEffects = []WeatherEffect{
	EffectNone,
	EffectClear,
	EffectCloudy,
	EffectFog,
	EffectRain,
	EffectHeavyRain,
	EffectSnow,
	EffectThunder,
}

// Valid reports whether e is one of the declared effects.
func (e WeatherEffect) Valid() bool {
	switch e {
	case EffectNone, EffectClear, EffectCloudy, EffectFog,
		EffectRain, EffectHeavyRain, EffectSnow, EffectThunder:
		return true
	default:
		return false
	}
}

// ParseEffect converts a string into a WeatherEffect.
func ParseEffect(s string) (WeatherEffect, error) {
	e := WeatherEffect(s)
	if !e.Valid() {
		return EffectNone, fmt.Errorf("unknown weather effect %q", s)
	}
	return e, nil
}

// WeatherMetrics is a continuous weather reading.
type WeatherMetrics struct {
	WindSpeed     float64 `json:"wind_speed"`    // km/h
	Precipitation float64 `json:"precipitation"` // mm/h
	Temperature   float64 `json:"temperature"`   // °C
	Humidity      float64 `json:"humidity"`      // percent
	CloudCover    float64 `json:"cloud_cover"`   // percent
}

// Vec2 is a 2D direction with components in [-1, 1].
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WeatherIntensity is the render-ready parameter set derived from an effect and its metrics.
type WeatherIntensity struct {
	ParticleCount int     `json:"particle_count"`
	Wind          Vec2    `json:"wind"`
	Opacity       float64 `json:"opacity"`
	ThunderChance float64 `json:"thunder_chance"` // probability per second
	FogDensity    float64 `json:"fog_density"`
	Speed         float64 `json:"speed"`
}

// Reading is one captured observation or forecast point.
type Reading struct {
	Code       int            `json:"code"`
	Metrics    WeatherMetrics `json:"metrics"`
	ObservedAt time.Time      `json:"observed_at"`
	Source     string         `json:"source"` // "current" or "forecast"
}

// CinematicPhase is the highlight-moment state.
type CinematicPhase string

const (
	PhaseIdle    CinematicPhase = "idle"
	PhasePlaying CinematicPhase = "playing"
	// PhaseFadingOut is reserved; the controller folds the fade into Playing and never produces it.
	PhaseFadingOut CinematicPhase = "fading_out"
	PhaseDone      CinematicPhase = "done"
)

// DayKeyLayout is the calendar-day format used by the cinematic ledger.
const DayKeyLayout = "2006-01-02"

// DayKey formats t as a calendar day in loc. A nil loc uses t's own location.
func DayKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DayKeyLayout)
}
