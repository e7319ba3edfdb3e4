package orchestrator

import (
	"math"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/state"
)

// LayerKind identifies a visual pass.
type LayerKind string

const (
	LayerFog     LayerKind = "fog"
	LayerRain    LayerKind = "rain"
	LayerSnow    LayerKind = "snow"
	LayerThunder LayerKind = "thunder"
	LayerPostFX  LayerKind = "postfx"
)

// drawOrder is fixed for correct alpha compositing.
var drawOrder = []LayerKind{LayerFog, LayerRain, LayerSnow, LayerThunder, LayerPostFX}

// SkipReason explains why a tick produced no backend work.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipNoBurst         SkipReason = "no_burst"
	SkipBurstExpired    SkipReason = "burst_expired"
	SkipBackendNotReady SkipReason = "backend_not_ready"
	SkipTransparent     SkipReason = "transparent"
	SkipSurfaceNotReady SkipReason = "surface_not_ready"
)

// Thresholds used by the per-tick gates.
const (
	MinOpacity           = 0.001
	LowBatteryThreshold  = 0.2
	MaxOpacityMultiplier = 2.5
)

// Uniforms are the per-frame parameters shared by every layer. They are
// rebuilt on every tick.
type Uniforms struct {
	Time           float64     `json:"time"`       // seconds since mount
	DeltaTime      float64     `json:"delta_time"` // seconds since previous tick
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	Opacity        float64     `json:"opacity"`
	Wind           domain.Vec2 `json:"wind"`
	IntensityScale float64     `json:"intensity_scale"`
	Speed          float64     `json:"speed"`
}

// Draw is one layer's entry in a frame plan.
type Draw struct {
	Kind          LayerKind `json:"kind"`
	ParticleCount int       `json:"particle_count,omitempty"`
	FogDensity    float64   `json:"fog_density,omitempty"`
	ThunderChance float64   `json:"thunder_chance,omitempty"` // probability per second
}

// FramePlan is the outcome of one tick.
type FramePlan struct {
	At         time.Time  `json:"at"`
	Skipped    bool       `json:"skipped"`
	Reason     SkipReason `json:"reason,omitempty"`
	Multiplier float64    `json:"multiplier"`
	PostFX     bool       `json:"postfx"`
	Uniforms   Uniforms   `json:"uniforms"`
	Draws      []Draw     `json:"draws,omitempty"`
}

// Kinds lists the plan's layers in draw order.
func (p FramePlan) Kinds() []LayerKind {
	kinds := make([]LayerKind, len(p.Draws))
	for i, d := range p.Draws {
		kinds[i] = d.Kind
	}
	return kinds
}

// PostFXEnabled reports whether the post-processing pass may run.
func PostFXEnabled(snap state.Snapshot) bool {
	if snap.ReduceMotion || snap.LowPower {
		return false
	}
	return snap.BatteryLevel == nil || *snap.BatteryLevel > LowBatteryThreshold
}

// FinalOpacity combines the base opacity with the visibility fade and the
// cinematic multiplier.
func FinalOpacity(base, fade, multiplier float64) float64 {
	return base * fade * math.Min(multiplier, MaxOpacityMultiplier)
}

// SelectLayers returns the draws for an effect in draw order.
func SelectLayers(effect domain.WeatherEffect, in domain.WeatherIntensity, multiplier float64, postfx bool) []Draw {
	var draws []Draw

	switch effect {
	case domain.EffectFog, domain.EffectCloudy:
		draws = append(draws, Draw{Kind: LayerFog, FogDensity: in.FogDensity})
	}

	switch effect {
	case domain.EffectRain, domain.EffectHeavyRain, domain.EffectThunder:
		draws = append(draws, Draw{Kind: LayerRain, ParticleCount: in.ParticleCount})
	case domain.EffectSnow:
		draws = append(draws, Draw{Kind: LayerSnow, ParticleCount: in.ParticleCount})
	}

	if effect == domain.EffectThunder {
		chance := math.Min(math.Max(in.ThunderChance*multiplier, 0), 1)
		draws = append(draws, Draw{Kind: LayerThunder, ThunderChance: chance})
	}

	if postfx {
		draws = append(draws, Draw{Kind: LayerPostFX})
	}
	return draws
}
