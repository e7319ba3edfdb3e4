package orchestrator_test

import (
	"testing"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/orchestrator"
	"github.com/couchcryptid/storm-ambiance/internal/state"
	"github.com/stretchr/testify/assert"
)

func TestPostFXEnabled(t *testing.T) {
	level := func(v float64) *float64 { return &v }

	cases := []struct {
		name string
		snap state.Snapshot
		want bool
	}{
		{name: "no flags, unknown battery", snap: state.Snapshot{}, want: true},
		{name: "reduce motion", snap: state.Snapshot{ReduceMotion: true}, want: false},
		{name: "low power", snap: state.Snapshot{LowPower: true}, want: false},
		{name: "battery at threshold", snap: state.Snapshot{BatteryLevel: level(0.2)}, want: false},
		{name: "battery above threshold", snap: state.Snapshot{BatteryLevel: level(0.21)}, want: true},
		{name: "full battery", snap: state.Snapshot{BatteryLevel: level(1)}, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, orchestrator.PostFXEnabled(tc.snap))
		})
	}
}

func TestFinalOpacity(t *testing.T) {
	assert.InDelta(t, 0.0009, orchestrator.FinalOpacity(0.0009, 1, 1), 1e-12)
	assert.Less(t, orchestrator.FinalOpacity(0.0009, 1, 1), orchestrator.MinOpacity)
	assert.GreaterOrEqual(t, orchestrator.FinalOpacity(0.001, 1, 1), orchestrator.MinOpacity)
	assert.InDelta(t, 0.5, orchestrator.FinalOpacity(0.2, 1, 9), 1e-12, "multiplier capped at 2.5")
	assert.Equal(t, 0.0, orchestrator.FinalOpacity(0.55, 0, 2.5))
}

func TestSelectLayers(t *testing.T) {
	in := domain.WeatherIntensity{ParticleCount: 300, FogDensity: 0.4, ThunderChance: 0.3}

	cases := []struct {
		effect domain.WeatherEffect
		want   []orchestrator.LayerKind
	}{
		{domain.EffectNone, nil},
		{domain.EffectClear, nil},
		{domain.EffectCloudy, []orchestrator.LayerKind{orchestrator.LayerFog}},
		{domain.EffectFog, []orchestrator.LayerKind{orchestrator.LayerFog}},
		{domain.EffectRain, []orchestrator.LayerKind{orchestrator.LayerRain}},
		{domain.EffectHeavyRain, []orchestrator.LayerKind{orchestrator.LayerRain}},
		{domain.EffectSnow, []orchestrator.LayerKind{orchestrator.LayerSnow}},
		{domain.EffectThunder, []orchestrator.LayerKind{orchestrator.LayerRain, orchestrator.LayerThunder}},
	}

	for _, tc := range cases {
		t.Run(string(tc.effect), func(t *testing.T) {
			plan := orchestrator.FramePlan{Draws: orchestrator.SelectLayers(tc.effect, in, 1, false)}
			if tc.want == nil {
				assert.Empty(t, plan.Draws)
				return
			}
			assert.Equal(t, tc.want, plan.Kinds())
		})
	}
}

func TestSelectLayers_PostFXIsLast(t *testing.T) {
	draws := orchestrator.SelectLayers(domain.EffectThunder, domain.WeatherIntensity{}, 1, true)
	assert.Equal(t, orchestrator.LayerPostFX, draws[len(draws)-1].Kind)
}

func TestSelectLayers_ThunderChanceScales(t *testing.T) {
	in := domain.WeatherIntensity{ThunderChance: 0.3}

	draws := orchestrator.SelectLayers(domain.EffectThunder, in, 2.5, false)
	assert.InDelta(t, 0.75, draws[1].ThunderChance, 1e-9)

	in.ThunderChance = 0.65
	draws = orchestrator.SelectLayers(domain.EffectThunder, in, 2.5, false)
	assert.Equal(t, 1.0, draws[1].ThunderChance)
}
