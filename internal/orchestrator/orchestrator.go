// Package orchestrator turns the runtime state into a frame plan once per
// rendering tick and drives the rendering and audio collaborators with it.
package orchestrator

import (
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/cinematic"
	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/state"
)

// maxDelta caps the step between two ticks after a stall so animation and
// fade do not jump.
const maxDelta = 250 * time.Millisecond

// audioScaleStep is the smallest intensity-scale change forwarded to audio.
const audioScaleStep = 0.05

// Orchestrator computes and executes frame plans. Tick is called from a single
// goroutine; only SetReadiness may be called concurrently with it.
type Orchestrator struct {
	state     *state.State
	cinematic *cinematic.Controller
	backend   Backend
	audio     Audio
	logger    *slog.Logger
	metrics   *observability.Metrics

	readiness    atomic.Pointer[Readiness]
	fadeDuration time.Duration

	mountedAt time.Time
	lastTick  time.Time
	fade      float64

	audioSynced  bool
	audioVisible bool
	audioEffect  domain.WeatherEffect
	audioScale   float64
	lastEffect   domain.WeatherEffect
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAudio attaches the audio collaborator.
func WithAudio(a Audio) Option {
	return func(o *Orchestrator) { o.audio = a }
}

// WithFadeDuration sets how long the visibility fade takes to go from 0 to 1.
// Zero snaps.
func WithFadeDuration(d time.Duration) Option {
	return func(o *Orchestrator) { o.fadeDuration = d }
}

// New creates an Orchestrator. The backend is not touched until a Readiness
// is supplied.
func New(st *state.State, ctrl *cinematic.Controller, backend Backend, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:        st,
		cinematic:    ctrl,
		backend:      backend,
		logger:       logger,
		metrics:      metrics,
		fadeDuration: 600 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetReadiness publishes the result of the one-time backend initialisation.
func (o *Orchestrator) SetReadiness(r Readiness) {
	o.readiness.Store(&r)
}

// Fade returns the current visibility fade factor.
func (o *Orchestrator) Fade() float64 {
	return o.fade
}

// Rewind clears the per-mount timing state so the next tick starts a fresh
// fade and uniform clock.
func (o *Orchestrator) Rewind() {
	o.mountedAt = time.Time{}
	o.lastTick = time.Time{}
	o.fade = 0
	o.audioSynced = false
	o.cinematic.Reset()
}

// Tick runs one frame. It reads the state exactly once, so changes made
// during the tick are observed by the next one.
func (o *Orchestrator) Tick(now time.Time) FramePlan {
	snap := o.state.Snapshot()
	dt := o.advanceClock(now)
	o.observe(snap)
	o.syncAudio(snap)

	plan := FramePlan{At: now, Multiplier: 1}

	// A playing cinematic follows wall time even on skipped frames, so it
	// still settles at 1.0 and reaches Done after the burst window closes.
	playing := snap.CinematicPhase == domain.PhasePlaying
	if playing {
		plan.Multiplier = o.cinematic.Step(now, snap)
	}

	if !snap.BurstActive {
		return o.skip(plan, SkipNoBurst)
	}
	if !now.Before(snap.BurstEndTime) {
		if o.state.EndBurst() {
			o.metrics.BurstActive.Set(0)
			o.logger.Debug("burst window closed")
		}
		return o.skip(plan, SkipBurstExpired)
	}

	ready := o.readiness.Load()
	if !snap.GPUReady || ready == nil {
		return o.skip(plan, SkipBackendNotReady)
	}

	if !playing {
		plan.Multiplier = o.cinematic.Step(now, snap)
	}
	plan.PostFX = PostFXEnabled(snap)

	o.advanceFade(snap.Visible(), dt)
	opacity := FinalOpacity(snap.Intensity.Opacity, o.fade, plan.Multiplier)
	if opacity < MinOpacity {
		return o.skip(plan, SkipTransparent)
	}

	for _, d := range SelectLayers(snap.Effect, snap.Intensity, plan.Multiplier, plan.PostFX) {
		if _, ok := ready.Layer(d.Kind); ok {
			plan.Draws = append(plan.Draws, d)
		}
	}

	frame, err := o.backend.Acquire()
	if err != nil {
		if !errors.Is(err, ErrSurfaceNotReady) {
			o.logger.Debug("acquire drawable failed", "error", err)
		}
		plan.Draws = nil
		return o.skip(plan, SkipSurfaceNotReady)
	}

	width, height := frame.Size()
	plan.Uniforms = Uniforms{
		Time:           now.Sub(o.mountedAt).Seconds(),
		DeltaTime:      dt.Seconds(),
		Width:          width,
		Height:         height,
		Opacity:        opacity,
		Wind:           snap.Intensity.Wind,
		IntensityScale: plan.Multiplier,
		Speed:          snap.Intensity.Speed,
	}

	start := time.Now()
	o.render(*ready, frame, plan)
	frame.Present()
	o.metrics.FrameDuration.Observe(time.Since(start).Seconds())
	o.metrics.FramesRendered.Inc()
	return plan
}

func (o *Orchestrator) render(ready Readiness, frame Frame, plan FramePlan) {
	for _, d := range plan.Draws {
		layer, _ := ready.Layer(d.Kind)
		if u, ok := layer.(Updater); ok {
			u.Update(frame, plan.Uniforms, d.ParticleCount)
		}
		layer.Render(frame, plan.Uniforms, d)
	}
}

func (o *Orchestrator) skip(plan FramePlan, reason SkipReason) FramePlan {
	plan.Skipped = true
	plan.Reason = reason
	o.metrics.FramesSkipped.WithLabelValues(string(reason)).Inc()
	return plan
}

func (o *Orchestrator) advanceClock(now time.Time) time.Duration {
	if o.mountedAt.IsZero() {
		o.mountedAt = now
	}
	var dt time.Duration
	if !o.lastTick.IsZero() {
		dt = min(max(now.Sub(o.lastTick), 0), maxDelta)
	}
	o.lastTick = now
	return dt
}

func (o *Orchestrator) advanceFade(visible bool, dt time.Duration) {
	target := 0.0
	if visible {
		target = 1
	}
	if o.fadeDuration <= 0 {
		o.fade = target
		return
	}
	step := dt.Seconds() / o.fadeDuration.Seconds()
	if o.fade < target {
		o.fade = math.Min(o.fade+step, target)
	} else {
		o.fade = math.Max(o.fade-step, target)
	}
}

func (o *Orchestrator) observe(snap state.Snapshot) {
	if snap.Effect == o.lastEffect {
		return
	}
	if o.lastEffect != "" {
		o.metrics.EffectSelected.WithLabelValues(string(o.lastEffect)).Set(0)
	}
	o.metrics.EffectSelected.WithLabelValues(string(snap.Effect)).Set(1)
	o.lastEffect = snap.Effect
}

// syncAudio forwards state changes to the audio collaborator. It runs before
// any gate so audio follows visibility even while frames are skipped.
func (o *Orchestrator) syncAudio(snap state.Snapshot) {
	if o.audio == nil {
		o.audioSynced = true
		return
	}

	visible := snap.Visible()
	scale := snap.EffectIntensityScale
	first := !o.audioSynced

	if first || visible != o.audioVisible {
		o.audio.SetVisible(visible)
		o.audioVisible = visible
	}
	if first || snap.Effect != o.audioEffect {
		o.audio.SetEffect(snap.Effect)
		o.audioEffect = snap.Effect
	}
	if first || math.Abs(scale-o.audioScale) >= audioScaleStep || (scale == 1 && o.audioScale != 1) {
		o.audio.SetIntensityScale(scale)
		o.audioScale = scale
	}
	o.audioSynced = true
}
