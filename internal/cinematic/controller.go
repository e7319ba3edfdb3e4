// Package cinematic runs the once-a-day highlight moment: an Idle → Playing →
// Done state machine layered on the runtime state, plus its timing curve.
package cinematic

import (
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/state"
)

// EventSink receives lifecycle events. Emit must not block.
type EventSink interface {
	Emit(event domain.AmbianceEvent)
}

// Controller drives the cinematic phase. It is stepped from the frame loop only.
type Controller struct {
	state     *state.State
	location  *time.Location
	sink      EventSink
	sessionID string
	logger    *slog.Logger
	metrics   *observability.Metrics

	startedAt time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocation sets the zone used to derive calendar-day keys.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.location = loc }
}

// WithEventSink publishes cinematic_started / cinematic_finished events.
func WithEventSink(sessionID string, sink EventSink) Option {
	return func(c *Controller) {
		c.sessionID = sessionID
		c.sink = sink
	}
}

// NewController creates a Controller bound to st.
func NewController(st *state.State, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Controller {
	c := &Controller{
		state:    st,
		location: time.Local,
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Step advances the state machine to now using a snapshot taken at the start
// of the tick, and returns the intensity multiplier for this tick.
func (c *Controller) Step(now time.Time, snap state.Snapshot) float64 {
	switch snap.CinematicPhase {
	case domain.PhaseIdle:
		return c.maybeStart(now, snap)
	case domain.PhasePlaying:
		return c.advance(now, snap)
	default:
		return 1
	}
}

// Reset forgets the entry time. A controller reset mid-play restarts the
// curve on the next step rather than jumping to the end.
func (c *Controller) Reset() {
	c.startedAt = time.Time{}
}

func (c *Controller) maybeStart(now time.Time, snap state.Snapshot) float64 {
	if !eligible(snap) {
		return 1
	}

	// The gate closes before the phase moves so a second check cannot pass.
	dayKey := domain.DayKey(now, c.location)
	if !c.state.TryMarkCinematicPlayed(dayKey) {
		return 1
	}
	if !c.state.SetCinematicPhase(domain.PhasePlaying) {
		return 1
	}

	c.startedAt = now
	c.metrics.CinematicPlays.Inc()
	c.logger.Info("cinematic started", "effect", snap.Effect, "day_key", dayKey)
	c.emit(domain.EventCinematicStarted, snap.Effect, dayKey)

	m, _ := Multiplier(0)
	c.state.SetEffectIntensityScale(m)
	return m
}

func (c *Controller) advance(now time.Time, snap state.Snapshot) float64 {
	if c.startedAt.IsZero() {
		c.startedAt = now
	}

	m, done := Multiplier(now.Sub(c.startedAt))
	if !done {
		c.state.SetEffectIntensityScale(m)
		return m
	}

	c.state.SetCinematicPhase(domain.PhaseDone)
	c.state.SetEffectIntensityScale(1)
	c.logger.Info("cinematic finished", "effect", snap.Effect)
	c.emit(domain.EventCinematicFinished, snap.Effect, domain.DayKey(c.startedAt, c.location))
	return 1
}

func (c *Controller) emit(typ domain.EventType, effect domain.WeatherEffect, dayKey string) {
	if c.sink == nil {
		return
	}
	evt := domain.NewEvent(c.sessionID, typ, effect)
	evt.DayKey = dayKey
	c.sink.Emit(evt)
}

func eligible(snap state.Snapshot) bool {
	return snap.EventsTabVisible &&
		snap.GPUReady &&
		snap.AmbianceEnabled &&
		snap.Effect != domain.EffectNone
}
