// Package state holds the single authoritative runtime state of the ambiance
// overlay. Every mutation goes through a setter on State and is applied under
// one lock, so readers only ever see whole snapshots.
package state

import (
	"sync"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Recorder persists a cinematic play for a calendar day. Record is called
// while the state lock is held and must not block.
type Recorder interface {
	Record(dayKey string)
}

// Snapshot is an immutable copy of the runtime state.
type Snapshot struct {
	Effect    domain.WeatherEffect    `json:"effect"`
	Code      int                     `json:"code"`
	Metrics   domain.WeatherMetrics   `json:"metrics"`
	Intensity domain.WeatherIntensity `json:"intensity"`

	EventsTabVisible bool `json:"events_tab_visible"`
	AmbianceEnabled  bool `json:"ambiance_enabled"`
	GPUReady         bool `json:"gpu_ready"`

	ReduceMotion bool     `json:"reduce_motion"`
	LowPower     bool     `json:"low_power"`
	BatteryLevel *float64 `json:"battery_level"`

	BurstActive  bool      `json:"burst_active"`
	BurstEndTime time.Time `json:"burst_end_time"`

	CinematicPhase       domain.CinematicPhase `json:"cinematic_phase"`
	EffectIntensityScale float64               `json:"effect_intensity_scale"`
}

// Visible reports whether the surface is showing and ambiance is switched on.
func (s Snapshot) Visible() bool {
	return s.EventsTabVisible && s.AmbianceEnabled
}

// State is the mutable aggregate. The zero value is not usable; call New.
type State struct {
	mu    sync.RWMutex
	snap  Snapshot
	clock clockwork.Clock

	played            map[string]bool
	playedThisSession bool
	recorder          Recorder
}

// Option configures a State.
type Option func(*State)

// WithClock sets the time source used to compute burst end times.
func WithClock(c clockwork.Clock) Option {
	return func(s *State) { s.clock = c }
}

// WithRecorder attaches the persistence hook for cinematic plays.
func WithRecorder(r Recorder) Option {
	return func(s *State) { s.recorder = r }
}

// New creates a State with every gate closed and no weather selected.
func New(opts ...Option) *State {
	s := &State{
		clock:  clockwork.NewRealClock(),
		played: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap = closedSnapshot()
	return s
}

func closedSnapshot() Snapshot {
	return Snapshot{
		Effect:               domain.EffectNone,
		Intensity:            domain.ComputeIntensity(domain.EffectNone, domain.WeatherMetrics{}),
		CinematicPhase:       domain.PhaseIdle,
		EffectIntensityScale: 1,
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	if snap.BatteryLevel != nil {
		level := *snap.BatteryLevel
		snap.BatteryLevel = &level
	}
	return snap
}

// SetWeather recomputes effect and intensity from a reading and replaces both
// together. It reports whether the selected effect changed.
func (s *State) SetWeather(code int, m domain.WeatherMetrics) bool {
	effect, intensity := domain.ResolveReading(code, m)

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.snap.Effect != effect
	s.snap.Effect = effect
	s.snap.Code = code
	s.snap.Metrics = m
	s.snap.Intensity = intensity
	return changed
}

// SetFlags replaces the accessibility and power gates together. A nil battery
// level means the level is unknown.
func (s *State) SetFlags(reduceMotion, lowPower bool, batteryLevel *float64) {
	var level *float64
	if batteryLevel != nil {
		v := *batteryLevel
		level = &v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ReduceMotion = reduceMotion
	s.snap.LowPower = lowPower
	s.snap.BatteryLevel = level
}

// SetEventsTabVisible records whether the host surface is on screen.
func (s *State) SetEventsTabVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.EventsTabVisible = visible
}

// SetGPUReady records whether the rendering backend finished initialising.
func (s *State) SetGPUReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.GPUReady = ready
}

// SetVisibilityEnabled switches weather ambiance on or off.
func (s *State) SetVisibilityEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.AmbianceEnabled = enabled
}

// StartBurst opens a rendering window lasting d from now. A running window is
// replaced.
func (s *State) StartBurst(d time.Duration) {
	if d <= 0 {
		s.EndBurst()
		return
	}
	end := s.clock.Now().Add(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.BurstActive = true
	s.snap.BurstEndTime = end
}

// EndBurst closes the rendering window. It reports whether a window was open,
// so callers can tell the single transition apart from repeated calls.
func (s *State) EndBurst() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.snap.BurstActive {
		return false
	}
	s.snap.BurstActive = false
	s.snap.BurstEndTime = time.Time{}
	return true
}

// SetCinematicPhase moves the cinematic forward. Requests that would move the
// phase backwards are ignored and reported as false.
func (s *State) SetCinematicPhase(phase domain.CinematicPhase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phaseRank(phase) <= phaseRank(s.snap.CinematicPhase) {
		return false
	}
	s.snap.CinematicPhase = phase
	return true
}

// SetEffectIntensityScale sets the global intensity multiplier.
func (s *State) SetEffectIntensityScale(scale float64) {
	if scale < 0 {
		scale = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.EffectIntensityScale = scale
}

// ShouldPlayCinematicToday reports whether the cinematic may start: no play is
// recorded for dayKey and none has happened in this session.
func (s *State) ShouldPlayCinematicToday(dayKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.played[dayKey] && !s.playedThisSession
}

// MarkCinematicPlayed closes both gates for dayKey and hands the day to the
// recorder. Call it before moving the phase to Playing.
func (s *State) MarkCinematicPlayed(dayKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markPlayedLocked(dayKey)
}

func (s *State) markPlayedLocked(dayKey string) {
	s.played[dayKey] = true
	s.playedThisSession = true
	if s.recorder != nil {
		s.recorder.Record(dayKey)
	}
}

// TryMarkCinematicPlayed checks the gate for dayKey and closes it under one
// lock. Only the first caller for a closed session gets true.
func (s *State) TryMarkCinematicPlayed(dayKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.played[dayKey] || s.playedThisSession {
		return false
	}
	s.markPlayedLocked(dayKey)
	return true
}

// RestoreCinematicPlayed loads a persisted play for dayKey without touching
// the session gate.
func (s *State) RestoreCinematicPlayed(dayKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played[dayKey] = true
}

// Reset closes every gate after the owning surface unmounts. Weather, the
// probed power flags and the cinematic ledger survive; an interrupted
// cinematic counts as done.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase := s.snap.CinematicPhase
	if phase == domain.PhasePlaying || phase == domain.PhaseFadingOut {
		phase = domain.PhaseDone
	}

	next := closedSnapshot()
	next.Effect = s.snap.Effect
	next.Code = s.snap.Code
	next.Metrics = s.snap.Metrics
	next.Intensity = s.snap.Intensity
	next.ReduceMotion = s.snap.ReduceMotion
	next.LowPower = s.snap.LowPower
	next.BatteryLevel = s.snap.BatteryLevel
	next.CinematicPhase = phase
	s.snap = next
}

func phaseRank(p domain.CinematicPhase) int {
	switch p {
	case domain.PhasePlaying:
		return 1
	case domain.PhaseFadingOut:
		return 2
	case domain.PhaseDone:
		return 3
	default:
		return 0
	}
}
