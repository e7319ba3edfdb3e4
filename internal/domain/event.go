package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened on the ambiance surface.
type EventType string

const (
	EventWeatherApplied    EventType = "weather_applied"
	EventCinematicStarted  EventType = "cinematic_started"
	EventCinematicFinished EventType = "cinematic_finished"
	EventSurfaceMounted    EventType = "surface_mounted"
	EventSurfaceUnmounted  EventType = "surface_unmounted"
)

// AmbianceEvent is the record published to the event sink.
type AmbianceEvent struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Type       EventType         `json:"type"`
	Effect     WeatherEffect     `json:"effect,omitempty"`
	Code       *int              `json:"code,omitempty"`
	Metrics    *WeatherMetrics   `json:"metrics,omitempty"`
	Intensity  *WeatherIntensity `json:"intensity,omitempty"`
	DayKey     string            `json:"day_key,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the package clock.
func NewEvent(sessionID string, typ EventType, effect WeatherEffect) AmbianceEvent {
	return AmbianceEvent{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Type:       typ,
		Effect:     effect,
		OccurredAt: clock.Now().UTC(),
	}
}

// NewWeatherAppliedEvent records a weather change together with the reading that caused it.
func NewWeatherAppliedEvent(sessionID string, code int, m WeatherMetrics, effect WeatherEffect, in WeatherIntensity) AmbianceEvent {
	evt := NewEvent(sessionID, EventWeatherApplied, effect)
	evt.Code = &code
	evt.Metrics = &m
	evt.Intensity = &in
	return evt
}
