package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/power"
)

// Signal topics, relative to the configured prefix.
const (
	TopicVisibility = "visibility"
	TopicEnabled    = "enabled"
	TopicBurst      = "burst"
	TopicPower      = "power"
	TopicRefresh    = "refresh"
	TopicStatus     = "status"
)

// maxBurst bounds burst requests so a bad payload cannot keep rendering on.
const maxBurst = 10 * time.Minute

// Surface is the part of the surface controller driven by signals.
type Surface interface {
	Show()
	Hide()
	Burst(d time.Duration)
	SetAmbianceEnabled(enabled bool)
	ApplyPower(info power.Info, reduceMotion bool)
}

// Refresher accepts out-of-band weather refresh requests.
type Refresher interface {
	Trigger()
}

// PowerPayload is the body of a power signal.
type PowerPayload struct {
	LowPower     bool     `json:"low_power"`
	BatteryLevel *float64 `json:"battery_level"`
	ReduceMotion bool     `json:"reduce_motion"`
}

// Handler maps signal messages to calls. It holds no connection state.
type Handler struct {
	prefix    string
	surface   Surface
	refresher Refresher
	logger    *slog.Logger
}

// NewHandler creates a handler for topics under prefix. Refresher may be nil.
func NewHandler(prefix string, surface Surface, refresher Refresher, logger *slog.Logger) *Handler {
	return &Handler{
		prefix:    strings.TrimSuffix(prefix, "/"),
		surface:   surface,
		refresher: refresher,
		logger:    logger,
	}
}

// Filter is the subscription filter covering every signal topic.
func (h *Handler) Filter() string {
	return h.prefix + "/#"
}

// Topic returns the full topic for a signal.
func (h *Handler) Topic(signal string) string {
	return h.prefix + "/" + signal
}

// Handle applies one message. Unknown topics are ignored.
func (h *Handler) Handle(topic string, payload []byte) error {
	signal, ok := strings.CutPrefix(topic, h.prefix+"/")
	if !ok {
		return nil
	}
	body := strings.TrimSpace(string(payload))

	switch signal {
	case TopicVisibility:
		switch strings.ToLower(body) {
		case "visible", "shown", "true", "1":
			h.surface.Show()
		case "hidden", "false", "0":
			h.surface.Hide()
		default:
			return fmt.Errorf("invalid visibility %q", body)
		}
	case TopicEnabled:
		enabled, err := strconv.ParseBool(body)
		if err != nil {
			return fmt.Errorf("invalid enabled flag %q: %w", body, err)
		}
		h.surface.SetAmbianceEnabled(enabled)
	case TopicBurst:
		d, err := time.ParseDuration(body)
		if err != nil {
			return fmt.Errorf("invalid burst duration %q: %w", body, err)
		}
		if d <= 0 || d > maxBurst {
			return fmt.Errorf("burst duration %s out of range (0, %s]", d, maxBurst)
		}
		h.surface.Burst(d)
	case TopicPower:
		var p PowerPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode power payload: %w", err)
		}
		if p.BatteryLevel != nil && (*p.BatteryLevel < 0 || *p.BatteryLevel > 1) {
			return fmt.Errorf("battery level %v out of range [0, 1]", *p.BatteryLevel)
		}
		h.surface.ApplyPower(power.Info{LowPower: p.LowPower, BatteryLevel: p.BatteryLevel}, p.ReduceMotion)
	case TopicRefresh:
		if h.refresher != nil {
			h.refresher.Trigger()
		}
	default:
		return nil
	}

	h.logger.Debug("surface signal applied", "signal", signal)
	return nil
}
