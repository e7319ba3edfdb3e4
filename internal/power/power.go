package power

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotAvailable is returned when the platform exposes no power information.
var ErrNotAvailable = errors.New("power: information not available")

// Info is one probe result. BatteryLevel is nil when unknown.
type Info struct {
	LowPower     bool
	BatteryLevel *float64
}

// Provider is the power capability.
type Provider interface {
	Probe(ctx context.Context) (Info, error)
}

// NotAvailable is the provider for platforms without power information.
type NotAvailable struct{}

func (NotAvailable) Probe(context.Context) (Info, error) {
	return Info{}, ErrNotAvailable
}

// Static reports a fixed result, used for explicit configuration.
type Static struct {
	Info Info
}

func (s Static) Probe(context.Context) (Info, error) {
	return s.Info, nil
}

// Sysfs reads the first battery under a Linux power_supply class directory.
type Sysfs struct {
	Root string // defaults to /sys/class/power_supply
}

// lowPowerLevel marks a discharging battery at or below this level as low power.
const lowPowerLevel = 0.15

func (s Sysfs) Probe(ctx context.Context) (Info, error) {
	root := s.Root
	if root == "" {
		root = "/sys/class/power_supply"
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Info{}, ErrNotAvailable
		}
		return Info{}, fmt.Errorf("read %s: %w", root, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return Info{}, err
		}
		dir := filepath.Join(root, e.Name())
		if readAttr(dir, "type") != "Battery" {
			continue
		}
		capacity, err := strconv.ParseFloat(readAttr(dir, "capacity"), 64)
		if err != nil {
			continue
		}
		level := min(max(capacity/100, 0), 1)
		discharging := readAttr(dir, "status") == "Discharging"
		return Info{
			LowPower:     discharging && level <= lowPowerLevel,
			BatteryLevel: &level,
		}, nil
	}
	return Info{}, ErrNotAvailable
}

func readAttr(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// New selects a provider by name: "sysfs", "none", or "ac" (mains power,
// battery unknown).
func New(source string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", "sysfs":
		return Sysfs{}, nil
	case "none":
		return NotAvailable{}, nil
	case "ac":
		return Static{}, nil
	default:
		return nil, fmt.Errorf("unknown power source %q", source)
	}
}
