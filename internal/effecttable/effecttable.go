package effecttable

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
)

// MaxCode is the highest WMO code in the table.
const MaxCode = 99

// tolerance absorbs float formatting differences after a JSON round trip.
const tolerance = 1e-9

// Scenario is a named set of metrics applied to every code.
type Scenario struct {
	Name    string                `json:"name"`
	Metrics domain.WeatherMetrics `json:"metrics"`
}

// Scenarios span calm to severe conditions.
var Scenarios = []Scenario{
	{Name: "calm", Metrics: domain.WeatherMetrics{}},
	{Name: "moderate", Metrics: domain.WeatherMetrics{WindSpeed: 20, Precipitation: 2.5, Temperature: 12, Humidity: 70, CloudCover: 60}},
	{Name: "severe", Metrics: domain.WeatherMetrics{WindSpeed: 90, Precipitation: 25, Temperature: 24, Humidity: 95, CloudCover: 100}},
}

// Row is one fixture entry.
type Row struct {
	Code      int                     `json:"code"`
	Scenario  string                  `json:"scenario"`
	Metrics   domain.WeatherMetrics   `json:"metrics"`
	Effect    domain.WeatherEffect    `json:"effect"`
	Intensity domain.WeatherIntensity `json:"intensity"`
}

// Build computes the table from the current mapper, ordered by scenario then
// code.
func Build() []Row {
	rows := make([]Row, 0, len(Scenarios)*(MaxCode+1))
	for _, s := range Scenarios {
		for code := 0; code <= MaxCode; code++ {
			effect, intensity := domain.ResolveReading(code, s.Metrics)
			rows = append(rows, Row{
				Code:      code,
				Scenario:  s.Name,
				Metrics:   s.Metrics,
				Effect:    effect,
				Intensity: intensity,
			})
		}
	}
	return rows
}

// Write stores rows as indented JSON, creating parent directories.
func Write(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// Load reads a fixture written by Write.
func Load(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rows, nil
}

// Counts tallies rows per effect.
func Counts(rows []Row) map[domain.WeatherEffect]int {
	counts := make(map[domain.WeatherEffect]int)
	for _, r := range rows {
		counts[r.Effect]++
	}
	return counts
}

// Check is one validation phase and its findings.
type Check struct {
	Name     string
	Findings []string
}

func (c *Check) errorf(format string, args ...any) {
	c.Findings = append(c.Findings, fmt.Sprintf(format, args...))
}

// Passed reports whether the phase found nothing.
func (c *Check) Passed() bool { return len(c.Findings) == 0 }

// Validate runs every phase against a loaded fixture.
func Validate(rows []Row) []*Check {
	return []*Check{
		checkCoverage(rows),
		checkDrift(rows),
		checkRanges(rows),
	}
}

type rowKey struct {
	scenario string
	code     int
}

func checkCoverage(rows []Row) *Check {
	c := &Check{Name: "Coverage (every code under every scenario)"}

	seen := make(map[rowKey]int, len(rows))
	for _, r := range rows {
		seen[rowKey{r.Scenario, r.Code}]++
	}
	for _, s := range Scenarios {
		for code := 0; code <= MaxCode; code++ {
			switch n := seen[rowKey{s.Name, code}]; {
			case n == 0:
				c.errorf("%s code %d: missing", s.Name, code)
			case n > 1:
				c.errorf("%s code %d: %d duplicate rows", s.Name, code, n)
			}
		}
	}

	var unknown []string
	for k := range seen {
		if k.code < 0 || k.code > MaxCode {
			unknown = append(unknown, fmt.Sprintf("%s code %d", k.scenario, k.code))
		}
	}
	sort.Strings(unknown)
	for _, u := range unknown {
		c.errorf("%s: outside the table", u)
	}
	return c
}

func checkDrift(rows []Row) *Check {
	c := &Check{Name: "Drift (fixture vs current mapper)"}
	opts := cmpopts.EquateApprox(0, tolerance)

	for _, r := range rows {
		effect, intensity := domain.ResolveReading(r.Code, r.Metrics)
		if effect != r.Effect {
			c.errorf("%s code %d: effect fixture=%s, mapper=%s", r.Scenario, r.Code, r.Effect, effect)
			continue
		}
		if diff := cmp.Diff(r.Intensity, intensity, opts); diff != "" {
			c.errorf("%s code %d: intensity mismatch (-fixture +mapper):\n%s", r.Scenario, r.Code, diff)
		}
	}
	return c
}

func checkRanges(rows []Row) *Check {
	c := &Check{Name: "Ranges (render parameters in bounds)"}

	unit := func(r Row, field string, v float64) {
		if v < 0 || v > 1 {
			c.errorf("%s code %d: %s %v outside [0, 1]", r.Scenario, r.Code, field, v)
		}
	}
	for _, r := range rows {
		if !r.Effect.Valid() {
			c.errorf("%s code %d: unknown effect %q", r.Scenario, r.Code, r.Effect)
		}
		unit(r, "opacity", r.Intensity.Opacity)
		unit(r, "fog_density", r.Intensity.FogDensity)
		unit(r, "thunder_chance", r.Intensity.ThunderChance)
		if r.Intensity.ParticleCount < 0 {
			c.errorf("%s code %d: negative particle count", r.Scenario, r.Code)
		}
		if r.Effect != domain.EffectThunder && r.Intensity.ThunderChance != 0 {
			c.errorf("%s code %d: thunder chance on %s", r.Scenario, r.Code, r.Effect)
		}
	}
	return c
}
