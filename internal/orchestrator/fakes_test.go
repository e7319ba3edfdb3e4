package orchestrator_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/cinematic"
	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/orchestrator"
	"github.com/couchcryptid/storm-ambiance/internal/state"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callLog) take() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.calls
	c.calls = nil
	return out
}

type fakeFrame struct{ log *callLog }

func (f *fakeFrame) Size() (int, int) { return 80, 24 }
func (f *fakeFrame) Present()         { f.log.add("present") }

type fakeBackend struct {
	log        *callLog
	initErr    error
	acquireErr error
	inits      int
}

func (b *fakeBackend) Init(context.Context) (orchestrator.PixelFormat, error) {
	b.inits++
	return "rgba8", b.initErr
}

func (b *fakeBackend) Acquire() (orchestrator.Frame, error) {
	b.log.add("acquire")
	if b.acquireErr != nil {
		return nil, b.acquireErr
	}
	return &fakeFrame{log: b.log}, nil
}

type fakeLayer struct {
	kind     orchestrator.LayerKind
	log      *callLog
	initOK   bool
	draws    []orchestrator.Draw
	uniforms []orchestrator.Uniforms
}

func (l *fakeLayer) Kind() orchestrator.LayerKind { return l.kind }

func (l *fakeLayer) Init(orchestrator.PixelFormat) bool {
	return l.initOK
}

func (l *fakeLayer) Render(_ orchestrator.Frame, u orchestrator.Uniforms, d orchestrator.Draw) {
	l.log.add("render:" + string(l.kind))
	l.draws = append(l.draws, d)
	l.uniforms = append(l.uniforms, u)
}

// computeLayer adds a compute pass.
type computeLayer struct {
	*fakeLayer
	particles []int
}

func (l *computeLayer) Update(_ orchestrator.Frame, _ orchestrator.Uniforms, particleCount int) {
	l.log.add("update:" + string(l.kind))
	l.particles = append(l.particles, particleCount)
}

type fakeAudio struct {
	visible  []bool
	effects  []domain.WeatherEffect
	scales   []float64
	disposed int
}

func (a *fakeAudio) SetVisible(v bool)                { a.visible = append(a.visible, v) }
func (a *fakeAudio) SetEffect(e domain.WeatherEffect) { a.effects = append(a.effects, e) }
func (a *fakeAudio) SetIntensityScale(s float64)      { a.scales = append(a.scales, s) }
func (a *fakeAudio) Dispose()                         { a.disposed++ }

// --- fixture ---

var fixtureStart = time.Date(2024, time.April, 26, 18, 0, 0, 0, time.UTC)

type fixture struct {
	clock   *clockwork.FakeClock
	state   *state.State
	log     *callLog
	backend *fakeBackend
	rain    *computeLayer
	snow    *fakeLayer
	fog     *fakeLayer
	thunder *fakeLayer
	postfx  *fakeLayer
	audio   *fakeAudio
	metrics *observability.Metrics
	orch    *orchestrator.Orchestrator
}

type fixtureOpts struct {
	fade          time.Duration
	allowCinema   bool
	snowInitFails bool
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(fixtureStart)
	log := &callLog{}
	f := &fixture{
		clock:   clock,
		state:   state.New(state.WithClock(clock)),
		log:     log,
		backend: &fakeBackend{log: log},
		rain:    &computeLayer{fakeLayer: &fakeLayer{kind: orchestrator.LayerRain, log: log, initOK: true}},
		snow:    &fakeLayer{kind: orchestrator.LayerSnow, log: log, initOK: !opts.snowInitFails},
		fog:     &fakeLayer{kind: orchestrator.LayerFog, log: log, initOK: true},
		thunder: &fakeLayer{kind: orchestrator.LayerThunder, log: log, initOK: true},
		postfx:  &fakeLayer{kind: orchestrator.LayerPostFX, log: log, initOK: true},
		audio:   &fakeAudio{},
		metrics: observability.NewMetricsForTesting(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := cinematic.NewController(f.state, logger, f.metrics, cinematic.WithLocation(time.UTC))
	f.orch = orchestrator.New(f.state, ctrl, f.backend, logger, f.metrics,
		orchestrator.WithAudio(f.audio),
		orchestrator.WithFadeDuration(opts.fade),
	)

	layers := []orchestrator.Layer{f.postfx, f.thunder, f.snow, f.rain, f.fog}
	ready, err := orchestrator.InitBackend(context.Background(), f.backend, layers, logger)
	require.NoError(t, err)
	f.orch.SetReadiness(ready)

	if !opts.allowCinema {
		f.state.RestoreCinematicPlayed(domain.DayKey(fixtureStart, time.UTC))
	}
	return f
}

// open makes the overlay fully eligible to render the given weather.
func (f *fixture) open(code int, m domain.WeatherMetrics) {
	f.state.SetWeather(code, m)
	f.state.SetEventsTabVisible(true)
	f.state.SetVisibilityEnabled(true)
	f.state.SetGPUReady(true)
	f.state.StartBurst(10 * time.Second)
}

func (f *fixture) tick() orchestrator.FramePlan {
	return f.orch.Tick(f.clock.Now())
}
