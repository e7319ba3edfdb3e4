package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/state"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type fakeSource struct {
	mu        sync.Mutex
	reading   domain.Reading
	err       error
	current   int
	forecasts []time.Time
}

func (s *fakeSource) Current(context.Context, float64, float64) (domain.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	return s.reading, s.err
}

func (s *fakeSource) ForecastAt(_ context.Context, _, _ float64, at time.Time) (domain.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts = append(s.forecasts, at)
	return s.reading, s.err
}

func (s *fakeSource) set(r domain.Reading, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading, s.err = r, err
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current + len(s.forecasts)
}

type captureSink struct {
	mu     sync.Mutex
	events []domain.AmbianceEvent
}

func (c *captureSink) Emit(e domain.AmbianceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

var testStart = time.Date(2024, time.April, 26, 18, 0, 0, 0, time.UTC)

func thunder() domain.Reading {
	return domain.Reading{Code: 95, Metrics: domain.WeatherMetrics{Precipitation: 10}, Source: "current"}
}

type harness struct {
	clock   *clockwork.FakeClock
	source  *fakeSource
	sink    *captureSink
	state   *state.State
	metrics *observability.Metrics
	r       *Refresher
}

func newHarness(opts Options) *harness {
	h := &harness{
		clock:   clockwork.NewFakeClockAt(testStart),
		source:  &fakeSource{reading: thunder()},
		sink:    &captureSink{},
		state:   state.New(),
		metrics: observability.NewMetricsForTesting(),
	}
	opts.Clock = h.clock
	opts.Sink = h.sink
	opts.SessionID = "session-1"
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Minute
	}
	if opts.MinSpacing == 0 {
		opts.MinSpacing = time.Minute
	}
	h.r = New(h.source, h.state, opts, slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics)
	return h
}

// --- tests ---

func TestRefresh_AppliesReading(t *testing.T) {
	h := newHarness(Options{})

	changed, err := h.r.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	snap := h.state.Snapshot()
	assert.Equal(t, domain.EffectThunder, snap.Effect)
	assert.Equal(t, 900, snap.Intensity.ParticleCount)
	require.NoError(t, h.r.CheckReadiness(context.Background()))

	require.Len(t, h.sink.events, 1)
	evt := h.sink.events[0]
	assert.Equal(t, domain.EventWeatherApplied, evt.Type)
	assert.Equal(t, "session-1", evt.SessionID)
	require.NotNil(t, evt.Code)
	assert.Equal(t, 95, *evt.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WeatherRefreshes.WithLabelValues("applied")))
}

func TestRefresh_UnchangedEffectEmitsNothing(t *testing.T) {
	h := newHarness(Options{})

	_, err := h.r.Refresh(context.Background())
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	h.source.set(domain.Reading{Code: 96, Metrics: domain.WeatherMetrics{Precipitation: 4}}, nil)
	changed, err := h.r.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Len(t, h.sink.events, 1)
	assert.Equal(t, 600, h.state.Snapshot().Intensity.ParticleCount, "metrics still applied")
}

func TestRefresh_MinimumSpacing(t *testing.T) {
	h := newHarness(Options{MinSpacing: time.Minute})

	_, err := h.r.Refresh(context.Background())
	require.NoError(t, err)

	h.clock.Advance(30 * time.Second)
	_, err = h.r.Refresh(context.Background())
	require.ErrorIs(t, err, ErrThrottled)
	assert.Equal(t, 1, h.source.calls())

	h.clock.Advance(30 * time.Second)
	_, err = h.r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.source.calls())
}

func TestRefresh_FailureKeepsPreviousState(t *testing.T) {
	h := newHarness(Options{})
	_, err := h.r.Refresh(context.Background())
	require.NoError(t, err)
	before := h.state.Snapshot()

	h.clock.Advance(time.Minute)
	h.source.set(domain.Reading{}, errors.New("status 503"))
	_, err = h.r.Refresh(context.Background())
	require.Error(t, err)

	assert.Equal(t, before, h.state.Snapshot())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.WeatherRefreshes.WithLabelValues("error")))
}

func TestRefresh_NotReadyUntilFirstReading(t *testing.T) {
	h := newHarness(Options{})
	h.source.set(domain.Reading{}, ErrNoReading)

	_, err := h.r.Refresh(context.Background())
	require.ErrorIs(t, err, ErrNoReading)
	assert.Error(t, h.r.CheckReadiness(context.Background()))
}

func TestRefresh_ScheduledEventOverride(t *testing.T) {
	cases := []struct {
		name     string
		eventAt  time.Time
		forecast bool
	}{
		{name: "no event", eventAt: time.Time{}, forecast: false},
		{name: "event tomorrow", eventAt: testStart.Add(26 * time.Hour), forecast: true},
		{name: "event at horizon", eventAt: testStart.Add(7 * 24 * time.Hour), forecast: true},
		{name: "event too far out", eventAt: testStart.Add(8 * 24 * time.Hour), forecast: false},
		{name: "event already started", eventAt: testStart.Add(-time.Hour), forecast: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(Options{EventAt: tc.eventAt})

			_, err := h.r.Refresh(context.Background())
			require.NoError(t, err)

			if tc.forecast {
				assert.Equal(t, []time.Time{tc.eventAt}, h.source.forecasts)
				assert.Zero(t, h.source.current)
			} else {
				assert.Empty(t, h.source.forecasts)
				assert.Equal(t, 1, h.source.current)
			}
		})
	}
}

func TestRun_PollsOnInterval(t *testing.T) {
	h := newHarness(Options{PollInterval: 10 * time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.r.Run(ctx) }()

	require.Eventually(t, func() bool { return h.source.calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))

	h.clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return h.source.calls() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_TriggersAreDebounced(t *testing.T) {
	h := newHarness(Options{Debounce: 2 * time.Second, MinSpacing: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Triggers queued before Run collapse into one pending request.
	h.r.Trigger()
	h.r.Trigger()
	h.r.Trigger()

	done := make(chan error, 1)
	go func() { done <- h.r.Run(ctx) }()

	require.Eventually(t, func() bool { return h.source.calls() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.clock.BlockUntilContext(ctx, 2), "poll ticker and debounce timer")

	h.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return h.source.calls() == 2 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, h.source.calls())

	cancel()
	require.NoError(t, <-done)
}
