package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockLoader struct {
	mu       sync.Mutex
	batches  [][]domain.AmbianceEvent
	failures int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.AmbianceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.batches = append(m.batches, append([]domain.AmbianceEvent(nil), events...))
	return nil
}

func (m *mockLoader) loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *mockLoader) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func makeEvent(typ domain.EventType) domain.AmbianceEvent {
	return domain.NewEvent("session-1", typ, domain.EffectRain)
}

func runPublisher(t *testing.T, p *pipeline.Publisher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	require.Eventually(t, func() bool { return p.CheckReadiness(context.Background()) == nil },
		time.Second, 5*time.Millisecond)
	return cancel, done
}

// --- tests ---

func TestPublisher_FlushesOnBatchSize(t *testing.T) {
	ldr := &mockLoader{}
	metrics := newTestMetrics()
	p := pipeline.New(ldr, slog.Default(), metrics, 3, time.Hour, 10)

	cancel, done := runPublisher(t, p)
	defer cancel()

	for range 3 {
		p.Emit(makeEvent(domain.EventWeatherApplied))
	}

	require.Eventually(t, func() bool { return ldr.loaded() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ldr.batchCount())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.EventsPublished))
}

func TestPublisher_FlushesOnInterval(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(ldr, slog.Default(), newTestMetrics(), 100, 20*time.Millisecond, 100)

	cancel, done := runPublisher(t, p)
	defer cancel()

	p.Emit(makeEvent(domain.EventCinematicStarted))

	require.Eventually(t, func() bool { return ldr.loaded() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestPublisher_RetriesFailedBatch(t *testing.T) {
	ldr := &mockLoader{failures: 2}
	p := pipeline.New(ldr, slog.Default(), newTestMetrics(), 1, time.Hour, 10)

	cancel, done := runPublisher(t, p)
	defer cancel()

	p.Emit(makeEvent(domain.EventSurfaceMounted))

	require.Eventually(t, func() bool { return ldr.loaded() == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestPublisher_DrainsOnShutdown(t *testing.T) {
	ldr := &mockLoader{}
	p := pipeline.New(ldr, slog.Default(), newTestMetrics(), 100, time.Hour, 100)

	cancel, done := runPublisher(t, p)
	p.Emit(makeEvent(domain.EventCinematicFinished))
	p.Emit(makeEvent(domain.EventSurfaceUnmounted))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 2, ldr.loaded())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPublisher_EmitNeverBlocks(t *testing.T) {
	metrics := newTestMetrics()
	p := pipeline.New(&mockLoader{}, slog.Default(), metrics, 1, time.Hour, 2)

	for range 5 {
		p.Emit(makeEvent(domain.EventWeatherApplied))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.EventsDropped))
}

func TestPublisher_NotReadyBeforeRun(t *testing.T) {
	p := pipeline.New(&mockLoader{}, slog.Default(), newTestMetrics(), 1, time.Hour, 1)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestLogLoader(t *testing.T) {
	l := pipeline.NewLogLoader(slog.Default())
	require.NoError(t, l.LoadBatch(context.Background(), []domain.AmbianceEvent{makeEvent(domain.EventWeatherApplied)}))
}
