package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_ambiance"

// Metrics holds the Prometheus counters, histograms, and gauges for the ambiance overlay.
type Metrics struct {
	// Frame loop metrics.
	FramesRendered prometheus.Counter
	FramesSkipped  *prometheus.CounterVec // labels: reason
	FrameDuration  prometheus.Histogram
	BackendReady   prometheus.Gauge
	BurstActive    prometheus.Gauge
	EffectSelected *prometheus.GaugeVec // labels: effect
	CinematicPlays prometheus.Counter

	// Weather refresh metrics.
	WeatherRefreshes     *prometheus.CounterVec // labels: outcome={applied,unchanged,error,throttled}
	WeatherFetchDuration prometheus.Histogram
	WeatherCache         *prometheus.CounterVec // labels: result={hit,miss}

	// Event publishing metrics.
	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
}

// NewMetrics creates and registers all ambiance metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.FramesRendered,
		m.FramesSkipped,
		m.FrameDuration,
		m.BackendReady,
		m.BurstActive,
		m.EffectSelected,
		m.CinematicPlays,
		m.WeatherRefreshes,
		m.WeatherFetchDuration,
		m.WeatherCache,
		m.EventsPublished,
		m.EventsDropped,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FramesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Frames handed to the rendering backend.",
		}),
		FramesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_skipped_total",
			Help:      "Ticks that produced no backend work, by reason.",
		}, []string{"reason"}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Wall time spent in backend calls for a rendered frame.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.033, 0.1},
		}),
		BackendReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_ready",
			Help:      "1 when the rendering backend initialised successfully, 0 otherwise.",
		}),
		BurstActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "burst_active",
			Help:      "1 while a rendering burst window is open.",
		}),
		EffectSelected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "effect_selected",
			Help:      "1 for the currently selected weather effect, 0 for the rest.",
		}, []string{"effect"}),
		CinematicPlays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cinematic_plays_total",
			Help:      "Cinematic highlight moments started.",
		}),
		WeatherRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_refresh_total",
			Help:      "Weather refresh attempts by outcome.",
		}, []string{"outcome"}),
		WeatherFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_fetch_duration_seconds",
			Help:      "Upstream weather API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Ambiance events delivered to the event sink.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Ambiance events dropped because the publish buffer was full.",
		}),
	}
}
