package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/state"
)

var (
	// ErrNoReading is returned by a Source that answered but had no data for
	// the requested point.
	ErrNoReading = errors.New("refresh: no weather reading available")

	// ErrThrottled is returned when a refresh would violate the minimum
	// spacing between upstream requests.
	ErrThrottled = errors.New("refresh: minimum spacing not elapsed")
)

// forecastHorizon is how far ahead a scheduled event may be and still
// override current conditions.
const forecastHorizon = 7 * 24 * time.Hour

// Source fetches weather readings.
type Source interface {
	Current(ctx context.Context, lat, lon float64) (domain.Reading, error)
	ForecastAt(ctx context.Context, lat, lon float64, at time.Time) (domain.Reading, error)
}

// EventSink receives weather_applied events. Emit must not block.
type EventSink interface {
	Emit(event domain.AmbianceEvent)
}

// Options configures a Refresher.
type Options struct {
	Latitude     float64
	Longitude    float64
	EventAt      time.Time // zero for none
	PollInterval time.Duration
	MinSpacing   time.Duration
	Debounce     time.Duration
	SessionID    string
	Sink         EventSink
	Clock        clockwork.Clock
}

// Refresher drives weather updates into a State.
type Refresher struct {
	source  Source
	state   *state.State
	opts    Options
	clock   clockwork.Clock
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *observability.Metrics

	trigger chan struct{}
	ready   atomic.Bool
}

// New creates a Refresher.
func New(source Source, st *state.State, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Refresher{
		source:  source,
		state:   st,
		opts:    opts,
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(opts.MinSpacing), 1),
		logger:  logger,
		metrics: metrics,
		trigger: make(chan struct{}, 1),
	}
}

// CheckReadiness returns nil once a reading has been applied.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no weather reading applied yet")
	}
	return nil
}

// Trigger requests a refresh outside the poll cadence. Calls within the
// debounce window collapse into one refresh. It never blocks.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes immediately, then on every poll interval and after debounced
// triggers, until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("weather refresher started",
		"poll_interval", r.opts.PollInterval,
		"min_spacing", r.opts.MinSpacing,
		"event_at", r.opts.EventAt,
	)
	r.refreshOnce(ctx)

	ticker := r.clock.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	var (
		debounce   clockwork.Timer
		debounceCh <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("weather refresher stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			r.refreshOnce(ctx)
		case <-r.trigger:
			if r.opts.Debounce <= 0 {
				r.refreshOnce(ctx)
				continue
			}
			if debounce == nil {
				debounce = r.clock.NewTimer(r.opts.Debounce)
			} else {
				debounce.Reset(r.opts.Debounce)
			}
			debounceCh = debounce.Chan()
		case <-debounceCh:
			debounceCh = nil
			r.refreshOnce(ctx)
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		// Transient failures keep the previous state.
		r.logger.Debug("weather refresh skipped", "error", err)
	}
}

// Refresh fetches one reading and applies it. It reports whether the selected
// effect changed. On error the state is left untouched.
func (r *Refresher) Refresh(ctx context.Context) (bool, error) {
	now := r.clock.Now()
	if !r.limiter.AllowN(now, 1) {
		r.metrics.WeatherRefreshes.WithLabelValues("throttled").Inc()
		return false, ErrThrottled
	}

	reading, err := r.fetch(ctx, now)
	if err != nil {
		r.metrics.WeatherRefreshes.WithLabelValues("error").Inc()
		return false, err
	}

	changed := r.state.SetWeather(reading.Code, reading.Metrics)
	r.ready.Store(true)
	if !changed {
		r.metrics.WeatherRefreshes.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	r.metrics.WeatherRefreshes.WithLabelValues("applied").Inc()
	snap := r.state.Snapshot()
	r.logger.Info("weather effect changed",
		"effect", snap.Effect,
		"code", reading.Code,
		"source", reading.Source,
	)
	if r.opts.Sink != nil {
		r.opts.Sink.Emit(domain.NewWeatherAppliedEvent(r.opts.SessionID, reading.Code, reading.Metrics, snap.Effect, snap.Intensity))
	}
	return true, nil
}

func (r *Refresher) fetch(ctx context.Context, now time.Time) (domain.Reading, error) {
	if at := r.opts.EventAt; !at.IsZero() && at.After(now) && at.Sub(now) <= forecastHorizon {
		return r.source.ForecastAt(ctx, r.opts.Latitude, r.opts.Longitude, at)
	}
	return r.source.Current(ctx, r.opts.Latitude, r.opts.Longitude)
}
