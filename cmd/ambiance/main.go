package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/storm-ambiance/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/storm-ambiance/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/storm-ambiance/internal/adapter/mqtt"
	"github.com/couchcryptid/storm-ambiance/internal/adapter/openmeteo"
	"github.com/couchcryptid/storm-ambiance/internal/adapter/sound"
	"github.com/couchcryptid/storm-ambiance/internal/adapter/terminal"
	valkeyadapter "github.com/couchcryptid/storm-ambiance/internal/adapter/valkey"
	"github.com/couchcryptid/storm-ambiance/internal/config"
	"github.com/couchcryptid/storm-ambiance/internal/ledger"
	"github.com/couchcryptid/storm-ambiance/internal/lifecycle"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/orchestrator"
	"github.com/couchcryptid/storm-ambiance/internal/pipeline"
	"github.com/couchcryptid/storm-ambiance/internal/power"
	"github.com/couchcryptid/storm-ambiance/internal/refresh"
	"github.com/couchcryptid/storm-ambiance/internal/state"
	"github.com/couchcryptid/storm-ambiance/internal/surface"
)

const (
	eventBuffer = 256
	audioLevel  = 0.6
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	sessionID := uuid.NewString()
	seed := uint64(time.Now().UnixNano()) //nolint:gosec // visual randomness only

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cinematic ledger: valkey when configured, otherwise this process only.
	var store ledger.Store = ledger.NewMemoryStore()
	if cfg.ValkeyAddr != "" {
		client, err := valkeyadapter.Connect(ctx, cfg.ValkeyAddr)
		if err != nil {
			logger.Warn("valkey unavailable, cinematic ledger kept in memory", "error", err)
		} else {
			defer client.Close()
			store = valkeyadapter.NewStore(client, cfg.ValkeyPrefix)
			logger.Info("cinematic ledger persisted to valkey", "prefix", cfg.ValkeyPrefix)
		}
	}
	book := ledger.NewBook(store, logger, 0)
	st := state.New(state.WithRecorder(book))

	// Event publishing (feature-flagged via KAFKA_ENABLED).
	var loader pipeline.BatchLoader = pipeline.NewLogLoader(logger)
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loader = writer
		logger.Info("kafka event publishing enabled", "topic", cfg.KafkaTopic)
	}
	publisher := pipeline.New(loader, logger, metrics, cfg.BatchSize, cfg.BatchFlushInterval, eventBuffer)

	// Weather.
	client := openmeteo.NewClient(cfg.WeatherBaseURL, cfg.WeatherTimeout, metrics, logger)
	source := openmeteo.NewCachedSource(client, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, clockwork.NewRealClock(), metrics)
	refresher := refresh.New(source, st, refresh.Options{
		Latitude:     cfg.Latitude,
		Longitude:    cfg.Longitude,
		EventAt:      cfg.EventAt,
		PollInterval: cfg.WeatherPollInterval,
		MinSpacing:   cfg.WeatherMinSpacing,
		Debounce:     cfg.WeatherDebounce,
		SessionID:    sessionID,
		Sink:         publisher,
	}, logger, metrics)

	backend, layers, quit, closeBackend := openRenderer(cfg, seed, logger)
	defer closeBackend()

	var audio orchestrator.Audio
	if cfg.AudioEnabled {
		speaker, err := sound.OpenSpeaker()
		if err != nil {
			logger.Warn("audio unavailable, ambiance stays silent", "error", err)
		} else {
			audio = sound.New(speaker, audioLevel, seed)
		}
	}

	surf := surface.New(surface.Deps{
		Registry: lifecycle.NewRegistry(logger),
		State:    st,
		Backend:  backend,
		Layers:   layers,
		Audio:    audio,
		Ledger:   book,
		Sink:     publisher,
		Logger:   logger,
		Metrics:  metrics,
	}, surface.Options{
		Name:            "events-tab",
		SessionID:       sessionID,
		FrameInterval:   cfg.FrameInterval(),
		BurstDuration:   cfg.BurstDuration,
		FadeDuration:    cfg.FadeDuration,
		AmbianceEnabled: cfg.AmbianceEnabled,
		Location:        cfg.Location,
	})
	surf.ApplyPower(probePower(ctx, cfg.PowerSource, logger), cfg.ReduceMotion)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := publisher.Run(ctx); err != nil {
			logger.Error("publisher error", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := refresher.Run(ctx); err != nil {
			logger.Error("refresher error", "error", err)
		}
	}()

	if err := surf.Mount(ctx); err != nil {
		logger.Error("failed to mount surface", "error", err)
		stop()
		wg.Wait()
		return
	}

	// Host surface signals. Without them this process is the surface.
	var sub *mqttadapter.Subscriber
	if cfg.MQTTBroker != "" {
		handler := mqttadapter.NewHandler(cfg.MQTTTopicPrefix, surf, refresher, logger)
		sub, err = mqttadapter.NewSubscriber(cfg.MQTTBroker, cfg.MQTTClientID, handler, logger)
		if err != nil {
			logger.Warn("mqtt unavailable, surface signals disabled", "error", err)
		}
	}
	if sub == nil {
		surf.Show()
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{surf, publisher, refresher}, surf, refresher, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-quit:
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	surf.Close()
	stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if sub != nil {
		if err := sub.Close(); err != nil {
			logger.Error("mqtt close error", "error", err)
		}
	}
	wg.Wait()
	if err := book.Flush(shutdownCtx); err != nil {
		logger.Error("ledger flush error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// openRenderer selects the rendering backend. A renderer that cannot start
// still yields a backend whose init fails, so the overlay renders nothing.
func openRenderer(cfg *config.Config, seed uint64, logger *slog.Logger) (orchestrator.Backend, []orchestrator.Layer, <-chan struct{}, func()) {
	if cfg.Renderer == config.RendererNone {
		return disabledBackend{reason: errors.New("renderer disabled")}, nil, nil, func() {}
	}

	tb, err := terminal.NewScreenBackend()
	if err != nil {
		logger.Warn("terminal unavailable", "error", err)
		return disabledBackend{reason: err}, nil, nil, func() {}
	}
	return tb, terminal.Layers(seed), tb.Quit(), tb.Close
}

func probePower(ctx context.Context, source string, logger *slog.Logger) power.Info {
	provider, err := power.New(source)
	if err != nil {
		logger.Warn("power probe disabled", "error", err)
		return power.Info{}
	}
	info, err := provider.Probe(ctx)
	if err != nil {
		logger.Debug("power information not available", "error", err)
		return power.Info{}
	}
	if info.BatteryLevel != nil {
		logger.Info("power probed", "low_power", info.LowPower, "battery_level", *info.BatteryLevel)
	} else {
		logger.Info("power probed", "low_power", info.LowPower)
	}
	return info
}

// disabledBackend never initialises.
type disabledBackend struct {
	reason error
}

func (b disabledBackend) Init(context.Context) (orchestrator.PixelFormat, error) {
	return "", b.reason
}

func (disabledBackend) Acquire() (orchestrator.Frame, error) {
	return nil, orchestrator.ErrSurfaceNotReady
}

// readiness is ready when every component is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("%T: %w", c, err)
		}
	}
	return nil
}
