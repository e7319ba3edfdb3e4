// Package surface owns the ambiance overlay's lifecycle for one host surface:
// it mounts and unmounts the frame loop, shares the runtime state with the
// orchestrator, and translates host signals into state mutations.
package surface

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-ambiance/internal/cinematic"
	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/lifecycle"
	"github.com/couchcryptid/storm-ambiance/internal/observability"
	"github.com/couchcryptid/storm-ambiance/internal/orchestrator"
	"github.com/couchcryptid/storm-ambiance/internal/power"
	"github.com/couchcryptid/storm-ambiance/internal/state"
)

// Ledger reads persisted cinematic plays.
type Ledger interface {
	Played(ctx context.Context, dayKey string) (bool, error)
}

// EventSink receives surface lifecycle events. Emit must not block.
type EventSink interface {
	Emit(event domain.AmbianceEvent)
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Registry *lifecycle.Registry
	State    *state.State
	Backend  orchestrator.Backend
	Layers   []orchestrator.Layer
	Audio    orchestrator.Audio // optional
	Ledger   Ledger             // optional
	Sink     EventSink          // optional
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Options tunes a Controller.
type Options struct {
	Name            string
	SessionID       string
	FrameInterval   time.Duration
	BurstDuration   time.Duration
	FadeDuration    time.Duration
	AmbianceEnabled bool
	Location        *time.Location
	Clock           clockwork.Clock
}

// Controller mounts one overlay. Its methods are safe for concurrent use.
type Controller struct {
	deps Deps
	opts Options

	orch *orchestrator.Orchestrator
	init *lifecycle.Once[orchestrator.Readiness]
	loop *lifecycle.Loop

	mu          sync.Mutex
	handle      *lifecycle.Handle
	cancel      context.CancelFunc
	enabled     bool
	closed      bool
	dispose     sync.Once
	unavailable sync.Once
}

// New creates an unmounted Controller.
func New(deps Deps, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Name == "" {
		opts.Name = "surface"
	}

	ctrlOpts := []cinematic.Option{cinematic.WithLocation(opts.Location)}
	if deps.Sink != nil {
		ctrlOpts = append(ctrlOpts, cinematic.WithEventSink(opts.SessionID, deps.Sink))
	}
	ctrl := cinematic.NewController(deps.State, deps.Logger, deps.Metrics, ctrlOpts...)

	orchOpts := []orchestrator.Option{orchestrator.WithFadeDuration(opts.FadeDuration)}
	if deps.Audio != nil {
		orchOpts = append(orchOpts, orchestrator.WithAudio(deps.Audio))
	}

	c := &Controller{
		deps:    deps,
		opts:    opts,
		orch:    orchestrator.New(deps.State, ctrl, deps.Backend, deps.Logger, deps.Metrics, orchOpts...),
		init:    lifecycle.NewOnce[orchestrator.Readiness](),
		enabled: opts.AmbianceEnabled,
	}
	c.loop = lifecycle.NewLoop(opts.Clock, opts.FrameInterval, func(now time.Time) {
		c.orch.Tick(now)
	})
	return c
}

// Mount claims the registry slot, primes today's ledger entry, kicks off the
// one-time backend initialisation and starts the frame loop. A refused
// activation returns lifecycle.ErrAlreadyActive and changes nothing.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("surface: controller closed")
	}
	handle, err := c.deps.Registry.Activate(c.opts.Name)
	if err != nil {
		return err
	}

	c.primeLedger(ctx)
	c.deps.State.SetVisibilityEnabled(c.enabled)

	mountCtx, cancel := context.WithCancel(context.Background())
	c.handle = handle
	c.cancel = cancel

	c.init.Start(ctx, func(initCtx context.Context) (orchestrator.Readiness, error) {
		return orchestrator.InitBackend(initCtx, c.deps.Backend, c.deps.Layers, c.deps.Logger)
	})
	go c.awaitBackend(mountCtx, handle)

	c.orch.Rewind()
	c.loop.Start()
	c.deps.Logger.Info("surface mounted", "handle", handle.ID(), "frame_interval", c.opts.FrameInterval)
	c.emit(domain.EventSurfaceMounted)
	return nil
}

// Unmount stops the frame loop, closes every gate and releases the slot. No
// backend call happens after it returns. It is safe to call repeatedly.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unmountLocked()
}

func (c *Controller) unmountLocked() {
	if c.handle == nil {
		return
	}
	c.cancel()
	c.loop.Stop()
	c.deps.State.Reset()
	c.deps.Metrics.BurstActive.Set(0)
	if c.deps.Audio != nil {
		c.deps.Audio.SetVisible(false)
	}

	id := c.handle.ID()
	c.handle.Release()
	c.handle = nil
	c.cancel = nil
	c.deps.Logger.Info("surface unmounted", "handle", id)
	c.emit(domain.EventSurfaceUnmounted)
}

// Close unmounts and disposes the audio collaborator. Later Mount calls fail.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unmountLocked()
	c.closed = true
	c.dispose.Do(func() {
		if c.deps.Audio != nil {
			c.deps.Audio.Dispose()
		}
	})
}

// Mounted reports whether the controller holds the registry slot.
func (c *Controller) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// Show marks the host surface visible and opens a burst window.
func (c *Controller) Show() {
	c.deps.State.SetEventsTabVisible(true)
	c.Burst(c.opts.BurstDuration)
}

// Hide marks the host surface hidden. The fade runs out on the next ticks.
func (c *Controller) Hide() {
	c.deps.State.SetEventsTabVisible(false)
}

// Burst opens a rendering window of d, replacing any running one.
func (c *Controller) Burst(d time.Duration) {
	c.deps.State.StartBurst(d)
	if d > 0 {
		c.deps.Metrics.BurstActive.Set(1)
	}
}

// SetAmbianceEnabled switches ambiance on or off. The setting survives
// unmounts.
func (c *Controller) SetAmbianceEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	c.deps.State.SetVisibilityEnabled(enabled)
}

// ApplyPower forwards a power probe and the reduce-motion preference.
func (c *Controller) ApplyPower(info power.Info, reduceMotion bool) {
	c.deps.State.SetFlags(reduceMotion, info.LowPower, info.BatteryLevel)
}

// Snapshot returns the current runtime state.
func (c *Controller) Snapshot() state.Snapshot {
	return c.deps.State.Snapshot()
}

// CheckReadiness returns nil once mounted and the backend initialisation has
// resolved, whether or not the device can render.
func (c *Controller) CheckReadiness(_ context.Context) error {
	if !c.Mounted() {
		return errors.New("surface is not mounted")
	}
	if !c.init.Resolved() {
		return errors.New("rendering backend still initialising")
	}
	return nil
}

func (c *Controller) primeLedger(ctx context.Context) {
	if c.deps.Ledger == nil {
		return
	}
	dayKey := domain.DayKey(c.opts.Clock.Now(), c.opts.Location)
	played, err := c.deps.Ledger.Played(ctx, dayKey)
	if err != nil {
		c.deps.Logger.Warn("ledger read failed, cinematic gate relies on this session", "day_key", dayKey, "error", err)
		return
	}
	if played {
		c.deps.State.RestoreCinematicPlayed(dayKey)
	}
}

// awaitBackend publishes the cached init result to this mount.
func (c *Controller) awaitBackend(ctx context.Context, handle *lifecycle.Handle) {
	readiness, err := c.init.Wait(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.unavailable.Do(func() {
			c.deps.Logger.Info("rendering backend unavailable, overlay renders nothing", "error", err)
		})
		c.deps.Metrics.BackendReady.Set(0)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != handle {
		return
	}
	c.orch.SetReadiness(readiness)
	c.deps.State.SetGPUReady(true)
	c.deps.Metrics.BackendReady.Set(1)
}

func (c *Controller) emit(typ domain.EventType) {
	if c.deps.Sink == nil {
		return
	}
	c.deps.Sink.Emit(domain.NewEvent(c.opts.SessionID, typ, c.deps.State.Snapshot().Effect))
}
