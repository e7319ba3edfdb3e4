package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
)

var (
	// ErrSurfaceNotReady is returned by Backend.Acquire when no drawable is
	// available this tick. The frame is skipped without retry.
	ErrSurfaceNotReady = errors.New("orchestrator: drawable surface not ready")

	// ErrBackendUnavailable means the device cannot render at all. The overlay
	// then renders nothing, which is an expected outcome.
	ErrBackendUnavailable = errors.New("orchestrator: rendering backend unavailable")
)

// PixelFormat names the surface format handed to layers at init.
type PixelFormat string

// Frame is a drawable acquired for a single tick.
type Frame interface {
	Size() (width, height int)
	Present()
}

// Backend is the rendering device.
type Backend interface {
	// Init sets up the device and returns the surface format. It may block and
	// is called at most once per process.
	Init(ctx context.Context) (PixelFormat, error)
	// Acquire returns this tick's drawable or ErrSurfaceNotReady.
	Acquire() (Frame, error)
}

// Layer is one visual pass.
type Layer interface {
	Kind() LayerKind
	// Init prepares the layer's resources and reports success. Called once.
	Init(format PixelFormat) bool
	Render(frame Frame, u Uniforms, d Draw)
}

// Updater is implemented by layers with a compute pass run before Render.
type Updater interface {
	Update(frame Frame, u Uniforms, particleCount int)
}

// Audio is the ambient sound collaborator.
type Audio interface {
	SetVisible(visible bool)
	SetEffect(effect domain.WeatherEffect)
	SetIntensityScale(scale float64)
	Dispose()
}

// Readiness is the cached outcome of the one-time backend initialisation.
type Readiness struct {
	Format PixelFormat
	layers map[LayerKind]Layer
}

// Layer returns the initialised layer of the given kind.
func (r Readiness) Layer(kind LayerKind) (Layer, bool) {
	l, ok := r.layers[kind]
	return l, ok
}

// Kinds lists the initialised layers in draw order.
func (r Readiness) Kinds() []LayerKind {
	kinds := make([]LayerKind, 0, len(r.layers))
	for _, k := range drawOrder {
		if _, ok := r.layers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// InitBackend performs the device setup and initialises every layer once.
// Layers whose Init fails are left out of the result and never rendered.
func InitBackend(ctx context.Context, backend Backend, layers []Layer, logger *slog.Logger) (Readiness, error) {
	format, err := backend.Init(ctx)
	if err != nil {
		return Readiness{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	r := Readiness{Format: format, layers: make(map[LayerKind]Layer, len(layers))}
	for _, l := range layers {
		if !l.Init(format) {
			logger.Warn("layer init failed, layer disabled", "layer", l.Kind())
			continue
		}
		r.layers[l.Kind()] = l
	}
	logger.Info("rendering backend ready", "pixel_format", format, "layers", r.Kinds())
	return r, nil
}
