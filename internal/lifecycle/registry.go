// Package lifecycle guards the start/stop boundaries of the ambiance overlay:
// a one-slot registry for the active surface, a one-time asynchronous
// initialiser, and a frame loop that can be stopped and restarted freely.
package lifecycle

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrAlreadyActive is returned when a second activation is attempted while a
// handle is still held.
var ErrAlreadyActive = errors.New("lifecycle: an overlay is already active")

// Registry holds at most one active Handle. It is passed explicitly to
// whoever owns the surface; there is no package-level instance.
type Registry struct {
	slot   atomic.Pointer[Handle]
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Activate claims the slot for owner. A refused activation logs a warning and
// leaves the current holder untouched.
func (r *Registry) Activate(owner string) (*Handle, error) {
	h := &Handle{id: uuid.NewString(), owner: owner, registry: r}
	if !r.slot.CompareAndSwap(nil, h) {
		current := r.slot.Load()
		attrs := []any{"owner", owner}
		if current != nil {
			attrs = append(attrs, "active_owner", current.owner, "active_id", current.id)
		}
		r.logger.Warn("activation refused, overlay already active", attrs...)
		return nil, ErrAlreadyActive
	}
	return h, nil
}

// Active returns the current handle, or nil.
func (r *Registry) Active() *Handle {
	return r.slot.Load()
}

// Handle is the token proving ownership of the registry slot.
type Handle struct {
	id       string
	owner    string
	registry *Registry
	released atomic.Bool
}

// ID returns the unique handle id.
func (h *Handle) ID() string { return h.id }

// Owner returns the name passed to Activate.
func (h *Handle) Owner() string { return h.owner }

// Release frees the slot. It is safe to call more than once and never frees a
// slot held by a different handle.
func (h *Handle) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.registry.slot.CompareAndSwap(h, nil)
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}
