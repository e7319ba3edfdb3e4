// Package terminal renders the ambiance layers into a tcell screen. Each cell
// stands in for a block of pixels, so particle counts are scaled down to the
// screen area.
package terminal

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/couchcryptid/storm-ambiance/internal/orchestrator"
)

// Surface formats reported by Backend.Init.
const (
	FormatRGB  orchestrator.PixelFormat = "rgb"
	FormatANSI orchestrator.PixelFormat = "ansi"
)

const trueColorDepth = 1 << 24

// Backend adapts a tcell.Screen to the orchestrator's rendering device.
type Backend struct {
	screen tcell.Screen
	quit   chan struct{}
	once   sync.Once

	mu          sync.Mutex
	initialised bool
	closed      bool
}

// NewBackend wraps screen. The screen is initialised by Init, not here.
func NewBackend(screen tcell.Screen) *Backend {
	return &Backend{screen: screen, quit: make(chan struct{})}
}

// NewScreenBackend opens the process terminal.
func NewScreenBackend() (*Backend, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	return NewBackend(screen), nil
}

// Init sets up the screen and reports its color depth as the surface format.
func (b *Backend) Init(ctx context.Context) (orchestrator.PixelFormat, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", fmt.Errorf("terminal backend closed")
	}
	if err := b.screen.Init(); err != nil {
		return "", fmt.Errorf("init screen: %w", err)
	}
	b.initialised = true
	b.screen.HideCursor()
	b.screen.Clear()
	go b.pollEvents()

	if b.screen.Colors() >= trueColorDepth {
		return FormatRGB, nil
	}
	return FormatANSI, nil
}

// Acquire clears the screen and hands it out as this tick's frame. A screen
// with no area is not ready.
func (b *Backend) Acquire() (orchestrator.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialised || b.closed {
		return nil, orchestrator.ErrSurfaceNotReady
	}

	w, h := b.screen.Size()
	if w <= 0 || h <= 0 {
		return nil, orchestrator.ErrSurfaceNotReady
	}
	b.screen.Clear()
	return &Frame{screen: b.screen, width: w, height: h}, nil
}

// Close restores the terminal. It is safe to call more than once.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.initialised {
		b.screen.Fini()
	}
}

// Quit is closed when the user presses Ctrl-C, Escape or q. The screen is in
// raw mode, so these never arrive as signals.
func (b *Backend) Quit() <-chan struct{} {
	return b.quit
}

// pollEvents runs until Fini makes PollEvent return nil.
func (b *Backend) pollEvents() {
	for {
		switch ev := b.screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			b.screen.Sync()
		case *tcell.EventKey:
			if isQuitKey(ev) {
				b.once.Do(func() { close(b.quit) })
			}
		}
	}
}

func isQuitKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'q'
	default:
		return false
	}
}

// Frame is one tick's view of the screen.
type Frame struct {
	screen        tcell.Screen
	width, height int
}

// Size returns the frame size in cells.
func (f *Frame) Size() (int, int) {
	return f.width, f.height
}

// Present flushes the frame to the terminal.
func (f *Frame) Present() {
	f.screen.Show()
}

// Set draws r at (x, y). Cells outside the frame are ignored.
func (f *Frame) Set(x, y int, r rune, style tcell.Style) {
	if x < 0 || y < 0 || x >= f.width || y >= f.height {
		return
	}
	f.screen.SetContent(x, y, r, nil, style)
}

// Get returns the rune and style currently at (x, y).
func (f *Frame) Get(x, y int) (rune, tcell.Style) {
	r, _, style, _ := f.screen.GetContent(x, y)
	return r, style
}
