package sound

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"

	"github.com/couchcryptid/storm-ambiance/internal/domain"
	"github.com/couchcryptid/storm-ambiance/internal/orchestrator"
)

const sampleRate = beep.SampleRate(44100)

// Output is where the noise bed is played. Lock and Unlock guard changes to
// streamers the output is currently reading.
type Output interface {
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Clear()
}

// Speaker plays through the default audio device.
type Speaker struct{}

// OpenSpeaker initialises the audio device with a 100ms buffer.
func OpenSpeaker() (Speaker, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return Speaker{}, fmt.Errorf("init speaker: %w", err)
	}
	return Speaker{}, nil
}

func (Speaker) Play(s beep.Streamer) { speaker.Play(s) }
func (Speaker) Lock()                { speaker.Lock() }
func (Speaker) Unlock()              { speaker.Unlock() }
func (Speaker) Clear()               { speaker.Clear() }

// Audio implements orchestrator.Audio on top of an Output.
type Audio struct {
	out   Output
	level float64

	mu       sync.Mutex
	bed      *noiseBed
	volume   *effects.Volume
	ctrl     *beep.Ctrl
	scale    float64
	disposed bool
}

// New starts a paused, silent noise bed on out. Level is the volume at
// intensity scale 1, in [0, 1].
func New(out Output, level float64, seed uint64) *Audio {
	bed := &noiseBed{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	volume := &effects.Volume{Streamer: bed, Base: 2, Silent: true}
	ctrl := &beep.Ctrl{Streamer: volume, Paused: true}

	a := &Audio{
		out:    out,
		level:  math.Min(math.Max(level, 0), 1),
		bed:    bed,
		volume: volume,
		ctrl:   ctrl,
		scale:  1,
	}
	a.applyVolume()
	out.Play(ctrl)
	return a
}

// SetVisible pauses or resumes the bed.
func (a *Audio) SetVisible(visible bool) {
	a.update(func() { a.ctrl.Paused = !visible })
}

// SetEffect switches the bed to the effect's sound profile.
func (a *Audio) SetEffect(effect domain.WeatherEffect) {
	a.update(func() { a.bed.profile = profileFor(effect) })
}

// SetIntensityScale scales the volume. The cinematic pushes it up to 2.5.
func (a *Audio) SetIntensityScale(scale float64) {
	a.update(func() {
		a.scale = math.Max(scale, 0)
		a.applyVolume()
	})
}

// Dispose stops playback. Later calls are no-ops.
func (a *Audio) Dispose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.disposed = true
	a.out.Lock()
	a.ctrl.Paused = true
	a.ctrl.Streamer = nil
	a.out.Unlock()
	a.out.Clear()
}

func (a *Audio) update(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return
	}
	a.out.Lock()
	fn()
	a.out.Unlock()
}

// applyVolume maps level*scale onto the logarithmic volume effect. Zero is
// silent since log2(0) is -Inf.
func (a *Audio) applyVolume() {
	v := a.level * a.scale
	if v <= 0 {
		a.volume.Silent = true
		a.volume.Volume = 0
		return
	}
	a.volume.Silent = false
	a.volume.Volume = math.Log2(v)
}

var _ orchestrator.Audio = (*Audio)(nil)
