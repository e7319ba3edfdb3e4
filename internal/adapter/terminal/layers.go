package terminal

import (
	"math"
	"math/rand/v2"

	"github.com/gdamore/tcell/v2"

	"github.com/couchcryptid/storm-ambiance/internal/orchestrator"
)

// referenceArea is the cell count that receives a layer's full particle
// count. Smaller screens get proportionally fewer particles.
const referenceArea = 80 * 24 * 8

// flashDuration is how long a lightning flash stays on screen.
const flashDuration = 0.12 // seconds

var (
	rainColor    = rgb{170, 190, 220}
	snowColor    = rgb{240, 244, 250}
	fogColor     = rgb{150, 155, 165}
	thunderColor = rgb{235, 235, 255}
)

type rgb struct{ r, g, b float64 }

// scaled dims c by opacity, clamped to [0, 1].
func (c rgb) scaled(opacity float64) tcell.Color {
	o := math.Min(math.Max(opacity, 0), 1)
	return tcell.NewRGBColor(int32(c.r*o), int32(c.g*o), int32(c.b*o))
}

// Layers returns every terminal layer in draw order, each with its own random
// stream derived from seed.
func Layers(seed uint64) []orchestrator.Layer {
	return []orchestrator.Layer{
		NewFogLayer(),
		NewRainLayer(newRand(seed, 1)),
		NewSnowLayer(newRand(seed, 2)),
		NewThunderLayer(newRand(seed, 3)),
		NewPostFXLayer(),
	}
}

func newRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// scaledCount maps a particle count onto the frame's cell area.
func scaledCount(count, width, height int) int {
	if count <= 0 {
		return 0
	}
	n := int(math.Round(float64(count) * float64(width*height) / referenceArea))
	return max(n, 1)
}

func frameOf(f orchestrator.Frame) (*Frame, bool) {
	tf, ok := f.(*Frame)
	return tf, ok
}

// --- particles ---

type particle struct {
	x, y  float64
	speed float64
}

// particleField is the compute state shared by rain and snow.
type particleField struct {
	rng       *rand.Rand
	particles []particle
}

// resize grows or shrinks the field to n, seeding new particles anywhere on
// the frame.
func (p *particleField) resize(n, width, height int) {
	if n <= len(p.particles) {
		p.particles = p.particles[:n]
		return
	}
	for len(p.particles) < n {
		p.particles = append(p.particles, particle{
			x:     p.rng.Float64() * float64(width),
			y:     p.rng.Float64() * float64(height),
			speed: 0.75 + p.rng.Float64()*0.5,
		})
	}
}

// advance moves every particle by its velocity and wraps it around the frame.
func (p *particleField) advance(u orchestrator.Uniforms, fall, drift float64) {
	w, h := float64(u.Width), float64(u.Height)
	if w <= 0 || h <= 0 {
		return
	}
	for i := range p.particles {
		pt := &p.particles[i]
		pt.y += fall * pt.speed * u.Speed * u.DeltaTime
		pt.x += drift * u.Wind.X * u.DeltaTime
		pt.y = math.Mod(pt.y, h)
		pt.x = math.Mod(pt.x+w, w)
	}
}

// RainLayer draws falling streaks slanted by the wind.
type RainLayer struct {
	field particleField
}

// NewRainLayer creates a rain layer drawing from rng.
func NewRainLayer(rng *rand.Rand) *RainLayer {
	return &RainLayer{field: particleField{rng: rng}}
}

func (l *RainLayer) Kind() orchestrator.LayerKind       { return orchestrator.LayerRain }
func (l *RainLayer) Init(orchestrator.PixelFormat) bool { return true }

// Update resizes and advances the drops. Rain falls about a screen height per
// second at speed 1.
func (l *RainLayer) Update(frame orchestrator.Frame, u orchestrator.Uniforms, particleCount int) {
	w, h := frame.Size()
	l.field.resize(scaledCount(particleCount, w, h), w, h)
	l.field.advance(u, float64(h), float64(w)/4)
}

func (l *RainLayer) Render(frame orchestrator.Frame, u orchestrator.Uniforms, _ orchestrator.Draw) {
	f, ok := frameOf(frame)
	if !ok {
		return
	}
	glyph := '|'
	switch {
	case u.Wind.X > 0.2:
		glyph = '\\'
	case u.Wind.X < -0.2:
		glyph = '/'
	}
	style := tcell.StyleDefault.Foreground(rainColor.scaled(u.Opacity))
	for _, p := range l.field.particles {
		f.Set(int(p.x), int(p.y), glyph, style)
	}
}

// SnowLayer draws slow flakes drifting with the wind.
type SnowLayer struct {
	field particleField
}

// NewSnowLayer creates a snow layer drawing from rng.
func NewSnowLayer(rng *rand.Rand) *SnowLayer {
	return &SnowLayer{field: particleField{rng: rng}}
}

func (l *SnowLayer) Kind() orchestrator.LayerKind       { return orchestrator.LayerSnow }
func (l *SnowLayer) Init(orchestrator.PixelFormat) bool { return true }

func (l *SnowLayer) Update(frame orchestrator.Frame, u orchestrator.Uniforms, particleCount int) {
	w, h := frame.Size()
	l.field.resize(scaledCount(particleCount, w, h), w, h)
	l.field.advance(u, float64(h)/2, float64(w)/2)
}

func (l *SnowLayer) Render(frame orchestrator.Frame, u orchestrator.Uniforms, _ orchestrator.Draw) {
	f, ok := frameOf(frame)
	if !ok {
		return
	}
	style := tcell.StyleDefault.Foreground(snowColor.scaled(u.Opacity))
	for i, p := range l.field.particles {
		glyph := '*'
		if i%3 == 0 {
			glyph = '.'
		}
		f.Set(int(p.x), int(p.y), glyph, style)
	}
}

// --- fog ---

// FogLayer shades cells with a slowly drifting band pattern. Density sets how
// much of the screen is covered.
type FogLayer struct{}

func NewFogLayer() *FogLayer { return &FogLayer{} }

func (l *FogLayer) Kind() orchestrator.LayerKind       { return orchestrator.LayerFog }
func (l *FogLayer) Init(orchestrator.PixelFormat) bool { return true }

func (l *FogLayer) Render(frame orchestrator.Frame, u orchestrator.Uniforms, d orchestrator.Draw) {
	f, ok := frameOf(frame)
	if !ok || d.FogDensity <= 0 {
		return
	}
	threshold := 1 - d.FogDensity
	drift := u.Time * u.Speed
	w, h := f.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := fogNoise(float64(x), float64(y), drift)
			if v < threshold {
				continue
			}
			glyph := '░'
			if v-threshold > 0.3 {
				glyph = '▒'
			}
			f.Set(x, y, glyph, tcell.StyleDefault.Foreground(fogColor.scaled(u.Opacity*v)))
		}
	}
}

// fogNoise returns a smooth value in [0, 1].
func fogNoise(x, y, t float64) float64 {
	v := math.Sin(x*0.21+t) + math.Sin(y*0.47-t*0.6) + math.Sin((x+y)*0.13+t*0.3)
	return (v + 3) / 6
}

// --- thunder ---

// ThunderLayer flashes the whole frame. The draw's chance is the probability
// of a strike per second.
type ThunderLayer struct {
	rng   *rand.Rand
	flash float64 // seconds left on the current flash
}

// NewThunderLayer creates a thunder layer drawing from rng.
func NewThunderLayer(rng *rand.Rand) *ThunderLayer {
	return &ThunderLayer{rng: rng}
}

func (l *ThunderLayer) Kind() orchestrator.LayerKind       { return orchestrator.LayerThunder }
func (l *ThunderLayer) Init(orchestrator.PixelFormat) bool { return true }

func (l *ThunderLayer) Render(frame orchestrator.Frame, u orchestrator.Uniforms, d orchestrator.Draw) {
	f, ok := frameOf(frame)
	if !ok {
		return
	}
	l.flash = math.Max(l.flash-u.DeltaTime, 0)
	if l.flash == 0 && l.rng.Float64() < d.ThunderChance*u.DeltaTime {
		l.flash = flashDuration
	}
	if l.flash == 0 {
		return
	}

	bg := thunderColor.scaled(u.Opacity * l.flash / flashDuration)
	w, h := f.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, style := f.Get(x, y)
			if r == 0 {
				r = ' '
			}
			f.Set(x, y, r, style.Background(bg))
		}
	}
}

// --- post-processing ---

// PostFXLayer darkens the frame toward its edges. It needs true color to blend
// and refuses to initialise on palette terminals.
type PostFXLayer struct{}

func NewPostFXLayer() *PostFXLayer { return &PostFXLayer{} }

func (l *PostFXLayer) Kind() orchestrator.LayerKind { return orchestrator.LayerPostFX }

func (l *PostFXLayer) Init(format orchestrator.PixelFormat) bool {
	return format == FormatRGB
}

func (l *PostFXLayer) Render(frame orchestrator.Frame, _ orchestrator.Uniforms, _ orchestrator.Draw) {
	f, ok := frameOf(frame)
	if !ok {
		return
	}
	w, h := f.Size()
	cx, cy := float64(w-1)/2, float64(h-1)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, style := f.Get(x, y)
			if r == 0 || r == ' ' {
				continue
			}
			dx, dy := (float64(x)-cx)/math.Max(cx, 1), (float64(y)-cy)/math.Max(cy, 1)
			k := 1 - 0.45*math.Min(dx*dx+dy*dy, 1)
			fg, bg, _ := style.Decompose()
			f.Set(x, y, r, style.Foreground(dim(fg, k)).Background(dim(bg, k)))
		}
	}
}

func dim(c tcell.Color, k float64) tcell.Color {
	if c == tcell.ColorDefault {
		return c
	}
	r, g, b := c.RGB()
	return tcell.NewRGBColor(int32(float64(r)*k), int32(float64(g)*k), int32(float64(b)*k))
}

var (
	_ orchestrator.Updater = (*RainLayer)(nil)
	_ orchestrator.Updater = (*SnowLayer)(nil)
)
