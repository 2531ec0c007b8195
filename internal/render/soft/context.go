// Package soft is a CPU implementation of render.Context. It rasterizes with
// a float depth buffer and float RGBA color so baking can run headless and in
// tests with the same contract as the GL backend.
package soft

import (
	"fmt"

	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// Target is a CPU float RGBA target with a depth buffer.
type Target struct {
	width  int
	height int
	color  []float32
	depth  []float32
}

// Width returns the target width in pixels.
func (t *Target) Width() int { return t.width }

// Height returns the target height in pixels.
func (t *Target) Height() int { return t.height }

// Release drops the pixel storage.
func (t *Target) Release() {
	t.color = nil
	t.depth = nil
}

func newTarget(width, height int) *Target {
	return &Target{
		width:  width,
		height: height,
		color:  make([]float32, width*height*4),
		depth:  make([]float32, width*height),
	}
}

// Context is the software rendering context. It is not safe for concurrent
// use; like a GL context it belongs to one thread of control at a time.
type Context struct {
	screen *Target
	target *Target

	viewport    render.Rect
	scissor     render.Rect
	scissorTest bool
	clearColor  math.Vec3
	clearAlpha  float32
	autoClear   bool
	toneMapping render.ToneMapping

	defaultMaterial *scene.Material
}

// New creates a context whose default target is a width×height screen.
func New(width, height int) *Context {
	screen := newTarget(width, height)
	return &Context{
		screen:          screen,
		target:          screen,
		viewport:        render.Rect{W: width, H: height},
		scissor:         render.Rect{W: width, H: height},
		clearAlpha:      1,
		autoClear:       true,
		toneMapping:     render.ToneMappingACES,
		defaultMaterial: scene.NewMaterial("default"),
	}
}

var _ render.Context = (*Context)(nil)

// NewTarget allocates an off-screen target.
func (c *Context) NewTarget(width, height int) (render.Target, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	return newTarget(width, height), nil
}

// SetTarget makes t current; nil selects the screen. Like GL, the viewport
// is left alone and must be set by the caller.
func (c *Context) SetTarget(t render.Target) {
	if t == nil {
		c.target = c.screen
		return
	}
	st, ok := t.(*Target)
	if !ok {
		panic(fmt.Sprintf("soft: foreign render target %T", t))
	}
	c.target = st
}

// Target returns the current target, or nil when the screen is current.
func (c *Context) Target() render.Target {
	if c.target == c.screen {
		return nil
	}
	return c.target
}

// Screen returns the default target.
func (c *Context) Screen() *Target { return c.screen }

func (c *Context) SetViewport(r render.Rect) { c.viewport = r }
func (c *Context) Viewport() render.Rect { return c.viewport }
func (c *Context) SetScissor(r render.Rect) { c.scissor = r }
func (c *Context) Scissor() render.Rect { return c.scissor }
func (c *Context) SetScissorTest(enabled bool) { c.scissorTest = enabled }
func (c *Context) ScissorTest() bool { return c.scissorTest }
func (c *Context) SetClearColor(col math.Vec3) { c.clearColor = col }
func (c *Context) ClearColor() math.Vec3 { return c.clearColor }
func (c *Context) SetClearAlpha(a float32) { c.clearAlpha = a }
func (c *Context) ClearAlpha() float32 { return c.clearAlpha }
func (c *Context) SetAutoClear(enabled bool) { c.autoClear = enabled }
func (c *Context) AutoClear() bool { return c.autoClear }
func (c *Context) SetToneMapping(t render.ToneMapping) { c.toneMapping = t }
func (c *Context) ToneMapping() render.ToneMapping { return c.toneMapping }

// writeBounds returns the pixel range writes are allowed to touch: the whole
// target, narrowed by the scissor rectangle when the scissor test is on.
func (c *Context) writeBounds() (x0, y0, x1, y1 int) {
	x0, y0, x1, y1 = 0, 0, c.target.width, c.target.height
	if c.scissorTest {
		x0 = max(x0, c.scissor.X)
		y0 = max(y0, c.scissor.Y)
		x1 = min(x1, c.scissor.X+c.scissor.W)
		y1 = min(y1, c.scissor.Y+c.scissor.H)
	}
	return x0, y0, x1, y1
}

// Clear resets color and depth inside the write bounds.
func (c *Context) Clear() {
	x0, y0, x1, y1 := c.writeBounds()
	t := c.target
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			i := y*t.width + x
			t.color[i*4] = c.clearColor.X
			t.color[i*4+1] = c.clearColor.Y
			t.color[i*4+2] = c.clearColor.Z
			t.color[i*4+3] = c.clearAlpha
			t.depth[i] = 1
		}
	}
}

// ReadPixels copies r from the current target, bottom row first.
func (c *Context) ReadPixels(r render.Rect, dst []float32) error {
	t := c.target
	if r.X < 0 || r.Y < 0 || r.W < 0 || r.H < 0 || r.X+r.W > t.width || r.Y+r.H > t.height {
		return fmt.Errorf("read rect %+v outside %dx%d target", r, t.width, t.height)
	}
	if len(dst) < r.W*r.H*4 {
		return fmt.Errorf("read buffer holds %d values, need %d", len(dst), r.W*r.H*4)
	}
	for row := 0; row < r.H; row++ {
		src := ((r.Y+row)*t.width + r.X) * 4
		copy(dst[row*r.W*4:(row+1)*r.W*4], t.color[src:src+r.W*4])
	}
	return nil
}
