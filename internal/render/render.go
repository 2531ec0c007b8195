// Package render defines the rendering capability the baker borrows from its
// host: off-screen float targets, viewport/scissor control, scene rendering
// from an arbitrary camera, raw attribute rasterization and pixel read-back.
//
// Coordinates follow GL conventions: the origin is the bottom-left corner and
// read-back rows run bottom to top.
package render

import (
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// ToneMapping selects the output curve applied to shaded fragments.
type ToneMapping uint8

const (
	// ToneMappingLinear writes shaded radiance unchanged.
	ToneMappingLinear ToneMapping = iota
	// ToneMappingACES applies the filmic ACES approximation.
	ToneMappingACES
)

func (t ToneMapping) String() string {
	if t == ToneMappingACES {
		return "aces"
	}
	return "linear"
}

// Rect is an integer pixel rectangle.
type Rect struct {
	X, Y, W, H int
}

// Camera is a view and projection pair.
type Camera struct {
	View       math.Mat4
	Projection math.Mat4
	Position   math.Vec3
}

// PerspectiveCamera builds a camera at eye looking along dir.
func PerspectiveCamera(eye, dir, up math.Vec3, fovY, aspect, near, far float32) Camera {
	return Camera{
		View:       math.LookDir(eye, dir, up),
		Projection: math.Perspective(fovY, aspect, near, far),
		Position:   eye,
	}
}

// ViewProjection returns Projection * View.
func (c Camera) ViewProjection() math.Mat4 {
	return c.Projection.Mul(c.View)
}

// Target is an off-screen RGBA float render target with depth.
type Target interface {
	Width() int
	Height() int
	// Release frees the target's resources.
	Release()
}

// Context is a single shared rendering context. Callers borrow its state
// (target, clear values, auto-clear and tone mapping) and must restore it.
type Context interface {
	NewTarget(width, height int) (Target, error)
	SetTarget(t Target)
	Target() Target

	SetViewport(r Rect)
	Viewport() Rect
	SetScissor(r Rect)
	Scissor() Rect
	SetScissorTest(enabled bool)
	ScissorTest() bool

	SetClearColor(c math.Vec3)
	ClearColor() math.Vec3
	SetClearAlpha(a float32)
	ClearAlpha() float32
	SetAutoClear(enabled bool)
	AutoClear() bool
	SetToneMapping(t ToneMapping)
	ToneMapping() ToneMapping

	// Clear clears color and depth of the current target, honouring the
	// scissor test.
	Clear()

	// Render draws every visible node under root as seen by cam into the
	// current viewport, clearing first when auto-clear is on.
	Render(root *scene.Node, cam Camera)

	// DrawAttributeTriangles rasterizes triangles given directly in clip
	// space (xy in [-1, 1]) without depth testing, writing the interpolated
	// per-vertex attributes as the output color.
	DrawAttributeTriangles(clipXY [][2]float32, attrs [][4]float32)

	// ReadPixels copies an RGBA float rectangle of the current target into
	// dst, which must hold r.W*r.H*4 values.
	ReadPixels(r Rect, dst []float32) error
}

// State is a snapshot of the borrowable context state.
type State struct {
	Target      Target
	Viewport    Rect
	Scissor     Rect
	ScissorTest bool
	ClearColor  math.Vec3
	ClearAlpha  float32
	AutoClear   bool
	ToneMapping ToneMapping
}

// Save captures the context's borrowable state.
func Save(ctx Context) State {
	return State{
		Target:      ctx.Target(),
		Viewport:    ctx.Viewport(),
		Scissor:     ctx.Scissor(),
		ScissorTest: ctx.ScissorTest(),
		ClearColor:  ctx.ClearColor(),
		ClearAlpha:  ctx.ClearAlpha(),
		AutoClear:   ctx.AutoClear(),
		ToneMapping: ctx.ToneMapping(),
	}
}

// Restore puts a saved state back.
func (s State) Restore(ctx Context) {
	ctx.SetTarget(s.Target)
	ctx.SetViewport(s.Viewport)
	ctx.SetScissor(s.Scissor)
	ctx.SetScissorTest(s.ScissorTest)
	ctx.SetClearColor(s.ClearColor)
	ctx.SetClearAlpha(s.ClearAlpha)
	ctx.SetAutoClear(s.AutoClear)
	ctx.SetToneMapping(s.ToneMapping)
}

// Borrow saves the context state and returns a function that restores it.
func Borrow(ctx Context) func() {
	s := Save(ctx)
	return func() { s.Restore(ctx) }
}
