package scene

import (
	gomath "math"

	"github.com/Faultbox/lightbake/pkg/math"
)

// Filter selects texture sampling.
type Filter uint8

const (
	FilterLinear Filter = iota
	FilterNearest
)

// ParseFilter converts a config string to a Filter; unknown values mean linear.
func ParseFilter(s string) Filter {
	if s == "nearest" {
		return FilterNearest
	}
	return FilterLinear
}

func (f Filter) String() string {
	if f == FilterNearest {
		return "nearest"
	}
	return "linear"
}

// Texture is a linear float RGBA image. Row 0 is the bottom row (v = 0),
// matching GL texture coordinates and read-back order.
type Texture struct {
	Name   string
	Width  int
	Height int
	Data   []float32
	Filter Filter

	// Version is bumped by MarkDirty so render backends re-upload.
	Version uint64
	// Baked marks textures produced by the baker, as opposed to ones
	// assigned by hand.
	Baked bool
}

// NewTexture allocates a zeroed texture.
func NewTexture(name string, width, height int) *Texture {
	return &Texture{
		Name:   name,
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height*4),
	}
}

// MarkDirty signals that Data changed.
func (t *Texture) MarkDirty() {
	t.Version++
}

// At returns the texel at (x, y) with clamp-to-edge addressing.
func (t *Texture) At(x, y int) math.Vec4 {
	x = clampInt(x, 0, t.Width-1)
	y = clampInt(y, 0, t.Height-1)
	i := (y*t.Width + x) * 4
	return math.Vec4{t.Data[i], t.Data[i+1], t.Data[i+2], t.Data[i+3]}
}

// Sample returns the filtered value at (u, v).
func (t *Texture) Sample(u, v float32) math.Vec4 {
	if t.Width == 0 || t.Height == 0 {
		return math.Vec4{1, 1, 1, 1}
	}
	fx := u*float32(t.Width) - 0.5
	fy := v*float32(t.Height) - 0.5
	if t.Filter == FilterNearest {
		return t.At(int(gomath.Floor(float64(fx+0.5))), int(gomath.Floor(float64(fy+0.5))))
	}

	x0 := int(gomath.Floor(float64(fx)))
	y0 := int(gomath.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	a, b := t.At(x0, y0), t.At(x0+1, y0)
	c, d := t.At(x0, y0+1), t.At(x0+1, y0+1)
	var out math.Vec4
	for i := range out {
		top := a[i] + (b[i]-a[i])*tx
		bottom := c[i] + (d[i]-c[i])*tx
		out[i] = top + (bottom-top)*ty
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
