package soft

import (
	gomath "math"

	"github.com/Faultbox/lightbake/pkg/math"
)

// Varying slots interpolated across a triangle.
const (
	varyPos    = 0  // world position, 3
	varyNormal = 3  // world normal, 3
	varyUV     = 6  // 2
	varyUV2    = 8  // 2
	varyColor  = 10 // vertex color, 3
	numVarying = 13
)

type varyings [numVarying]float32

// clipVertex is a vertex after the vertex stage, before the perspective divide.
type clipVertex struct {
	pos math.Vec4
	v   varyings
}

func lerpVertex(a, b clipVertex, t float32) clipVertex {
	var out clipVertex
	for i := range out.pos {
		out.pos[i] = a.pos[i] + (b.pos[i]-a.pos[i])*t
	}
	for i := range out.v {
		out.v[i] = a.v[i] + (b.v[i]-a.v[i])*t
	}
	return out
}

// clipNear clips a convex polygon against the near plane (z >= -w), writing
// into out and returning it.
func clipNear(in, out []clipVertex) []clipVertex {
	out = out[:0]
	for i := range in {
		a, b := in[i], in[(i+1)%len(in)]
		da := a.pos[2] + a.pos[3]
		db := b.pos[2] + b.pos[3]
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			out = append(out, lerpVertex(a, b, da/(da-db)))
		}
	}
	return out
}

// screenVertex is a vertex in window coordinates. When perspective correction
// is on, v holds varyings pre-divided by w and invW holds 1/w.
type screenVertex struct {
	x, y, z float32
	invW    float32
	v       varyings
}

// bounds is a half-open pixel rectangle [x0, x1) × [y0, y1).
type bounds struct {
	x0, y0, x1, y1 int
}

type cullMode uint8

const (
	cullNone cullMode = iota
	cullBack
	cullFront
)

// fragment receives one covered pixel: its coordinates, depth, the
// interpolated varyings and whether the triangle faces the viewer.
type fragment func(px, py int, z float32, v *varyings, front bool)

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// rasterize walks the pixel centers covered by triangle abc inside b.
// Counter-clockwise triangles in window space are front-facing; mirror
// inverts that for transforms with a negative determinant.
func rasterize(a, bv, c *screenVertex, b bounds, perspective bool, cull cullMode, mirror bool, frag fragment) {
	area := edge(a.x, a.y, bv.x, bv.y, c.x, c.y)
	if area == 0 || gomath.IsNaN(float64(area)) {
		return
	}
	front := area > 0
	if mirror {
		front = !front
	}
	if (cull == cullBack && !front) || (cull == cullFront && front) {
		return
	}

	minX := max(b.x0, int(gomath.Floor(float64(min(a.x, bv.x, c.x)))))
	maxX := min(b.x1, int(gomath.Ceil(float64(max(a.x, bv.x, c.x)))))
	minY := max(b.y0, int(gomath.Floor(float64(min(a.y, bv.y, c.y)))))
	maxY := min(b.y1, int(gomath.Ceil(float64(max(a.y, bv.y, c.y)))))
	if minX >= maxX || minY >= maxY {
		return
	}

	invArea := 1 / area
	var v varyings
	for py := minY; py < maxY; py++ {
		cy := float32(py) + 0.5
		for px := minX; px < maxX; px++ {
			cx := float32(px) + 0.5
			w0 := edge(bv.x, bv.y, c.x, c.y, cx, cy) * invArea
			w1 := edge(c.x, c.y, a.x, a.y, cx, cy) * invArea
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*a.z + w1*bv.z + w2*c.z
			if perspective {
				iw := w0*a.invW + w1*bv.invW + w2*c.invW
				inv := 1 / iw
				for i := range v {
					v[i] = (w0*a.v[i] + w1*bv.v[i] + w2*c.v[i]) * inv
				}
			} else {
				for i := range v {
					v[i] = w0*a.v[i] + w1*bv.v[i] + w2*c.v[i]
				}
			}
			frag(px, py, z, &v, front)
		}
	}
}
