// Package atlasmap renders the lookup image that ties every atlas texel to
// the surface point it represents.
//
// Each texel holds (localU, localV, item+1, face+1). localU and localV are
// the point's coordinates in the face's corner basis, so the point is
// A + localU*(B-A) + localV*(C-A). A zero item channel marks background.
package atlasmap

import (
	"fmt"
	"iter"
	gomath "math"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/logger"
	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// Item is one mesh in the map. World and Normal are the node's transforms
// at the time the map was rasterized.
type Item struct {
	Node      *scene.Node
	Geometry  *scene.Geometry
	FaceCount int
	World     math.Mat4
	Normal    math.Mat4
}

func newItem(n *scene.Node, faces int) Item {
	world := n.WorldMatrix()
	return Item{
		Node:      n,
		Geometry:  n.Mesh.Geometry,
		FaceCount: faces,
		World:     world,
		Normal:    world.NormalMatrix(),
	}
}

// Map is the rasterized lookup image. It is read-only once built.
type Map struct {
	Width, Height int
	// Data is RGBA float, row 0 at the bottom.
	Data  []float32
	Items []Item
}

// ProbeTexel describes the surface point behind one atlas texel.
type ProbeTexel struct {
	Index int
	X, Y  int
	Item  *Item
	Face  int
	U, V  float32
}

// InvariantError reports a texel whose ids do not decode to a real face.
type InvariantError struct {
	Texel int
	Item  int
	Face  int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("atlasmap: texel %d decodes to item %d face %d, which does not exist", e.Texel, e.Item, e.Face)
}

// Rasterize draws every face of items into a width×height float target,
// using the UV2 coordinate as position, and reads it back. The context's
// state is restored before returning.
func Rasterize(rc render.Context, width, height int, items []*scene.Node, log *zap.Logger) (*Map, error) {
	start := time.Now()
	log = logger.Or(log, "atlasmap")

	m := &Map{Width: width, Height: height, Items: make([]Item, len(items))}
	var clip [][2]float32
	var attrs [][4]float32
	corners := [3][2]float32{{0, 0}, {1, 0}, {0, 1}}
	for i, n := range items {
		g := n.Mesh.Geometry
		if !g.HasUV2() {
			return nil, fmt.Errorf("atlasmap: mesh %q has no uv2", n.Name)
		}
		faces := g.FaceCount()
		m.Items[i] = newItem(n, faces)

		// One vertex per face corner so ids stay constant across a face.
		for f := 0; f < faces; f++ {
			a, b, c := g.Face(f)
			for k, v := range [3]int{a, b, c} {
				clip = append(clip, [2]float32{g.UV2[v*2]*2 - 1, g.UV2[v*2+1]*2 - 1})
				attrs = append(attrs, [4]float32{corners[k][0], corners[k][1], float32(i + 1), float32(f + 1)})
			}
		}
	}

	target, err := rc.NewTarget(width, height)
	if err != nil {
		return nil, fmt.Errorf("atlasmap: create target: %w", err)
	}
	defer target.Release()

	restore := render.Borrow(rc)
	defer restore()

	rc.SetTarget(target)
	rc.SetViewport(render.Rect{W: width, H: height})
	rc.SetScissorTest(false)
	rc.SetClearColor(math.Vec3{})
	rc.SetClearAlpha(0)
	rc.Clear()
	rc.DrawAttributeTriangles(clip, attrs)

	m.Data = make([]float32, width*height*4)
	if err := rc.ReadPixels(render.Rect{W: width, H: height}, m.Data); err != nil {
		return nil, fmt.Errorf("atlasmap: read back: %w", err)
	}

	logger.Timed(log, "atlas map rasterized", start,
		zap.Int("width", width), zap.Int("height", height), zap.Int("triangles", len(clip)/3))
	return m, nil
}

// Decode returns the surface point behind texel i. It reports false for
// background texels.
func (m *Map) Decode(i int) (ProbeTexel, bool, error) {
	px := m.Data[i*4 : i*4+4]
	item := int(gomath.Round(float64(px[2])))
	if item == 0 {
		return ProbeTexel{}, false, nil
	}
	face := int(gomath.Round(float64(px[3]))) - 1
	if item < 0 || item > len(m.Items) || face < 0 || face >= m.Items[item-1].FaceCount {
		return ProbeTexel{}, false, &InvariantError{Texel: i, Item: item - 1, Face: face}
	}
	return ProbeTexel{
		Index: i,
		X:     i % m.Width,
		Y:     i / m.Width,
		Item:  &m.Items[item-1],
		Face:  face,
		U:     px[0],
		V:     px[1],
	}, true, nil
}

// Filled reports whether texel i is covered by geometry.
func (m *Map) Filled(i int) bool {
	return m.Data[i*4+2] != 0
}

// Texels scans the map in texel order and yields every covered texel.
// Background is skipped. A texel that fails to decode is yielded with its
// error and ends the scan.
func (m *Map) Texels() iter.Seq2[ProbeTexel, error] {
	return func(yield func(ProbeTexel, error) bool) {
		for i := 0; i < m.Width*m.Height; i++ {
			pt, ok, err := m.Decode(i)
			if err != nil {
				yield(ProbeTexel{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(pt, nil) {
				return
			}
		}
	}
}

// Count returns the number of covered texels.
func (m *Map) Count() int {
	n := 0
	for i := 0; i < m.Width*m.Height; i++ {
		if m.Filled(i) {
			n++
		}
	}
	return n
}

// Image returns a visualisation: local coordinates in red and green, item
// id in blue scaled to [0, 1], alpha 1 where covered.
func (m *Map) Image() []float32 {
	out := make([]float32, len(m.Data))
	scale := float32(1)
	if len(m.Items) > 0 {
		scale = 1 / float32(len(m.Items))
	}
	for i := 0; i < m.Width*m.Height; i++ {
		if !m.Filled(i) {
			continue
		}
		px := m.Data[i*4 : i*4+4]
		out[i*4] = px[0]
		out[i*4+1] = px[1]
		out[i*4+2] = px[2] * scale
		out[i*4+3] = 1
	}
	return out
}

// Point returns the world-space position and interpolated normal at the
// texel's surface point. Without vertex normals the face normal is used.
func (pt ProbeTexel) Point() (pos, normal math.Vec3) {
	g := pt.Item.Geometry
	a, b, c := g.Face(pt.Face)
	wa, wb, wc := 1-pt.U-pt.V, pt.U, pt.V

	local := g.Position(a).Scale(wa).Add(g.Position(b).Scale(wb)).Add(g.Position(c).Scale(wc))
	pos = pt.Item.World.TransformPoint(local)

	var n math.Vec3
	if len(g.Normals) > 0 {
		n = g.Normal(a).Scale(wa).Add(g.Normal(b).Scale(wb)).Add(g.Normal(c).Scale(wc))
	}
	if n.Length() < 1e-8 {
		n = g.FaceNormal(pt.Face)
	}
	normal = pt.Item.Normal.TransformDirection(n).Normalize()
	return pos, normal
}
