package scene

import (
	"fmt"

	"github.com/Faultbox/lightbake/pkg/math"
)

// Geometry is a triangle list, indexed or not. Attribute slices are flat:
// 3 floats per vertex for positions, normals and colors, 2 for UV and UV2.
type Geometry struct {
	Positions []float32
	Normals   []float32
	UV        []float32
	UV2       []float32
	Colors    []float32
	Index     []uint32
	Groups    []Group

	// Version is bumped by MarkDirty so render backends can refresh caches.
	Version uint64
}

// Group assigns a material to a run of the index (or vertex) stream.
// Start and Count are in index units and multiples of 3.
type Group struct {
	Start         int `yaml:"start"`
	Count         int `yaml:"count"`
	MaterialIndex int `yaml:"material"`
}

// VertexCount returns the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// HasIndex reports whether the geometry has an index buffer.
func (g *Geometry) HasIndex() bool {
	return g.Index != nil
}

// HasUV2 reports whether the geometry carries atlas coordinates.
func (g *Geometry) HasUV2() bool {
	return len(g.UV2) > 0
}

// FaceCount returns the number of triangles.
func (g *Geometry) FaceCount() int {
	if g.HasIndex() {
		return len(g.Index) / 3
	}
	return g.VertexCount() / 3
}

// Face returns the vertex indices of triangle i.
func (g *Geometry) Face(i int) (a, b, c int) {
	if g.HasIndex() {
		return int(g.Index[i*3]), int(g.Index[i*3+1]), int(g.Index[i*3+2])
	}
	return i * 3, i*3 + 1, i*3 + 2
}

// Position returns vertex i's position.
func (g *Geometry) Position(i int) math.Vec3 {
	return math.Vec3FromSlice(g.Positions, i)
}

// Normal returns vertex i's normal, or the zero vector without normals.
func (g *Geometry) Normal(i int) math.Vec3 {
	if len(g.Normals) < (i+1)*3 {
		return math.Vec3{}
	}
	return math.Vec3FromSlice(g.Normals, i)
}

// FaceNormal returns the unit geometric normal of triangle i (counter-clockwise front).
func (g *Geometry) FaceNormal(i int) math.Vec3 {
	a, b, c := g.Face(i)
	pa, pb, pc := g.Position(a), g.Position(b), g.Position(c)
	return pb.Sub(pa).Cross(pc.Sub(pa)).Normalize()
}

// MarkDirty signals that attribute data changed.
func (g *Geometry) MarkDirty() {
	g.Version++
}

// Validate checks attribute lengths and index ranges.
func (g *Geometry) Validate() error {
	if len(g.Positions)%3 != 0 {
		return fmt.Errorf("positions length %d is not a multiple of 3", len(g.Positions))
	}
	n := g.VertexCount()
	check := func(name string, data []float32, size int) error {
		if data != nil && len(data) != n*size {
			return fmt.Errorf("%s has %d values, want %d for %d vertices", name, len(data), n*size, n)
		}
		return nil
	}
	for _, a := range []struct {
		name string
		data []float32
		size int
	}{
		{"normals", g.Normals, 3},
		{"uv", g.UV, 2},
		{"uv2", g.UV2, 2},
		{"colors", g.Colors, 3},
	} {
		if err := check(a.name, a.data, a.size); err != nil {
			return err
		}
	}
	if g.HasIndex() {
		if len(g.Index)%3 != 0 {
			return fmt.Errorf("index length %d is not a multiple of 3", len(g.Index))
		}
		for i, idx := range g.Index {
			if int(idx) >= n {
				return fmt.Errorf("index %d references vertex %d of %d", i, idx, n)
			}
		}
	} else if n%3 != 0 {
		return fmt.Errorf("non-indexed geometry has %d vertices, not a multiple of 3", n)
	}
	return nil
}

// Unrolled returns a non-indexed copy where every face owns its three
// vertices. Groups keep their ranges since index units become vertex units.
func (g *Geometry) Unrolled() *Geometry {
	faces := g.FaceCount()
	out := &Geometry{Groups: append([]Group(nil), g.Groups...)}
	out.Positions = unroll(g, g.Positions, 3, faces)
	out.Normals = unroll(g, g.Normals, 3, faces)
	out.UV = unroll(g, g.UV, 2, faces)
	out.UV2 = unroll(g, g.UV2, 2, faces)
	out.Colors = unroll(g, g.Colors, 3, faces)
	return out
}

func unroll(g *Geometry, data []float32, size, faces int) []float32 {
	if data == nil {
		return nil
	}
	out := make([]float32, 0, faces*3*size)
	for f := 0; f < faces; f++ {
		a, b, c := g.Face(f)
		for _, v := range [3]int{a, b, c} {
			out = append(out, data[v*size:(v+1)*size]...)
		}
	}
	return out
}

// Bounds returns the axis-aligned bounds of the positions.
func (g *Geometry) Bounds() (lo, hi math.Vec3) {
	if g.VertexCount() == 0 {
		return math.Vec3{}, math.Vec3{}
	}
	lo, hi = g.Position(0), g.Position(0)
	for i := 1; i < g.VertexCount(); i++ {
		p := g.Position(i)
		lo, hi = lo.Min(p), hi.Max(p)
	}
	return lo, hi
}
