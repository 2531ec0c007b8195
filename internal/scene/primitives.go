package scene

import "github.com/Faultbox/lightbake/pkg/math"

// quadBuilder accumulates axis-aligned quads into an indexed geometry.
type quadBuilder struct {
	g Geometry
}

// add appends a quad centred at c spanning ±hu along u and ±hv along v.
// The front face points along u×v, or the opposite way when flip is set.
func (b *quadBuilder) add(c, u, v math.Vec3, hu, hv float32, flip bool) {
	n := u.Cross(v).Normalize()
	if flip {
		n = n.Negate()
	}
	base := uint32(b.g.VertexCount())
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, k := range corners {
		p := c.Add(u.Scale(k[0] * hu)).Add(v.Scale(k[1] * hv))
		b.g.Positions = append(b.g.Positions, p.X, p.Y, p.Z)
		b.g.Normals = append(b.g.Normals, n.X, n.Y, n.Z)
		b.g.UV = append(b.g.UV, (k[0]+1)/2, (k[1]+1)/2)
	}
	if flip {
		b.g.Index = append(b.g.Index, base, base+2, base+1, base, base+3, base+2)
	} else {
		b.g.Index = append(b.g.Index, base, base+1, base+2, base, base+2, base+3)
	}
}

// Plane returns a width×height quad in the XY plane facing +Z.
func Plane(width, height float32) *Geometry {
	var b quadBuilder
	b.add(math.Vec3{}, math.Vec3{X: 1}, math.Vec3{Y: 1}, width/2, height/2, false)
	return &b.g
}

// Box returns an axis-aligned box centred on the origin with one quad per
// side. With inward set the faces point into the box, which makes a closed
// room that is lit from inside.
func Box(width, height, depth float32, inward bool) *Geometry {
	half := math.Vec3{X: width / 2, Y: height / 2, Z: depth / 2}
	extent := func(a math.Vec3) float32 {
		return abs32(a.X)*half.X + abs32(a.Y)*half.Y + abs32(a.Z)*half.Z
	}
	sides := [6][3]math.Vec3{
		// normal, u, v with u×v == normal
		{{X: 1}, {Z: -1}, {Y: 1}},
		{{X: -1}, {Z: 1}, {Y: 1}},
		{{Y: 1}, {X: 1}, {Z: -1}},
		{{Y: -1}, {X: 1}, {Z: 1}},
		{{Z: 1}, {X: 1}, {Y: 1}},
		{{Z: -1}, {X: -1}, {Y: 1}},
	}
	var b quadBuilder
	for _, s := range sides {
		n, u, v := s[0], s[1], s[2]
		b.add(n.Scale(extent(n)), u, v, extent(u), extent(v), inward)
	}
	return &b.g
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
