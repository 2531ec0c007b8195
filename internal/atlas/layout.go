// Package atlas lays out bakeable meshes in a shared lightmap atlas and
// writes the resulting per-vertex coordinates into each geometry's UV2.
//
// Faces that share a vertex form one layout box. Each box is projected onto
// the plane of one of its faces, sized by texel density plus a one-texel
// margin on every side, and packed into a power-of-two atlas.
package atlas

import (
	"errors"
	"fmt"
	gomath "math"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/logger"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

const (
	// MinAutoSize is the smallest automatic atlas dimension.
	MinAutoSize = 4
	// MaxAutoSize caps automatic atlas dimensions.
	MaxAutoSize = 4096
)

// ErrSizeRequired means every mesh carries authored UV2, so the atlas size
// cannot be derived and must be given.
var ErrSizeRequired = errors.New("atlas: all meshes carry uv2; light_map_size is required")

// Options controls the layout.
type Options struct {
	TexelsPerUnit float32
	// Width and Height fix the atlas size; zero means automatic.
	Width, Height int
	Logger        *zap.Logger
}

// Box is one packed region: a connected group of faces projected onto a
// plane. X, Y, W and H are in texels and include the margin.
type Box struct {
	Item       int
	X, Y, W, H int

	Origin math.Vec3
	UAxis  math.Vec3
	VAxis  math.Vec3

	// Vertices lists the box's vertex indices and Local their projected
	// position, normalized to [0, 1] over the box interior.
	Vertices []int
	Local    [][2]float32
}

// UV returns the atlas coordinate of the box-local point (lx, ly).
func (b *Box) UV(lx, ly float32, atlasW, atlasH int) [2]float32 {
	return [2]float32{
		(float32(b.X+1) + lx*float32(b.W-2)) / float32(atlasW),
		(float32(b.Y+1) + ly*float32(b.H-2)) / float32(atlasH),
	}
}

// Layout is the result of Compute.
type Layout struct {
	Width, Height int
	// Items are the meshes in the atlas; Box.Item indexes into it.
	Items []*scene.Node
	Boxes []*Box
	// Auto is false when every mesh brought its own UV2.
	Auto bool
}

// Eligible returns the meshes under root that take part in the atlas:
// visible, not read-only and not flagged ignore-for-atlas.
func Eligible(root *scene.Node) []*scene.Node {
	var out []*scene.Node
	for n := range scene.Meshes(root, false) {
		if n.Flags.Has(scene.FlagIgnoreForAtlas) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Compute lays out items and writes UV2 into their geometry. When every
// item already has UV2 nothing is written and the fixed size is required.
func Compute(items []*scene.Node, opts Options) (*Layout, error) {
	start := time.Now()
	log := logger.Or(opts.Logger, "atlas")

	authored, auto, err := classify(items)
	if err != nil {
		return nil, err
	}
	if authored > 0 && auto > 0 {
		return nil, fmt.Errorf("%w (%d authored, %d auto)", ErrMixedUV2, authored, auto)
	}

	layout := &Layout{Items: items, Auto: auto > 0}
	if !layout.Auto {
		if opts.Width <= 0 || opts.Height <= 0 {
			return nil, ErrSizeRequired
		}
		layout.Width, layout.Height = opts.Width, opts.Height
		log.Info("using authored uv2", zap.Int("items", len(items)),
			zap.Int("width", layout.Width), zap.Int("height", layout.Height))
		return layout, nil
	}

	if opts.TexelsPerUnit <= 0 {
		return nil, fmt.Errorf("atlas: texels per unit must be positive, got %g", opts.TexelsPerUnit)
	}

	canon := make([][]int, len(items))
	for i, n := range items {
		c, boxes, err := layoutItem(i, n, opts.TexelsPerUnit)
		if err != nil {
			return nil, err
		}
		canon[i] = c
		layout.Boxes = append(layout.Boxes, boxes...)
	}

	if err := layout.place(opts); err != nil {
		return nil, err
	}
	layout.writeUV2(canon)

	logger.Timed(log, "atlas layout done", start)
	log.Info("atlas layout",
		zap.Int("items", len(items)),
		zap.Int("boxes", len(layout.Boxes)),
		zap.Int("width", layout.Width),
		zap.Int("height", layout.Height))
	return layout, nil
}

// classify counts items with and without UV2 and checks per-item
// preconditions.
func classify(items []*scene.Node) (authored, auto int, err error) {
	geoms := make(map[*scene.Geometry]string, len(items))
	for _, n := range items {
		g := n.Mesh.Geometry
		if g == nil || len(g.Positions) == 0 {
			return 0, 0, fmt.Errorf("%w: mesh %q has no positions", ErrMissingAttribute, n.Name)
		}
		if err := g.Validate(); err != nil {
			return 0, 0, fmt.Errorf("%w: mesh %q: %v", ErrMissingAttribute, n.Name, err)
		}
		if other, ok := geoms[g]; ok {
			return 0, 0, fmt.Errorf("atlas: meshes %q and %q share geometry; each baked mesh needs its own", other, n.Name)
		}
		geoms[g] = n.Name

		switch {
		case n.Flags.Has(scene.FlagIgnoreForUV2) && !g.HasUV2():
			return 0, 0, fmt.Errorf("%w: mesh %q is excluded from uv2 layout but has no uv2", ErrMissingAttribute, n.Name)
		case g.HasUV2() || n.Flags.Has(scene.FlagIgnoreForUV2):
			authored++
		default:
			auto++
		}
	}
	return authored, auto, nil
}

// canonicalVertices maps every vertex to a representative. Indexed
// geometry keeps its own vertices; non-indexed geometry merges vertices
// with identical position and normal, which recovers shared corners.
func canonicalVertices(g *scene.Geometry) []int {
	n := g.VertexCount()
	canon := make([]int, n)
	if g.HasIndex() {
		for i := range canon {
			canon[i] = i
		}
		return canon
	}

	type key [6]float32
	seen := make(map[key]int, n)
	for i := 0; i < n; i++ {
		var k key
		copy(k[:3], g.Positions[i*3:i*3+3])
		if len(g.Normals) > 0 {
			copy(k[3:], g.Normals[i*3:i*3+3])
		}
		if first, ok := seen[k]; ok {
			canon[i] = first
			continue
		}
		seen[k] = i
		canon[i] = i
	}
	return canon
}

// unionFind groups vertices connected by faces.
type unionFind []int

func newUnionFind(n int) unionFind {
	u := make(unionFind, n)
	for i := range u {
		u[i] = i
	}
	return u
}

func (u unionFind) find(i int) int {
	for u[i] != i {
		u[i] = u[u[i]]
		i = u[i]
	}
	return i
}

func (u unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u[rb] = ra
	} else {
		u[ra] = rb
	}
}

// layoutItem builds the boxes of one mesh. It returns the canonical vertex
// map used to copy coordinates back to merged vertices.
func layoutItem(item int, n *scene.Node, texelsPerUnit float32) ([]int, []*Box, error) {
	g := n.Mesh.Geometry
	world := n.WorldMatrix()
	canon := canonicalVertices(g)

	pos := make([]math.Vec3, g.VertexCount())
	for i := range pos {
		pos[i] = world.TransformPoint(g.Position(i))
	}

	faces := g.FaceCount()
	uf := newUnionFind(len(pos))
	for f := 0; f < faces; f++ {
		a, b, c := g.Face(f)
		a, b, c = canon[a], canon[b], canon[c]
		if pos[b].Sub(pos[a]).Cross(pos[c].Sub(pos[a])).Length() <= 1e-12 {
			return nil, nil, &DegenerateFaceError{Mesh: n.Name, Face: f}
		}
		uf.union(a, b)
		uf.union(a, c)
	}

	// Boxes in order of their first face so layouts are reproducible.
	byRoot := make(map[int]*Box)
	firstFace := make(map[*Box]int)
	var boxes []*Box
	assigned := make([]bool, len(pos))
	for f := 0; f < faces; f++ {
		a, b, c := g.Face(f)
		root := uf.find(canon[a])
		box, ok := byRoot[root]
		if !ok {
			box = &Box{Item: item}
			byRoot[root] = box
			firstFace[box] = f
			boxes = append(boxes, box)
		}
		for _, v := range [3]int{canon[a], canon[b], canon[c]} {
			if !assigned[v] {
				assigned[v] = true
				box.Vertices = append(box.Vertices, v)
			}
		}
	}

	for _, box := range boxes {
		a, b, c := g.Face(firstFace[box])
		box.project(pos, [3]int{canon[a], canon[b], canon[c]}, texelsPerUnit)
	}
	return canon, boxes, nil
}

// project picks the box basis from face corners and computes the box size
// and per-vertex local coordinates.
func (box *Box) project(pos []math.Vec3, face [3]int, texelsPerUnit float32) {
	// The corner whose edges are closest to perpendicular gives the least
	// shear.
	best, bestScore := 0, float32(gomath.MaxFloat32)
	for k := 0; k < 3; k++ {
		p := pos[face[k]]
		e1 := pos[face[(k+1)%3]].Sub(p).Normalize()
		e2 := pos[face[(k+2)%3]].Sub(p).Normalize()
		score := e1.Dot(e2)
		if score < 0 {
			score = -score
		}
		if score < bestScore {
			best, bestScore = k, score
		}
	}
	origin := pos[face[best]]
	e1 := pos[face[(best+1)%3]].Sub(origin)
	e2 := pos[face[(best+2)%3]].Sub(origin)
	normal := e1.Cross(e2).Normalize()
	box.Origin = origin
	box.UAxis = e1.Normalize()
	box.VAxis = normal.Cross(box.UAxis)

	minU, minV := float32(gomath.MaxFloat32), float32(gomath.MaxFloat32)
	maxU, maxV := float32(-gomath.MaxFloat32), float32(-gomath.MaxFloat32)
	local := make([][2]float32, len(box.Vertices))
	for i, v := range box.Vertices {
		d := pos[v].Sub(origin)
		lu, lv := d.Dot(box.UAxis), d.Dot(box.VAxis)
		local[i] = [2]float32{lu, lv}
		minU, maxU = min(minU, lu), max(maxU, lu)
		minV, maxV = min(minV, lv), max(maxV, lv)
	}
	sizeU, sizeV := maxU-minU, maxV-minV
	box.W = int(gomath.Ceil(float64(sizeU*texelsPerUnit))) + 2
	box.H = int(gomath.Ceil(float64(sizeV*texelsPerUnit))) + 2

	for i := range local {
		var lx, ly float32
		if sizeU > 0 {
			lx = (local[i][0] - minU) / sizeU
		}
		if sizeV > 0 {
			ly = (local[i][1] - minV) / sizeV
		}
		local[i] = [2]float32{lx, ly}
	}
	box.Local = local
}

// place packs the boxes and settles the atlas size.
func (l *Layout) place(opts Options) error {
	rects := make([]rect, len(l.Boxes))
	for i, b := range l.Boxes {
		rects[i] = rect{w: b.W, h: b.H, id: i}
	}

	fixed := opts.Width > 0 && opts.Height > 0
	var usedW, usedH int
	if fixed {
		usedW, usedH = pack(rects, opts.Width)
		if usedW > opts.Width || usedH > opts.Height {
			return &SizeError{RequiredW: usedW, RequiredH: usedH, ProvidedW: opts.Width, ProvidedH: opts.Height}
		}
		l.Width, l.Height = opts.Width, opts.Height
	} else {
		usedW, usedH = pack(rects, 0)
		if usedW > MaxAutoSize || usedH > MaxAutoSize {
			return &SizeError{RequiredW: usedW, RequiredH: usedH, ProvidedW: MaxAutoSize, ProvidedH: MaxAutoSize, Auto: true}
		}
		l.Width, l.Height = nextPow2(usedW), nextPow2(usedH)
	}

	for _, r := range rects {
		l.Boxes[r.id].X, l.Boxes[r.id].Y = r.x, r.y
	}
	return nil
}

// writeUV2 stores each vertex's atlas coordinate in its geometry.
func (l *Layout) writeUV2(canon [][]int) {
	uv2 := make([][]float32, len(l.Items))
	for i, n := range l.Items {
		uv2[i] = make([]float32, n.Mesh.Geometry.VertexCount()*2)
	}
	for _, b := range l.Boxes {
		dst := uv2[b.Item]
		for j, v := range b.Vertices {
			uv := b.UV(b.Local[j][0], b.Local[j][1], l.Width, l.Height)
			dst[v*2], dst[v*2+1] = uv[0], uv[1]
		}
	}
	for i, n := range l.Items {
		dst := uv2[i]
		for v, c := range canon[i] {
			if c != v {
				dst[v*2], dst[v*2+1] = dst[c*2], dst[c*2+1]
			}
		}
		g := n.Mesh.Geometry
		g.UV2 = dst
		g.MarkDirty()
	}
}
