package soft

import (
	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// rasterBounds intersects the write bounds with the viewport; geometry never
// produces fragments outside the viewport.
func (c *Context) rasterBounds() bounds {
	x0, y0, x1, y1 := c.writeBounds()
	vp := c.viewport
	return bounds{
		x0: max(x0, vp.X),
		y0: max(y0, vp.Y),
		x1: min(x1, vp.X+vp.W),
		y1: min(y1, vp.Y+vp.H),
	}
}

// toWindow maps a clip-space vertex to window coordinates.
func (c *Context) toWindow(cv *clipVertex, perspective bool) screenVertex {
	invW := 1 / cv.pos[3]
	vp := c.viewport
	sv := screenVertex{
		x:    float32(vp.X) + (cv.pos[0]*invW+1)*0.5*float32(vp.W),
		y:    float32(vp.Y) + (cv.pos[1]*invW+1)*0.5*float32(vp.H),
		z:    (cv.pos[2]*invW + 1) * 0.5,
		invW: invW,
	}
	if perspective {
		for i := range sv.v {
			sv.v[i] = cv.v[i] * invW
		}
	} else {
		sv.v = cv.v
	}
	return sv
}

// meshPass holds the per-node state the fragment stage reads.
type meshPass struct {
	ctx      *Context
	lights   *render.LightSet
	eye      math.Vec3
	material *scene.Material
}

func (p *meshPass) fragment(px, py int, z float32, v *varyings, front bool) {
	t := p.ctx.target
	i := py*t.width + px
	if z < 0 || z > 1 || z >= t.depth[i] {
		return
	}
	s := render.Surface{
		Position: math.Vec3{X: v[varyPos], Y: v[varyPos+1], Z: v[varyPos+2]},
		Normal:   math.Vec3{X: v[varyNormal], Y: v[varyNormal+1], Z: v[varyNormal+2]},
		UV:       [2]float32{v[varyUV], v[varyUV+1]},
		UV2:      [2]float32{v[varyUV2], v[varyUV2+1]},
		Color:    math.Vec3{X: v[varyColor], Y: v[varyColor+1], Z: v[varyColor+2]},
	}
	if !front {
		s.Normal = s.Normal.Negate()
	}
	m := p.material
	col, alpha, ok := render.ShadeFragment(m, s, p.lights, p.eye)
	if !ok {
		return
	}
	col = render.ToneMap(p.ctx.toneMapping, col, m.ToneMapped)

	px4 := t.color[i*4 : i*4+4]
	if m.Transparent {
		px4[0] = col.X*alpha + px4[0]*(1-alpha)
		px4[1] = col.Y*alpha + px4[1]*(1-alpha)
		px4[2] = col.Z*alpha + px4[2]*(1-alpha)
		px4[3] = alpha + px4[3]*(1-alpha)
		return
	}
	px4[0], px4[1], px4[2], px4[3] = col.X, col.Y, col.Z, alpha
	t.depth[i] = z
}

// Render draws the visible meshes under root from cam.
func (c *Context) Render(root *scene.Node, cam render.Camera) {
	if c.autoClear {
		c.Clear()
	}
	b := c.rasterBounds()
	if b.x0 >= b.x1 || b.y0 >= b.y1 {
		return
	}

	lights := render.CollectLights(root)
	pass := &meshPass{ctx: c, lights: &lights, eye: cam.Position}
	frag := pass.fragment
	viewProj := cam.ViewProjection()

	poly := make([]clipVertex, 0, 3)
	clipped := make([]clipVertex, 0, 4)
	for n := range scene.Meshes(root, true) {
		g := n.Mesh.Geometry
		world := n.WorldMatrix()
		normalMatrix := world.NormalMatrix()
		mvp := viewProj.Mul(world)
		mirror := world.Determinant3() < 0

		for f := 0; f < g.FaceCount(); f++ {
			m := n.Mesh.MaterialForFace(f)
			if m == nil {
				m = c.defaultMaterial
			}
			pass.material = m

			var flat math.Vec3
			if len(g.Normals) == 0 {
				flat = g.FaceNormal(f)
			}
			i0, i1, i2 := g.Face(f)
			poly = poly[:0]
			for _, vi := range [3]int{i0, i1, i2} {
				poly = append(poly, vertexStage(g, vi, flat, world, normalMatrix, mvp))
			}
			clipped = clipNear(poly, clipped)
			if len(clipped) < 3 {
				continue
			}

			cull := cullBack
			switch m.Side {
			case scene.SideBack:
				cull = cullFront
			case scene.SideDouble:
				cull = cullNone
			}
			s0 := c.toWindow(&clipped[0], true)
			for k := 1; k+1 < len(clipped); k++ {
				s1 := c.toWindow(&clipped[k], true)
				s2 := c.toWindow(&clipped[k+1], true)
				rasterize(&s0, &s1, &s2, b, true, cull, mirror, frag)
			}
		}
	}
}

// vertexStage transforms vertex i and packs its varyings. flat replaces the
// normal when the geometry has none.
func vertexStage(g *scene.Geometry, i int, flat math.Vec3, world, normalMatrix, mvp math.Mat4) clipVertex {
	p := g.Position(i)
	var cv clipVertex
	cv.pos = mvp.MulVec4(math.Vec4{p.X, p.Y, p.Z, 1})

	wp := world.TransformPoint(p)
	normal := flat
	if len(g.Normals) > 0 {
		normal = g.Normal(i)
	}
	n := normalMatrix.TransformDirection(normal)
	cv.v[varyPos], cv.v[varyPos+1], cv.v[varyPos+2] = wp.X, wp.Y, wp.Z
	cv.v[varyNormal], cv.v[varyNormal+1], cv.v[varyNormal+2] = n.X, n.Y, n.Z
	if len(g.UV) >= (i+1)*2 {
		cv.v[varyUV], cv.v[varyUV+1] = g.UV[i*2], g.UV[i*2+1]
	}
	if len(g.UV2) >= (i+1)*2 {
		cv.v[varyUV2], cv.v[varyUV2+1] = g.UV2[i*2], g.UV2[i*2+1]
	}
	if len(g.Colors) >= (i+1)*3 {
		cv.v[varyColor], cv.v[varyColor+1], cv.v[varyColor+2] = g.Colors[i*3], g.Colors[i*3+1], g.Colors[i*3+2]
	} else {
		cv.v[varyColor], cv.v[varyColor+1], cv.v[varyColor+2] = 1, 1, 1
	}
	return cv
}

// DrawAttributeTriangles rasterizes clip-space triangles, writing the
// interpolated attributes straight into the target.
func (c *Context) DrawAttributeTriangles(clipXY [][2]float32, attrs [][4]float32) {
	b := c.rasterBounds()
	t := c.target
	frag := func(px, py int, _ float32, v *varyings, _ bool) {
		i := (py*t.width + px) * 4
		copy(t.color[i:i+4], v[:4])
	}

	var tri [3]screenVertex
	for f := 0; f+2 < len(clipXY); f += 3 {
		for k := 0; k < 3; k++ {
			var cv clipVertex
			cv.pos = math.Vec4{clipXY[f+k][0], clipXY[f+k][1], 0, 1}
			copy(cv.v[:4], attrs[f+k][:])
			tri[k] = c.toWindow(&cv, false)
		}
		rasterize(&tri[0], &tri[1], &tri[2], b, false, cullNone, false, frag)
	}
}
