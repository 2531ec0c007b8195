package glrender

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/scene"
)

// Render draws the visible meshes under root into the current viewport.
func (c *Context) Render(root *scene.Node, cam render.Camera) {
	if c.autoClear {
		c.Clear()
	}

	lights := render.CollectLights(root)
	tone := c.toneMapping == render.ToneMappingACES

	gl.UseProgram(c.sceneProgram)
	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)

	viewProj := cam.ViewProjection()
	gl.UniformMatrix4fv(c.su.viewProj, 1, false, viewProj.Ptr())
	gl.Uniform3f(c.su.eye, cam.Position.X, cam.Position.Y, cam.Position.Z)
	c.uploadLights(&lights)

	for n := range scene.Meshes(root, true) {
		g := n.Mesh.Geometry
		if g.FaceCount() == 0 {
			continue
		}
		mb := c.mesh(g)

		world := n.WorldMatrix()
		normalMatrix := world.NormalMatrix()
		gl.UniformMatrix4fv(c.su.model, 1, false, world.Ptr())
		gl.UniformMatrix4fv(c.su.normalMatrix, 1, false, normalMatrix.Ptr())
		if world.Determinant3() < 0 {
			gl.FrontFace(gl.CW)
		} else {
			gl.FrontFace(gl.CCW)
		}

		gl.BindVertexArray(mb.vao)
		for _, run := range materialRuns(n.Mesh, c.defaultMaterial) {
			c.bindMaterial(run.material, tone)
			gl.DrawArrays(gl.TRIANGLES, run.first, run.count)
		}
	}

	gl.BindVertexArray(0)
	gl.FrontFace(gl.CCW)
	gl.Disable(gl.CULL_FACE)
	gl.Disable(gl.BLEND)
	gl.Disable(gl.DEPTH_TEST)
	gl.DepthMask(true)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.UseProgram(0)
}

func (c *Context) uploadLights(ls *render.LightSet) {
	su := &c.su
	gl.Uniform3f(su.ambient, ls.Ambient.X, ls.Ambient.Y, ls.Ambient.Z)

	dirs, points := ls.Directional, ls.Point
	if len(dirs) > maxDirectional || len(points) > maxPoint {
		if !c.warnedLights {
			c.log.Warn("too many lights, extra lights ignored",
				zap.Int("directional", len(dirs)),
				zap.Int("point", len(points)))
			c.warnedLights = true
		}
		dirs = dirs[:min(len(dirs), maxDirectional)]
		points = points[:min(len(points), maxPoint)]
	}

	gl.Uniform1i(su.dirCount, int32(len(dirs)))
	if len(dirs) > 0 {
		direction := make([]float32, 0, len(dirs)*3)
		radiance := make([]float32, 0, len(dirs)*3)
		for _, d := range dirs {
			direction = append(direction, d.Direction.X, d.Direction.Y, d.Direction.Z)
			radiance = append(radiance, d.Radiance.X, d.Radiance.Y, d.Radiance.Z)
		}
		gl.Uniform3fv(su.dirDirection, int32(len(dirs)), &direction[0])
		gl.Uniform3fv(su.dirRadiance, int32(len(dirs)), &radiance[0])
	}

	gl.Uniform1i(su.pointCount, int32(len(points)))
	if len(points) > 0 {
		position := make([]float32, 0, len(points)*3)
		radiance := make([]float32, 0, len(points)*3)
		distance := make([]float32, 0, len(points))
		for _, p := range points {
			position = append(position, p.Position.X, p.Position.Y, p.Position.Z)
			radiance = append(radiance, p.Radiance.X, p.Radiance.Y, p.Radiance.Z)
			distance = append(distance, p.Distance)
		}
		gl.Uniform3fv(su.pointPosition, int32(len(points)), &position[0])
		gl.Uniform3fv(su.pointRadiance, int32(len(points)), &radiance[0])
		gl.Uniform1fv(su.pointDistance, int32(len(points)), &distance[0])
	}
}

func (c *Context) bindMaterial(m *scene.Material, tone bool) {
	su := &c.su
	gl.Uniform3f(su.color, m.Color.X, m.Color.Y, m.Color.Z)
	gl.Uniform1i(su.vertexColors, boolInt(m.VertexColors))
	gl.Uniform1f(su.opacity, m.Opacity)
	gl.Uniform1f(su.alphaTest, m.AlphaTest)
	gl.Uniform3f(su.emissive, m.Emissive.X, m.Emissive.Y, m.Emissive.Z)
	gl.Uniform1f(su.emissiveIntensity, m.EmissiveIntensity)
	gl.Uniform1f(su.shininess, m.Shininess)
	gl.Uniform1f(su.lightMapIntensity, m.LightMapIntensity)
	gl.Uniform1f(su.aoMapIntensity, m.AOMapIntensity)
	gl.Uniform1i(su.toneMap, boolInt(tone && m.ToneMapped))

	c.bindTexture(unitMap, su.hasMap, m.Map)
	c.bindTexture(unitAlphaMap, su.hasAlphaMap, m.AlphaMap)
	c.bindTexture(unitEmissiveMap, su.hasEmissiveMap, m.EmissiveMap)
	c.bindTexture(unitLightMap, su.hasLightMap, m.LightMap)
	c.bindTexture(unitAOMap, su.hasAOMap, m.AOMap)

	switch m.Side {
	case scene.SideBack:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	case scene.SideDouble:
		gl.Disable(gl.CULL_FACE)
	default:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	}

	if m.Transparent {
		gl.Enable(gl.BLEND)
		gl.BlendFuncSeparate(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA, gl.ONE, gl.ONE_MINUS_SRC_ALPHA)
		gl.DepthMask(false)
	} else {
		gl.Disable(gl.BLEND)
		gl.DepthMask(true)
	}
}

func (c *Context) bindTexture(unit uint32, hasLoc int32, t *scene.Texture) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	if t == nil {
		gl.BindTexture(gl.TEXTURE_2D, 0)
		gl.Uniform1i(hasLoc, 0)
		return
	}
	gl.BindTexture(gl.TEXTURE_2D, c.texture(t))
	gl.Uniform1i(hasLoc, 1)
}

// DrawAttributeTriangles draws clip-space triangles with the attributes as
// output color. Depth, culling and blending are off.
func (c *Context) DrawAttributeTriangles(clipXY [][2]float32, attrs [][4]float32) {
	n := min(len(clipXY), len(attrs)) / 3 * 3
	if n == 0 {
		return
	}
	data := make([]float32, 0, n*6)
	for i := 0; i < n; i++ {
		a := attrs[i]
		data = append(data, clipXY[i][0], clipXY[i][1], a[0], a[1], a[2], a[3])
	}

	gl.UseProgram(c.attrProgram)
	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.CULL_FACE)
	gl.Disable(gl.BLEND)

	gl.BindVertexArray(c.attrVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, c.attrVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STREAM_DRAW)
	gl.DrawArrays(gl.TRIANGLES, 0, int32(n))

	gl.BindVertexArray(0)
	gl.UseProgram(0)
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
