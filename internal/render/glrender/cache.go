package glrender

import (
	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// Interleaved vertex layout: position, normal, uv, uv2, color.
const (
	vertexStride = 13
	offNormal    = 3
	offUV        = 6
	offUV2       = 8
	offColor     = 10
)

// meshBuffer is a geometry unrolled to one vertex per face corner.
type meshBuffer struct {
	vao, vbo uint32
	version  uint64
	count    int32
}

// textureObject is an uploaded scene texture.
type textureObject struct {
	id      uint32
	version uint64
	filter  scene.Filter
}

// unrollVertices interleaves g's attributes per face corner. Geometry
// without normals gets flat face normals; missing colors are white.
func unrollVertices(g *scene.Geometry) []float32 {
	faces := g.FaceCount()
	out := make([]float32, 0, faces*3*vertexStride)
	for f := 0; f < faces; f++ {
		var flat math.Vec3
		if len(g.Normals) == 0 {
			flat = g.FaceNormal(f)
		}
		a, b, c := g.Face(f)
		for _, i := range [3]int{a, b, c} {
			p := g.Position(i)
			n := flat
			if len(g.Normals) > 0 {
				n = g.Normal(i)
			}
			var uv, uv2 [2]float32
			if len(g.UV) >= (i+1)*2 {
				uv = [2]float32{g.UV[i*2], g.UV[i*2+1]}
			}
			if len(g.UV2) >= (i+1)*2 {
				uv2 = [2]float32{g.UV2[i*2], g.UV2[i*2+1]}
			}
			col := [3]float32{1, 1, 1}
			if len(g.Colors) >= (i+1)*3 {
				col = [3]float32{g.Colors[i*3], g.Colors[i*3+1], g.Colors[i*3+2]}
			}
			out = append(out,
				p.X, p.Y, p.Z,
				n.X, n.Y, n.Z,
				uv[0], uv[1],
				uv2[0], uv2[1],
				col[0], col[1], col[2])
		}
	}
	return out
}

// drawRun is a range of unrolled vertices sharing one material.
type drawRun struct {
	material     *scene.Material
	first, count int32
}

// materialRuns splits a mesh into consecutive faces with the same material.
func materialRuns(m *scene.Mesh, fallback *scene.Material) []drawRun {
	var runs []drawRun
	faces := m.Geometry.FaceCount()
	for f := 0; f < faces; f++ {
		mat := m.MaterialForFace(f)
		if mat == nil {
			mat = fallback
		}
		if n := len(runs); n > 0 && runs[n-1].material == mat {
			runs[n-1].count += 3
			continue
		}
		runs = append(runs, drawRun{material: mat, first: int32(f * 3), count: 3})
	}
	return runs
}

// mesh returns the buffer for g, uploading it when new or dirty.
func (c *Context) mesh(g *scene.Geometry) *meshBuffer {
	mb, ok := c.meshes[g]
	if ok && mb.version == g.Version {
		return mb
	}
	if !ok {
		mb = &meshBuffer{}
		gl.GenVertexArrays(1, &mb.vao)
		gl.GenBuffers(1, &mb.vbo)
		gl.BindVertexArray(mb.vao)
		gl.BindBuffer(gl.ARRAY_BUFFER, mb.vbo)
		stride := int32(vertexStride * 4)
		attrib := func(loc uint32, size int32, offset int) {
			gl.EnableVertexAttribArray(loc)
			gl.VertexAttribPointerWithOffset(loc, size, gl.FLOAT, false, stride, uintptr(offset*4))
		}
		attrib(0, 3, 0)
		attrib(1, 3, offNormal)
		attrib(2, 2, offUV)
		attrib(3, 2, offUV2)
		attrib(4, 3, offColor)
		c.meshes[g] = mb
	}

	data := unrollVertices(g)
	gl.BindBuffer(gl.ARRAY_BUFFER, mb.vbo)
	if len(data) > 0 {
		gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STATIC_DRAW)
	}
	mb.count = int32(len(data) / vertexStride)
	mb.version = g.Version
	return mb
}

// texture returns the GL texture for t, re-uploading when its version or
// filter changed. Empty textures upload as a single white texel.
func (c *Context) texture(t *scene.Texture) uint32 {
	to, ok := c.textures[t]
	if ok && to.version == t.Version && to.filter == t.Filter {
		return to.id
	}
	if !ok {
		to = &textureObject{}
		gl.GenTextures(1, &to.id)
		c.textures[t] = to
	}

	w, h, data := int32(t.Width), int32(t.Height), t.Data
	if w == 0 || h == 0 || len(data) < t.Width*t.Height*4 {
		w, h, data = 1, 1, []float32{1, 1, 1, 1}
	}
	filter := int32(gl.LINEAR)
	if t.Filter == scene.FilterNearest {
		filter = gl.NEAREST
	}

	gl.BindTexture(gl.TEXTURE_2D, to.id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, w, h, 0, gl.RGBA, gl.FLOAT, gl.Ptr(data))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)

	to.version = t.Version
	to.filter = t.Filter
	return to.id
}

// releaseCaches deletes every cached GL object.
func (c *Context) releaseCaches() {
	for g, mb := range c.meshes {
		gl.DeleteBuffers(1, &mb.vbo)
		gl.DeleteVertexArrays(1, &mb.vao)
		delete(c.meshes, g)
	}
	for t, to := range c.textures {
		gl.DeleteTextures(1, &to.id)
		delete(c.textures, t)
	}
}
