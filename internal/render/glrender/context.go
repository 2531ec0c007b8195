// Package glrender implements render.Context on OpenGL 4.1 core. All calls
// must happen on the thread that owns the GL context.
package glrender

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/logger"
	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// Texture units of the scene program's samplers.
const (
	unitMap = iota
	unitAlphaMap
	unitEmissiveMap
	unitLightMap
	unitAOMap
)

type sceneUniforms struct {
	model, normalMatrix, viewProj                              int32
	eye, ambient                                               int32
	dirCount, dirDirection, dirRadiance                        int32
	pointCount, pointPosition, pointRadiance, pointDistance    int32
	color, vertexColors, opacity, alphaTest                    int32
	emissive, emissiveIntensity, shininess                     int32
	lightMapIntensity, aoMapIntensity, toneMap                 int32
	hasMap, hasAlphaMap, hasEmissiveMap, hasLightMap, hasAOMap int32
}

// Context renders into the default framebuffer or RGBA32F targets.
type Context struct {
	screenW, screenH int
	target           *Target

	viewport    render.Rect
	scissor     render.Rect
	scissorTest bool
	clearColor  math.Vec3
	clearAlpha  float32
	autoClear   bool
	toneMapping render.ToneMapping

	sceneProgram uint32
	su           sceneUniforms
	attrProgram  uint32
	attrVAO      uint32
	attrVBO      uint32

	meshes   map[*scene.Geometry]*meshBuffer
	textures map[*scene.Texture]*textureObject

	defaultMaterial *scene.Material
	warnedLights    bool
	log             *zap.Logger
}

var _ render.Context = (*Context)(nil)

// New compiles the programs on the current GL context. width and height are
// the default framebuffer's size.
func New(width, height int, log *zap.Logger) (*Context, error) {
	c := &Context{
		screenW:         width,
		screenH:         height,
		clearAlpha:      1,
		autoClear:       true,
		toneMapping:     render.ToneMappingACES,
		meshes:          make(map[*scene.Geometry]*meshBuffer),
		textures:        make(map[*scene.Texture]*textureObject),
		defaultMaterial: scene.NewMaterial("default"),
		log:             logger.Or(log, "glrender"),
	}

	var err error
	if c.sceneProgram, err = compileProgram(sceneVertexShader, sceneFragmentShader); err != nil {
		return nil, fmt.Errorf("scene program: %w", err)
	}
	if c.attrProgram, err = compileProgram(attrVertexShader, attrFragmentShader); err != nil {
		gl.DeleteProgram(c.sceneProgram)
		return nil, fmt.Errorf("attribute program: %w", err)
	}
	c.lookupUniforms()

	gl.GenVertexArrays(1, &c.attrVAO)
	gl.GenBuffers(1, &c.attrVBO)
	gl.BindVertexArray(c.attrVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, c.attrVBO)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 2, gl.FLOAT, false, 6*4, 0)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(1, 4, gl.FLOAT, false, 6*4, 2*4)
	gl.BindVertexArray(0)

	c.SetTarget(nil)
	c.SetViewport(render.Rect{W: width, H: height})
	c.SetScissor(render.Rect{W: width, H: height})
	c.SetScissorTest(false)

	version := gl.GoStr(gl.GetString(gl.VERSION))
	c.log.Info("GL render context ready",
		zap.String("version", version),
		zap.Int("width", width),
		zap.Int("height", height))
	return c, nil
}

func (c *Context) lookupUniforms() {
	p := c.sceneProgram
	c.su = sceneUniforms{
		model:             uniform(p, "uModel"),
		normalMatrix:      uniform(p, "uNormalMatrix"),
		viewProj:          uniform(p, "uViewProj"),
		eye:               uniform(p, "uEye"),
		ambient:           uniform(p, "uAmbient"),
		dirCount:          uniform(p, "uDirCount"),
		dirDirection:      uniform(p, "uDirDirection"),
		dirRadiance:       uniform(p, "uDirRadiance"),
		pointCount:        uniform(p, "uPointCount"),
		pointPosition:     uniform(p, "uPointPosition"),
		pointRadiance:     uniform(p, "uPointRadiance"),
		pointDistance:     uniform(p, "uPointDistance"),
		color:             uniform(p, "uColor"),
		vertexColors:      uniform(p, "uVertexColors"),
		opacity:           uniform(p, "uOpacity"),
		alphaTest:         uniform(p, "uAlphaTest"),
		emissive:          uniform(p, "uEmissive"),
		emissiveIntensity: uniform(p, "uEmissiveIntensity"),
		shininess:         uniform(p, "uShininess"),
		lightMapIntensity: uniform(p, "uLightMapIntensity"),
		aoMapIntensity:    uniform(p, "uAOMapIntensity"),
		toneMap:           uniform(p, "uToneMap"),
		hasMap:            uniform(p, "uHasMap"),
		hasAlphaMap:       uniform(p, "uHasAlphaMap"),
		hasEmissiveMap:    uniform(p, "uHasEmissiveMap"),
		hasLightMap:       uniform(p, "uHasLightMap"),
		hasAOMap:          uniform(p, "uHasAOMap"),
	}

	gl.UseProgram(p)
	for name, unit := range map[string]int32{
		"uMap":         unitMap,
		"uAlphaMap":    unitAlphaMap,
		"uEmissiveMap": unitEmissiveMap,
		"uLightMap":    unitLightMap,
		"uAOMap":       unitAOMap,
	} {
		gl.Uniform1i(uniform(p, name), unit)
	}
	gl.UseProgram(0)
}

// Close deletes programs, buffers and cached textures.
func (c *Context) Close() {
	c.releaseCaches()
	gl.DeleteBuffers(1, &c.attrVBO)
	gl.DeleteVertexArrays(1, &c.attrVAO)
	gl.DeleteProgram(c.sceneProgram)
	gl.DeleteProgram(c.attrProgram)
}

// NewTarget allocates an RGBA32F target with depth.
func (c *Context) NewTarget(width, height int) (render.Target, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	return newTarget(int32(width), int32(height))
}

// SetTarget binds t; nil selects the default framebuffer. The viewport is
// left alone.
func (c *Context) SetTarget(t render.Target) {
	if t == nil {
		c.target = nil
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return
	}
	gt, ok := t.(*Target)
	if !ok {
		panic(fmt.Sprintf("glrender: foreign render target %T", t))
	}
	c.target = gt
	gl.BindFramebuffer(gl.FRAMEBUFFER, gt.fbo)
}

// Target returns the bound target, or nil for the default framebuffer.
func (c *Context) Target() render.Target {
	if c.target == nil {
		return nil
	}
	return c.target
}

func (c *Context) SetViewport(r render.Rect) {
	c.viewport = r
	gl.Viewport(int32(r.X), int32(r.Y), int32(r.W), int32(r.H))
}

func (c *Context) Viewport() render.Rect { return c.viewport }

func (c *Context) SetScissor(r render.Rect) {
	c.scissor = r
	gl.Scissor(int32(r.X), int32(r.Y), int32(r.W), int32(r.H))
}

func (c *Context) Scissor() render.Rect { return c.scissor }

func (c *Context) SetScissorTest(enabled bool) {
	c.scissorTest = enabled
	if enabled {
		gl.Enable(gl.SCISSOR_TEST)
	} else {
		gl.Disable(gl.SCISSOR_TEST)
	}
}

func (c *Context) ScissorTest() bool { return c.scissorTest }
func (c *Context) SetClearColor(col math.Vec3) { c.clearColor = col }
func (c *Context) ClearColor() math.Vec3 { return c.clearColor }
func (c *Context) SetClearAlpha(a float32) { c.clearAlpha = a }
func (c *Context) ClearAlpha() float32 { return c.clearAlpha }
func (c *Context) SetAutoClear(enabled bool) { c.autoClear = enabled }
func (c *Context) AutoClear() bool { return c.autoClear }
func (c *Context) SetToneMapping(t render.ToneMapping) { c.toneMapping = t }
func (c *Context) ToneMapping() render.ToneMapping { return c.toneMapping }

// Clear clears color and depth; the scissor test applies.
func (c *Context) Clear() {
	gl.DepthMask(true)
	gl.ClearColor(c.clearColor.X, c.clearColor.Y, c.clearColor.Z, c.clearAlpha)
	gl.ClearDepth(1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

func (c *Context) size() (int, int) {
	if c.target == nil {
		return c.screenW, c.screenH
	}
	return int(c.target.width), int(c.target.height)
}

// ReadPixels reads float RGBA from the bound target.
func (c *Context) ReadPixels(r render.Rect, dst []float32) error {
	w, h := c.size()
	if r.X < 0 || r.Y < 0 || r.W <= 0 || r.H <= 0 || r.X+r.W > w || r.Y+r.H > h {
		return fmt.Errorf("read rect %+v outside %dx%d target", r, w, h)
	}
	if len(dst) < r.W*r.H*4 {
		return fmt.Errorf("read buffer holds %d values, need %d", len(dst), r.W*r.H*4)
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 4)
	gl.ReadPixels(int32(r.X), int32(r.Y), int32(r.W), int32(r.H), gl.RGBA, gl.FLOAT, gl.Ptr(dst))
	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("glReadPixels: error 0x%x", e)
	}
	return nil
}
