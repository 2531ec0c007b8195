package glrender

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// Target is an offscreen RGBA32F color texture with a depth renderbuffer.
type Target struct {
	fbo          uint32
	colorTexture uint32
	depthRBO     uint32
	width        int32
	height       int32
}

func newTarget(width, height int32) (*Target, error) {
	t := &Target{
		width:  width,
		height: height,
	}

	if err := t.create(); err != nil {
		return nil, fmt.Errorf("creating framebuffer: %w", err)
	}

	return t, nil
}

func (t *Target) create() error {
	var prevFBO int32
	gl.GetIntegerv(gl.FRAMEBUFFER_BINDING, &prevFBO)
	defer gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(prevFBO))

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)

	// Float color so irradiance above 1 survives read-back
	gl.GenTextures(1, &t.colorTexture)
	gl.BindTexture(gl.TEXTURE_2D, t.colorTexture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, t.width, t.height, 0, gl.RGBA, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.colorTexture, 0)

	gl.GenRenderbuffers(1, &t.depthRBO)
	gl.BindRenderbuffer(gl.RENDERBUFFER, t.depthRBO)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT24, t.width, t.height)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.RENDERBUFFER, t.depthRBO)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	if status != gl.FRAMEBUFFER_COMPLETE {
		t.Release()
		return fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}
	return nil
}

// Width returns the target width in pixels.
func (t *Target) Width() int { return int(t.width) }

// Height returns the target height in pixels.
func (t *Target) Height() int { return int(t.height) }

// Release frees the GL objects.
func (t *Target) Release() {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.colorTexture != 0 {
		gl.DeleteTextures(1, &t.colorTexture)
		t.colorTexture = 0
	}
	if t.depthRBO != 0 {
		gl.DeleteRenderbuffers(1, &t.depthRBO)
		t.depthRBO = 0
	}
}
