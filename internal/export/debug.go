package export

import (
	"fmt"
	"image"
	"path/filepath"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/Faultbox/lightbake/internal/atlasmap"
	"github.com/Faultbox/lightbake/internal/logger"
)

// DebugWriter saves intermediate bake images into a directory.
// Small atlases are upscaled with nearest filtering so texels stay visible.
type DebugWriter struct {
	dir     string
	minSize int
	log     *zap.Logger
}

// NewDebugWriter creates a writer for dir. Images narrower or shorter than
// minSize are upscaled by an integer factor.
func NewDebugWriter(dir string, minSize int, log *zap.Logger) *DebugWriter {
	return &DebugWriter{dir: dir, minSize: minSize, log: logger.Or(log, "export")}
}

// AtlasMap writes the atlas map visualisation: local coordinates in red and
// green, item id in blue.
func (d *DebugWriter) AtlasMap(m *atlasmap.Map) error {
	return d.write("atlas_map.png", m.Image(), m.Width, m.Height)
}

// Pass writes the buffer of one bounce pass.
func (d *DebugWriter) Pass(pass int, buffer []float32, width, height int) error {
	return d.write(fmt.Sprintf("pass_%d.png", pass), buffer, width, height)
}

func (d *DebugWriter) write(name string, data []float32, width, height int) error {
	img, err := Image(data, width, height, Options{Format: FormatPNG})
	if err != nil {
		return err
	}
	img = upscale(img, d.minSize)

	path := filepath.Join(d.dir, name)
	if err := save(path, img, FormatPNG); err != nil {
		return err
	}
	d.log.Debug("debug image written",
		zap.String("path", path),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return nil
}

// upscale enlarges img by the smallest integer factor that brings both
// sides to at least minSize.
func upscale(img image.Image, minSize int) image.Image {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	if side <= 0 || side >= minSize {
		return img
	}
	factor := (minSize + side - 1) / side
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
