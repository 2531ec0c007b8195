// Package export encodes baked float lightmaps as image files.
package export

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	gomath "math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
)

// Format selects the output encoding.
type Format string

const (
	FormatPNG   Format = "png"   // 8 bits per channel
	FormatPNG16 Format = "png16" // 16 bits per channel
	FormatTIFF  Format = "tiff"  // 16 bits per channel, deflate
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatPNG, FormatPNG16, FormatTIFF:
		return f, nil
	}
	return "", fmt.Errorf("export: unknown format %q", s)
}

// Options controls encoding.
type Options struct {
	Format Format
	// SRGB applies the sRGB transfer curve to the color channels.
	SRGB bool
}

// Image converts a linear RGBA float buffer to an image. Input rows are
// bottom-up; the image has row 0 at the top. Values are clamped to [0, 1].
func Image(data []float32, width, height int, opts Options) (image.Image, error) {
	if len(data) != width*height*4 {
		return nil, fmt.Errorf("export: pixel data size mismatch: expected %d, got %d", width*height*4, len(data))
	}

	rect := image.Rect(0, 0, width, height)
	if opts.Format == FormatPNG16 || opts.Format == FormatTIFF {
		img := image.NewNRGBA64(rect)
		for y := 0; y < height; y++ {
			src := data[(height-1-y)*width*4:]
			for x := 0; x < width; x++ {
				p := src[x*4 : x*4+4]
				img.SetNRGBA64(x, y, color.NRGBA64{
					R: quantize16(channel(p[0], opts.SRGB)),
					G: quantize16(channel(p[1], opts.SRGB)),
					B: quantize16(channel(p[2], opts.SRGB)),
					A: quantize16(p[3]),
				})
			}
		}
		return img, nil
	}

	img := image.NewNRGBA(rect)
	for y := 0; y < height; y++ {
		src := data[(height-1-y)*width*4:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			p := src[x*4 : x*4+4]
			dst[x*4] = quantize8(channel(p[0], opts.SRGB))
			dst[x*4+1] = quantize8(channel(p[1], opts.SRGB))
			dst[x*4+2] = quantize8(channel(p[2], opts.SRGB))
			dst[x*4+3] = quantize8(p[3])
		}
	}
	return img, nil
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatPNG, FormatPNG16:
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("encoding PNG: %w", err)
		}
	case FormatTIFF:
		if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
			return fmt.Errorf("encoding TIFF: %w", err)
		}
	default:
		return fmt.Errorf("export: unknown format %q", format)
	}
	return nil
}

// WriteFile converts data and writes it to path, creating parent
// directories as needed.
func WriteFile(path string, data []float32, width, height int, opts Options) error {
	img, err := Image(data, width, height, opts)
	if err != nil {
		return err
	}
	return save(path, img, opts.Format)
}

func save(path string, img image.Image, format Format) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := Encode(file, img, format); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func channel(v float32, srgb bool) float32 {
	v = min(max(v, 0), 1)
	if !srgb {
		return v
	}
	if v <= 0.0031308 {
		return v * 12.92
	}
	return float32(1.055*gomath.Pow(float64(v), 1/2.4) - 0.055)
}

func quantize8(v float32) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}

func quantize16(v float32) uint16 {
	return uint16(min(max(v, 0), 1)*65535 + 0.5)
}
