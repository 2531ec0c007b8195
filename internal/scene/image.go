package scene

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	gomath "math"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
)

// TGA image types.
const (
	tgaUncompressed = 2  // Uncompressed true-color
	tgaRLE          = 10 // RLE compressed true-color
)

// LoadTexture reads an image file into a linear float texture. Color maps
// are stored sRGB-encoded on disk and are linearized when srgb is set;
// alpha is always linear. PNG, JPEG, BMP, TIFF and TGA are supported.
func LoadTexture(path string, srgb bool) (*Texture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var img image.Image
	if strings.EqualFold(filepath.Ext(path), ".tga") {
		img, err = decodeTGA(data)
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return TextureFromImage(filepath.Base(path), img, srgb), nil
}

// TextureFromImage converts img to a float texture. Image row 0 (top)
// becomes the last texture row, so v = 1 is the top of the image.
func TextureFromImage(name string, img image.Image, srgb bool) *Texture {
	b := img.Bounds()
	t := NewTexture(name, b.Dx(), b.Dy())
	for y := 0; y < t.Height; y++ {
		row := (t.Height - 1 - y) * t.Width * 4
		for x := 0; x < t.Width; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			px := t.Data[row+x*4 : row+x*4+4]
			px[0] = decodeChannel(c.R, srgb)
			px[1] = decodeChannel(c.G, srgb)
			px[2] = decodeChannel(c.B, srgb)
			px[3] = float32(c.A) / 0xffff
		}
	}
	return t
}

func decodeChannel(v uint16, srgb bool) float32 {
	f := float32(v) / 0xffff
	if !srgb {
		return f
	}
	if f <= 0.04045 {
		return f / 12.92
	}
	return float32(gomath.Pow((float64(f)+0.055)/1.055, 2.4))
}

// decodeTGA decodes uncompressed (type 2) and RLE (type 10) true-color TGA
// files with 24 or 32 bits per pixel.
func decodeTGA(data []byte) (image.Image, error) {
	if len(data) < 18 {
		return nil, fmt.Errorf("TGA data too short")
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bpp := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("color-mapped TGA not supported")
	}
	if imageType != tgaUncompressed && imageType != tgaRLE {
		return nil, fmt.Errorf("unsupported TGA type %d (only uncompressed/RLE true-color supported)", imageType)
	}
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("unsupported TGA bit depth %d (only 24/32 supported)", bpp)
	}

	offset := 18 + idLength
	if offset > len(data) {
		return nil, fmt.Errorf("TGA data truncated")
	}
	r := tgaReader{
		data:          data[offset:],
		bytesPerPixel: bpp / 8,
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	// Bit 5 of the descriptor marks top-to-bottom storage
	topToBottom := descriptor&0x20 != 0
	put := func(i int, c color.NRGBA) {
		x, y := i%width, i/width
		if !topToBottom {
			y = height - 1 - y
		}
		img.SetNRGBA(x, y, c)
	}

	count := width * height
	if imageType == tgaUncompressed {
		if len(r.data) < count*r.bytesPerPixel {
			return nil, fmt.Errorf("TGA pixel data truncated")
		}
		for i := 0; i < count; i++ {
			c, _ := r.pixel()
			put(i, c)
		}
		return img, nil
	}

	for i := 0; i < count; {
		if r.pos >= len(r.data) {
			return nil, fmt.Errorf("TGA RLE data truncated at pixel %d", i)
		}
		packet := r.data[r.pos]
		r.pos++
		run := int(packet&0x7F) + 1

		if packet&0x80 != 0 {
			// Repeat one pixel
			c, ok := r.pixel()
			if !ok {
				return nil, fmt.Errorf("TGA RLE data truncated at pixel %d", i)
			}
			for k := 0; k < run && i < count; k++ {
				put(i, c)
				i++
			}
			continue
		}
		for k := 0; k < run && i < count; k++ {
			c, ok := r.pixel()
			if !ok {
				return nil, fmt.Errorf("TGA RLE data truncated at pixel %d", i)
			}
			put(i, c)
			i++
		}
	}
	return img, nil
}

type tgaReader struct {
	data          []byte
	pos           int
	bytesPerPixel int
}

// pixel reads one BGR(A) pixel.
func (r *tgaReader) pixel() (color.NRGBA, bool) {
	if r.pos+r.bytesPerPixel > len(r.data) {
		return color.NRGBA{}, false
	}
	p := r.data[r.pos:]
	c := color.NRGBA{R: p[2], G: p[1], B: p[0], A: 255}
	if r.bytesPerPixel == 4 {
		c.A = p[3]
	}
	r.pos += r.bytesPerPixel
	return c, true
}
