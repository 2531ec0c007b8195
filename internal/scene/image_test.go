package scene

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tgaHeader(imageType byte, w, h int, bpp, descriptor byte) []byte {
	hdr := make([]byte, 18)
	hdr[2] = imageType
	hdr[12], hdr[13] = byte(w), byte(w>>8)
	hdr[14], hdr[15] = byte(h), byte(h>>8)
	hdr[16] = bpp
	hdr[17] = descriptor
	return hdr
}

func TestDecodeTGAUncompressed(t *testing.T) {
	// 2x1 bottom-to-top BGR: blue then red
	data := append(tgaHeader(tgaUncompressed, 2, 1, 24, 0), 255, 0, 0, 0, 0, 255)

	img, err := decodeTGA(data)
	require.NoError(t, err)
	nrgba := img.(*image.NRGBA)
	assert.Equal(t, color.NRGBA{0, 0, 255, 255}, nrgba.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{255, 0, 0, 255}, nrgba.NRGBAAt(1, 0))
}

func TestDecodeTGARLE(t *testing.T) {
	// 2x2 top-to-bottom BGRA: a run of two green pixels, then two raw pixels
	data := tgaHeader(tgaRLE, 2, 2, 32, 0x20)
	data = append(data, 0x81, 0, 255, 0, 255)
	data = append(data, 0x01, 0, 0, 255, 128, 255, 255, 255, 255)

	img, err := decodeTGA(data)
	require.NoError(t, err)
	nrgba := img.(*image.NRGBA)
	assert.Equal(t, color.NRGBA{0, 255, 0, 255}, nrgba.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{0, 255, 0, 255}, nrgba.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{255, 0, 0, 128}, nrgba.NRGBAAt(0, 1))
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, nrgba.NRGBAAt(1, 1))
}

func TestDecodeTGAErrors(t *testing.T) {
	colorMapped := tgaHeader(tgaUncompressed, 1, 1, 24, 0)
	colorMapped[1] = 1

	tests := map[string][]byte{
		"short":         {0, 0, 2},
		"color-mapped":  append(colorMapped, 0, 0, 0),
		"grayscale":     append(tgaHeader(3, 1, 1, 8, 0), 0),
		"16 bit":        append(tgaHeader(tgaUncompressed, 1, 1, 16, 0), 0, 0),
		"truncated":     append(tgaHeader(tgaUncompressed, 2, 2, 24, 0), 1, 2, 3),
		"rle truncated": append(tgaHeader(tgaRLE, 2, 2, 24, 0), 0x83, 1),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decodeTGA(data)
			assert.Error(t, err)
		})
	}
}

func TestTextureFromImageFlipsAndLinearizes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 2))
	img.SetNRGBA(0, 0, color.NRGBA{255, 255, 255, 255}) // top
	img.SetNRGBA(0, 1, color.NRGBA{188, 0, 0, 51})      // bottom

	tex := TextureFromImage("t", img, true)
	require.Equal(t, 1, tex.Width)
	require.Equal(t, 2, tex.Height)

	bottom := tex.At(0, 0)
	assert.InDelta(t, 0.5, bottom[0], 0.01)
	assert.InDelta(t, 0.2, bottom[3], 0.001, "alpha is not linearized")
	assert.Equal(t, float32(1), tex.At(0, 1)[1])

	linear := TextureFromImage("t", img, false)
	assert.InDelta(t, 188.0/255, linear.At(0, 0)[0], 1e-4)
}

func TestLoadSceneWithTextures(t *testing.T) {
	dir := t.TempDir()

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	f, err := os.Create(filepath.Join(dir, "white.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	tga := append(tgaHeader(tgaUncompressed, 1, 1, 24, 0), 0, 0, 255)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "baked.tga"), tga, 0644))

	src := `
materials:
  - name: wall
    map: white.png
    filter: nearest
  - name: floor
    map: white.png
    filter: nearest
    light_map: baked.tga
nodes:
  - name: a
    plane: {size: [1, 1]}
    material: wall
  - name: b
    plane: {size: [1, 1]}
    material: floor
`
	path := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	root, err := Load(path)
	require.NoError(t, err)

	wall := root.Find("a").Mesh.Materials[0]
	floor := root.Find("b").Mesh.Materials[0]
	require.NotNil(t, wall.Map)
	assert.Same(t, wall.Map, floor.Map, "one image is loaded once")
	assert.Equal(t, FilterNearest, wall.Map.Filter)
	assert.Equal(t, float32(1), wall.Map.At(1, 1)[0])

	require.NotNil(t, floor.LightMap)
	assert.Equal(t, float32(1), floor.LightMap.At(0, 0)[0])
	assert.False(t, floor.LightMap.Baked)
	assert.Nil(t, wall.LightMap)
}

func TestLoadSceneMissingTexture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	src := "materials:\n  - name: m\n    map: nope.png\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
