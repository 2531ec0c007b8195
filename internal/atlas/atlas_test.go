package atlas

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

func meshNode(name string, g *scene.Geometry) *scene.Node {
	return scene.NewMeshNode(name, g, scene.NewMaterial(name))
}

func overlaps(a, b *Box) bool {
	return a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H
}

// checkLayout asserts packing and UV containment for every box.
func checkLayout(t *testing.T, l *Layout) {
	t.Helper()
	for i, a := range l.Boxes {
		assert.GreaterOrEqual(t, a.X, 0)
		assert.GreaterOrEqual(t, a.Y, 0)
		assert.LessOrEqual(t, a.X+a.W, l.Width, "box %d exceeds atlas width", i)
		assert.LessOrEqual(t, a.Y+a.H, l.Height, "box %d exceeds atlas height", i)
		for j := i + 1; j < len(l.Boxes); j++ {
			assert.False(t, overlaps(a, l.Boxes[j]), "boxes %d and %d overlap", i, j)
		}

		uv2 := l.Items[a.Item].Mesh.Geometry.UV2
		for k, v := range a.Vertices {
			u, w := uv2[v*2], uv2[v*2+1]
			want := a.UV(a.Local[k][0], a.Local[k][1], l.Width, l.Height)
			assert.InDelta(t, want[0], u, 1e-6)
			assert.InDelta(t, want[1], w, 1e-6)

			tx, ty := u*float32(l.Width), w*float32(l.Height)
			assert.GreaterOrEqual(t, tx, float32(a.X+1)-1e-4)
			assert.LessOrEqual(t, tx, float32(a.X+a.W-1)+1e-4)
			assert.GreaterOrEqual(t, ty, float32(a.Y+1)-1e-4)
			assert.LessOrEqual(t, ty, float32(a.Y+a.H-1)+1e-4)
		}
	}
}

func TestPlaneLayout(t *testing.T) {
	n := meshNode("plane", scene.Plane(2, 2))
	l, err := Compute([]*scene.Node{n}, Options{TexelsPerUnit: 4})
	require.NoError(t, err)

	require.Len(t, l.Boxes, 1)
	b := l.Boxes[0]
	assert.Equal(t, 10, b.W)
	assert.Equal(t, 10, b.H)
	assert.Equal(t, 16, l.Width)
	assert.Equal(t, 16, l.Height)
	assert.True(t, l.Auto)
	assert.InDelta(t, 0, b.UAxis.Dot(b.VAxis), 1e-6)
	assert.Len(t, n.Mesh.Geometry.UV2, 8)
	assert.Equal(t, uint64(1), n.Mesh.Geometry.Version)
	checkLayout(t, l)
}

func TestBoxSidesGetSeparateBoxes(t *testing.T) {
	n := meshNode("room", scene.Box(2, 1, 3, true))
	l, err := Compute([]*scene.Node{n}, Options{TexelsPerUnit: 8})
	require.NoError(t, err)
	assert.Len(t, l.Boxes, 6)
	checkLayout(t, l)
}

func TestScaleAffectsBoxSize(t *testing.T) {
	n := meshNode("plane", scene.Plane(1, 1))
	n.Local = math.Scale(3, 3, 3)
	l, err := Compute([]*scene.Node{n}, Options{TexelsPerUnit: 2})
	require.NoError(t, err)
	assert.Equal(t, 8, l.Boxes[0].W)
}

func TestNonIndexedGeometryIsMerged(t *testing.T) {
	g := scene.Plane(2, 2).Unrolled()
	require.False(t, g.HasIndex())
	n := meshNode("plane", g)

	l, err := Compute([]*scene.Node{n}, Options{TexelsPerUnit: 4})
	require.NoError(t, err)
	require.Len(t, l.Boxes, 1)
	assert.Len(t, l.Boxes[0].Vertices, 4)

	// Merged duplicates share coordinates.
	uv2 := g.UV2
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			if g.Position(i) == g.Position(j) {
				assert.Equal(t, uv2[i*2:i*2+2], uv2[j*2:j*2+2])
			}
		}
	}
	checkLayout(t, l)
}

func TestManyMeshesPack(t *testing.T) {
	var items []*scene.Node
	for i := 0; i < 20; i++ {
		n := meshNode("p", scene.Plane(float32(1+i%4), float32(1+i%3)))
		items = append(items, n)
	}
	items = append(items, meshNode("box", scene.Box(1, 2, 3, false)))

	l, err := Compute(items, Options{TexelsPerUnit: 3})
	require.NoError(t, err)
	assert.Len(t, l.Boxes, 26)
	checkLayout(t, l)
}

func TestFixedSize(t *testing.T) {
	n := meshNode("plane", scene.Plane(2, 2))
	l, err := Compute([]*scene.Node{n}, Options{TexelsPerUnit: 4, Width: 32, Height: 12})
	require.NoError(t, err)
	assert.Equal(t, 32, l.Width)
	assert.Equal(t, 12, l.Height)
	checkLayout(t, l)

	_, err = Compute([]*scene.Node{meshNode("plane", scene.Plane(2, 2))}, Options{TexelsPerUnit: 4, Width: 8, Height: 8})
	var se *SizeError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Auto)
	assert.Equal(t, 8, se.ProvidedW)
	assert.Contains(t, err.Error(), "light_map_size")
}

func TestAutoSizeCap(t *testing.T) {
	n := meshNode("plane", scene.Plane(2, 2))
	_, err := Compute([]*scene.Node{n}, Options{TexelsPerUnit: 5000})
	var se *SizeError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Auto)
	assert.Equal(t, MaxAutoSize, se.ProvidedW)
}

func TestMixedUV2(t *testing.T) {
	authored := scene.Plane(1, 1)
	authored.UV2 = make([]float32, 8)
	_, err := Compute([]*scene.Node{
		meshNode("authored", authored),
		meshNode("auto", scene.Plane(1, 1)),
	}, Options{TexelsPerUnit: 2})
	assert.ErrorIs(t, err, ErrMixedUV2)
}

func TestAllAuthoredNeedsSize(t *testing.T) {
	g := scene.Plane(1, 1)
	g.UV2 = []float32{0, 0, 1, 0, 1, 1, 0, 1}
	items := []*scene.Node{meshNode("authored", g)}

	_, err := Compute(items, Options{TexelsPerUnit: 2})
	assert.ErrorIs(t, err, ErrSizeRequired)

	l, err := Compute(items, Options{TexelsPerUnit: 2, Width: 64, Height: 32})
	require.NoError(t, err)
	assert.False(t, l.Auto)
	assert.Empty(t, l.Boxes)
	assert.Equal(t, []float32{0, 0, 1, 0, 1, 1, 0, 1}, g.UV2)
}

func TestIgnoreForUV2RequiresUV2(t *testing.T) {
	n := meshNode("flagged", scene.Plane(1, 1))
	n.Flags |= scene.FlagIgnoreForUV2
	_, err := Compute([]*scene.Node{n}, Options{TexelsPerUnit: 2})
	assert.ErrorIs(t, err, ErrMissingAttribute)
}

func TestDegenerateFace(t *testing.T) {
	g := &scene.Geometry{
		Positions: []float32{0, 0, 0, 1, 0, 0, 2, 0, 0},
		Index:     []uint32{0, 1, 2},
	}
	_, err := Compute([]*scene.Node{meshNode("sliver", g)}, Options{TexelsPerUnit: 2})
	var de *DegenerateFaceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "sliver", de.Mesh)
	assert.Equal(t, 0, de.Face)
}

func TestSharedGeometryRejected(t *testing.T) {
	g := scene.Plane(1, 1)
	_, err := Compute([]*scene.Node{meshNode("a", g), meshNode("b", g)}, Options{TexelsPerUnit: 2})
	assert.Error(t, err)
}

func TestEligible(t *testing.T) {
	root := scene.NewGroup("root")
	baked := meshNode("baked", scene.Plane(1, 1))
	ignored := meshNode("ignored", scene.Plane(1, 1))
	ignored.Flags |= scene.FlagIgnoreForAtlas
	readOnly := meshNode("readonly", scene.Plane(1, 1))
	readOnly.Flags |= scene.FlagReadOnly
	hidden := meshNode("hidden", scene.Plane(1, 1))
	hidden.Visible = false
	root.Add(baked, ignored, readOnly, hidden)

	assert.Equal(t, []*scene.Node{baked}, Eligible(root))
}

func TestPackNeverOverlaps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		rects := make([]rect, 40)
		for i := range rects {
			rects[i] = rect{w: 2 + rng.Intn(30), h: 2 + rng.Intn(30), id: i}
		}
		usedW, usedH := pack(rects, 0)
		for i, a := range rects {
			require.LessOrEqual(t, a.x+a.w, usedW)
			require.LessOrEqual(t, a.y+a.h, usedH)
			for _, b := range rects[i+1:] {
				disjoint := a.x+a.w <= b.x || b.x+b.w <= a.x || a.y+a.h <= b.y || b.y+b.h <= a.y
				require.True(t, disjoint, "trial %d: %+v overlaps %+v", trial, a, b)
			}
		}
	}
}

func TestNextPow2(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 4}, {3, 4}, {4, 4}, {5, 8}, {10, 16}, {1024, 1024}, {1025, 2048},
	}
	for _, tt := range tests {
		if got := nextPow2(tt.in); got != tt.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
