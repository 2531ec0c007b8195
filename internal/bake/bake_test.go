package bake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/lightbake/internal/atlasmap"
	"github.com/Faultbox/lightbake/internal/probe"
	"github.com/Faultbox/lightbake/internal/render"
	"github.com/Faultbox/lightbake/internal/render/soft"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/internal/staging"
	"github.com/Faultbox/lightbake/internal/workqueue"
	"github.com/Faultbox/lightbake/pkg/math"
)

func fastSettings() Settings {
	s := DefaultSettings()
	s.Sampler = probe.Settings{TargetSize: 8, Near: 0.05, Far: 50, Offset: 0.01}
	return s
}

// litRoom is a closed 2×2×2 room lit by a point light at its center.
func litRoom() (*scene.Node, *scene.Node) {
	root := scene.NewGroup("root")
	room := scene.NewMeshNode("room", scene.Box(2, 2, 2, true), scene.NewMaterial("plaster"))
	light := scene.NewLightNode("bulb", &scene.Light{Kind: scene.LightPoint, Color: math.V3(1, 1, 1), Intensity: 1})
	root.Add(room, light)
	return root, room
}

type sceneSnapshot struct {
	materials map[*scene.Node][]*scene.Material
	visible   map[*scene.Node]bool
	children  map[*scene.Node]int
}

func snapshot(root *scene.Node) sceneSnapshot {
	s := sceneSnapshot{
		materials: map[*scene.Node][]*scene.Material{},
		visible:   map[*scene.Node]bool{},
		children:  map[*scene.Node]int{},
	}
	var visit func(n *scene.Node)
	visit = func(n *scene.Node) {
		s.visible[n] = n.Visible
		s.children[n] = len(n.Children)
		if n.Mesh != nil {
			s.materials[n] = append([]*scene.Material(nil), n.Mesh.Materials...)
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(root)
	return s
}

// passRecorder keeps a copy of every pass buffer.
type passRecorder struct {
	atlas  *atlasmap.Map
	passes [][]float32
}

func (r *passRecorder) hooks() Hooks {
	return Hooks{
		OnAtlasMapReady: func(m *atlasmap.Map) { r.atlas = m },
		OnPassComplete: func(pass int, buf []float32, w, h int) {
			r.passes = append(r.passes, append([]float32(nil), buf...))
		},
	}
}

func TestFlatPlaneScenario(t *testing.T) {
	root := scene.NewGroup("root")
	plane := scene.NewMeshNode("plane", scene.Plane(2, 2), scene.NewMaterial("floor"))
	sun := scene.NewLightNode("sun", &scene.Light{Kind: scene.LightDirectional, Color: math.V3(1, 1, 1), Intensity: 1, Direction: math.V3(0, 0, -1)})
	root.Add(plane, sun)
	before := snapshot(root)

	settings := fastSettings()
	settings.TexelsPerUnit = 4
	var rec passRecorder
	b := New(soft.New(4, 4), Options{Hooks: rec.hooks()})
	tex, err := b.Bake(context.Background(), root, settings)
	require.NoError(t, err)

	assert.Equal(t, 16, tex.Width)
	assert.Equal(t, 16, tex.Height)
	assert.True(t, tex.Baked)
	require.NotNil(t, rec.atlas)
	assert.Equal(t, 64, rec.atlas.Count())
	for i := 0; i < rec.atlas.Width*rec.atlas.Height; i++ {
		if rec.atlas.Filled(i) {
			assert.Equal(t, float32(1), rec.atlas.Data[i*4+2])
		}
	}
	assert.Len(t, rec.passes, Passes)

	assert.Equal(t, before, snapshot(root))
	assert.Same(t, tex, plane.Mesh.Materials[0].LightMap)
}

func TestPassesConverge(t *testing.T) {
	root, room := litRoom()
	before := snapshot(root)

	var rec passRecorder
	b := New(soft.New(4, 4), Options{Hooks: rec.hooks()})
	wb, err := NewWorkbench(root, fastSettings())
	require.NoError(t, err)
	tex, err := b.Run(context.Background(), wb)
	require.NoError(t, err)

	require.Len(t, rec.passes, 2)
	p1, p2 := rec.passes[0], rec.passes[1]
	lit := 0
	for i := 0; i < rec.atlas.Width*rec.atlas.Height; i++ {
		if !rec.atlas.Filled(i) {
			continue
		}
		for c := 0; c < 3; c++ {
			assert.GreaterOrEqual(t, p2[i*4+c]+1e-5, p1[i*4+c], "texel %d channel %d", i, c)
		}
		if p1[i*4] > 0 {
			lit++
		}
	}
	assert.Equal(t, rec.atlas.Count(), lit, "every wall sees the lit room")
	assert.Equal(t, p2, tex.Data)

	state, pass := wb.State()
	assert.Equal(t, StateDone, state)
	assert.Equal(t, 2, pass)
	assert.Equal(t, before, snapshot(root))
	assert.Same(t, tex, room.Mesh.Materials[0].LightMap)
}

func TestZeroBounceKeepsDirectLight(t *testing.T) {
	root, room := litRoom()

	var rec passRecorder
	settings := fastSettings()
	settings.BounceMultiplier = 0
	_, err := New(soft.New(4, 4), Options{Hooks: rec.hooks()}).Bake(context.Background(), root, settings)
	require.NoError(t, err)

	require.Len(t, rec.passes, 2)
	assert.InDeltaSlice(t, rec.passes[0], rec.passes[1], 1e-6)
	assert.NotNil(t, room.Mesh.Materials[0].LightMap)
}

func TestAOEnclosedDarkerThanOpen(t *testing.T) {
	root := scene.NewGroup("root")
	room := scene.NewMeshNode("room", scene.Box(1, 1, 1, true), scene.NewMaterial("room"))
	field := scene.NewMeshNode("field", scene.Plane(1, 1), scene.NewMaterial("field"))
	field.Local = math.Translate(20, 0, 0)
	root.Add(room, field)

	settings := fastSettings()
	settings.AOMode = true
	settings.AODistance = 2
	settings.TexelsPerUnit = 4

	var rec passRecorder
	b := New(soft.New(4, 4), Options{Hooks: rec.hooks()})
	tex, err := b.Bake(context.Background(), root, settings)
	require.NoError(t, err)
	assert.Same(t, tex, room.Mesh.Materials[0].AOMap)
	assert.Nil(t, room.Mesh.Materials[0].LightMap)

	var maxRoom, minField float32 = 0, 1
	for pt, err := range rec.atlas.Texels() {
		require.NoError(t, err)
		v := tex.Data[pt.Index*4]
		if pt.Item.Node == room {
			maxRoom = max(maxRoom, v)
		} else {
			minField = min(minField, v)
		}
	}
	assert.InDelta(t, 1, minField, 1e-4)
	assert.Less(t, maxRoom, minField)
}

// failingContext errors out of ReadPixels after a number of calls.
type failingContext struct {
	render.Context
	reads, failAt int
}

func (f *failingContext) ReadPixels(r render.Rect, dst []float32) error {
	f.reads++
	if f.reads >= f.failAt {
		return errors.New("device lost")
	}
	return f.Context.ReadPixels(r, dst)
}

func TestFailureRestoresScene(t *testing.T) {
	for _, ao := range []bool{false, true} {
		root, room := litRoom()
		before := snapshot(root)

		settings := fastSettings()
		settings.AOMode = ao
		wb, err := NewWorkbench(root, settings)
		require.NoError(t, err)

		// Read 1 is the atlas map; fail in the middle of pass 1.
		rc := &failingContext{Context: soft.New(4, 4), failAt: 4}
		_, err = New(rc, Options{}).Run(context.Background(), wb)
		require.ErrorContains(t, err, "device lost")

		state, _ := wb.State()
		assert.Equal(t, StateFailed, state)
		assert.Equal(t, before, snapshot(root))
		assert.Nil(t, room.Mesh.Materials[0].LightMap)
		assert.Nil(t, room.Mesh.Materials[0].AOMap)
	}
}

func TestCancelStopsBakeAndRestores(t *testing.T) {
	root, _ := litRoom()
	before := snapshot(root)

	q := workqueue.New(workqueue.Options{})
	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	go func() { _ = q.Serve(serveCtx, time.Millisecond, nil) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	passes := 0
	b := New(soft.New(4, 4), Options{
		Queue: q,
		Hooks: Hooks{OnPassComplete: func(int, []float32, int, int) {
			passes++
			cancel()
		}},
	})
	_, err := b.Bake(ctx, root, fastSettings())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, passes)
	assert.Equal(t, before, snapshot(root))
}

func TestCancelWithClosedQueueStillRestores(t *testing.T) {
	root, _ := litRoom()
	before := snapshot(root)

	q := workqueue.New(workqueue.Options{})
	serveCtx, stopServe := context.WithCancel(context.Background())
	defer stopServe()
	go func() { _ = q.Serve(serveCtx, time.Millisecond, nil) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(soft.New(4, 4), Options{
		Queue: q,
		Hooks: Hooks{OnPassComplete: func(int, []float32, int, int) {
			cancel()
			q.Close()
		}},
	})
	_, err := b.Bake(ctx, root, fastSettings())
	require.Error(t, err)
	assert.Equal(t, before, snapshot(root))
}

func TestCancelSharedWithServeStillRestores(t *testing.T) {
	root, _ := litRoom()
	before := snapshot(root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := workqueue.New(workqueue.Options{})
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = q.Serve(ctx, time.Millisecond, nil)
	}()

	b := New(soft.New(4, 4), Options{
		Queue: q,
		Hooks: Hooks{OnPassComplete: func(int, []float32, int, int) {
			cancel()
			<-served
		}},
	})
	errc := make(chan error, 1)
	go func() {
		_, err := b.Bake(ctx, root, fastSettings())
		errc <- err
	}()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("bake did not return after the serving context ended")
	}
	assert.Equal(t, before, snapshot(root))
}

func TestManualMapIsFatal(t *testing.T) {
	root, room := litRoom()
	manual := scene.NewTexture("painted", 4, 4)
	room.Mesh.Materials[0].LightMap = manual

	_, err := New(soft.New(4, 4), Options{}).Bake(context.Background(), root, fastSettings())
	assert.ErrorIs(t, err, staging.ErrManualMap)
	assert.Same(t, manual, room.Mesh.Materials[0].LightMap)
	assert.Nil(t, room.Mesh.Geometry.UV2, "layout not run")
}

func TestRebakeReplacesPreviousResult(t *testing.T) {
	root, room := litRoom()
	b := New(soft.New(4, 4), Options{})
	first, err := b.Bake(context.Background(), root, fastSettings())
	require.NoError(t, err)

	room.Mesh.Geometry.UV2 = nil
	second, err := b.Bake(context.Background(), root, fastSettings())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, room.Mesh.Materials[0].LightMap)
}

func TestNothingToBake(t *testing.T) {
	root := scene.NewGroup("root")
	statue := scene.NewMeshNode("statue", scene.Plane(1, 1), scene.NewMaterial("stone"))
	statue.Flags |= scene.FlagReadOnly
	root.Add(statue)

	_, err := New(soft.New(1, 1), Options{}).Bake(context.Background(), root, fastSettings())
	assert.ErrorIs(t, err, ErrNothingToBake)
}

func TestWorkbenchRunsOnce(t *testing.T) {
	root, _ := litRoom()
	wb, err := NewWorkbench(root, fastSettings())
	require.NoError(t, err)
	b := New(soft.New(4, 4), Options{})
	_, err = b.Run(context.Background(), wb)
	require.NoError(t, err)
	_, err = b.Run(context.Background(), wb)
	assert.Error(t, err)
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero density", func(s *Settings) { s.TexelsPerUnit = 0 }},
		{"half size", func(s *Settings) { s.LightMapWidth = 64 }},
		{"ao without distance", func(s *Settings) { s.AOMode = true; s.AODistance = 0 }},
		{"negative bounce", func(s *Settings) { s.BounceMultiplier = -1 }},
		{"odd hemicube", func(s *Settings) { s.Sampler.TargetSize = 15 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "map rasterized", StateMapRasterized.String())
	assert.Equal(t, "State(42)", State(42).String())
}
