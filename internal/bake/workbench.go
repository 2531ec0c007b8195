package bake

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Faultbox/lightbake/internal/atlas"
	"github.com/Faultbox/lightbake/internal/atlasmap"
	"github.com/Faultbox/lightbake/internal/scene"
)

// State is the progress of a bake.
type State int32

const (
	StateIdle State = iota
	StateLayoutPending
	StateMapRasterized
	StatePass
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLayoutPending:
		return "layout pending"
	case StateMapRasterized:
		return "map rasterized"
	case StatePass:
		return "pass"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Workbench is the mutable state of one bake session.
type Workbench struct {
	ID       uuid.UUID
	Settings Settings
	Root     *scene.Node

	// Items are the meshes being baked, set during layout.
	Items    []*scene.Node
	Layout   *atlas.Layout
	AtlasMap *atlasmap.Map

	// Irradiance is the committed output of the last finished pass.
	Irradiance []float32
	// Texture is the map the staged scene samples; it ends up as the
	// result.
	Texture *scene.Texture

	state atomic.Int32
	pass  atomic.Int32
}

// NewWorkbench validates settings and creates an idle workbench.
func NewWorkbench(root *scene.Node, settings Settings) (*Workbench, error) {
	if root == nil {
		return nil, fmt.Errorf("bake: nil scene root")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Workbench{ID: uuid.New(), Settings: settings, Root: root}, nil
}

// State returns the current state and, during StatePass, the 1-based pass.
func (w *Workbench) State() (State, int) {
	return State(w.state.Load()), int(w.pass.Load())
}

func (w *Workbench) setState(s State) {
	w.state.Store(int32(s))
}

func (w *Workbench) startPass(n int) {
	w.pass.Store(int32(n))
	w.state.Store(int32(StatePass))
}

// commit makes buf the persistent irradiance and updates the texture the
// staged materials sample.
func (w *Workbench) commit(buf []float32) {
	copy(w.Irradiance, buf)
	copy(w.Texture.Data, buf)
	w.Texture.MarkDirty()
}
