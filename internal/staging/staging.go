// Package staging swaps a scene into its baking look and back.
//
// While staged, every non-read-only mesh renders with a flat diffuse
// material that carries the in-progress lightmap (or AO map), and in AO mode
// the scene's lights are replaced by a single white ambient light. Restore
// puts back the original materials and light visibility.
package staging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/logger"
	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// ErrManualMap is wrapped by ManualMapError.
var ErrManualMap = errors.New("staging: material has a manually assigned map")

// ManualMapError reports a baked mesh whose material already carries a
// lightmap or AO map the baker did not produce.
type ManualMapError struct {
	Mesh     string
	Material string
	Map      string
}

func (e *ManualMapError) Error() string {
	return fmt.Sprintf("staging: mesh %q material %q already has a manually assigned %s; remove it or exclude the mesh from baking",
		e.Mesh, e.Material, e.Map)
}

func (e *ManualMapError) Unwrap() error { return ErrManualMap }

// Options selects the staging policy.
type Options struct {
	AOMode bool
	// EmissiveMultiplier scales staged emissive intensity (lightmap mode).
	// Zero turns emitters off.
	EmissiveMultiplier float32
	// BounceMultiplier scales the fed-back lightmap. Zero disables bounces.
	BounceMultiplier float32
	Logger           *zap.Logger
}

// Stage is an applied staging. It must be restored exactly once; extra
// Restore calls are no-ops.
type Stage struct {
	root  *scene.Node
	baked map[*scene.Node]bool
	opts  Options
	log   *zap.Logger

	materials map[*scene.Node][]*scene.Material
	staged    map[*scene.Material]bool
	lights    map[*scene.Node]bool
	ambient   *scene.Node
	restored  bool
}

// Check fails if any baked mesh already has a map of the kind being baked
// that was not produced by an earlier bake.
func Check(baked []*scene.Node, aoMode bool) error {
	for _, n := range baked {
		for _, m := range n.Mesh.Materials {
			if m == nil {
				continue
			}
			tex, kind := m.LightMap, "light map"
			if aoMode {
				tex, kind = m.AOMap, "ao map"
			}
			if tex != nil && !tex.Baked {
				return &ManualMapError{Mesh: n.Name, Material: m.Name, Map: kind}
			}
		}
	}
	return nil
}

// Apply stages root. baked lists the meshes whose staged material samples
// texture; other non-read-only meshes are staged without a map.
func Apply(root *scene.Node, baked []*scene.Node, texture *scene.Texture, opts Options) (*Stage, error) {
	if err := Check(baked, opts.AOMode); err != nil {
		return nil, err
	}

	s := &Stage{
		root:      root,
		baked:     make(map[*scene.Node]bool, len(baked)),
		opts:      opts,
		log:       logger.Or(opts.Logger, "staging"),
		materials: make(map[*scene.Node][]*scene.Material),
		staged:    make(map[*scene.Material]bool),
		lights:    make(map[*scene.Node]bool),
	}
	for _, n := range baked {
		s.baked[n] = true
	}

	for n := range scene.Meshes(root, false) {
		s.materials[n] = n.Mesh.Materials
		staged := make([]*scene.Material, len(n.Mesh.Materials))
		for i, m := range n.Mesh.Materials {
			if m == nil {
				m = scene.NewMaterial("")
			}
			staged[i] = s.stageMaterial(m, texture, s.baked[n])
		}
		if len(staged) == 0 {
			staged = []*scene.Material{s.stageMaterial(scene.NewMaterial(""), texture, s.baked[n])}
		}
		n.Mesh.Materials = staged
	}

	if opts.AOMode {
		walk(root, func(n *scene.Node) {
			if n.Kind == scene.KindLight {
				s.lights[n] = n.Visible
				n.Visible = false
			}
		})
		s.ambient = scene.NewLightNode("bake ambient", &scene.Light{
			Kind:      scene.LightAmbient,
			Color:     math.Vec3{X: 1, Y: 1, Z: 1},
			Intensity: 1,
		})
		root.Add(s.ambient)
	}

	s.log.Debug("scene staged",
		zap.Int("meshes", len(s.materials)),
		zap.Int("baked", len(baked)),
		zap.Int("lights_hidden", len(s.lights)),
		zap.Bool("ao", opts.AOMode))
	return s, nil
}

// stageMaterial builds the flat diffuse stand-in for m.
func (s *Stage) stageMaterial(m *scene.Material, texture *scene.Texture, baked bool) *scene.Material {
	st := scene.NewMaterial(m.Name)
	st.AlphaTest = m.AlphaTest
	st.AlphaMap = m.AlphaMap
	st.Transparent = m.Transparent
	st.Opacity = m.Opacity
	st.Side = m.Side
	st.Skinning = m.Skinning

	if !s.opts.AOMode {
		st.Color = m.Color
		st.Map = m.Map
		st.VertexColors = m.VertexColors
		st.Emissive = m.Emissive
		st.EmissiveMap = m.EmissiveMap
		st.EmissiveIntensity = m.EmissiveIntensity * s.opts.EmissiveMultiplier
	}

	st.Shininess = 0
	st.ToneMapped = false

	s.staged[st] = true
	if baked && texture != nil {
		if s.opts.AOMode {
			st.AOMap = texture
			st.AOMapIntensity = 1
		} else {
			st.LightMap = texture
			st.LightMapIntensity = s.opts.BounceMultiplier
		}
	}
	return st
}

// Restore puts back the original materials and light visibility.
func (s *Stage) Restore() {
	if s.restored {
		return
	}
	s.restored = true

	for n, orig := range s.materials {
		n.Mesh.Materials = orig
	}
	// A mesh still holding a staged material was not stashed, e.g. it was
	// added to the scene mid-bake with a copied material list.
	walk(s.root, func(n *scene.Node) {
		if n.Kind != scene.KindMesh || n.Mesh == nil {
			return
		}
		for _, m := range n.Mesh.Materials {
			if s.staged[m] {
				s.log.Warn("no stashed materials for staged mesh", zap.String("mesh", n.Name))
				return
			}
		}
	})

	for n, visible := range s.lights {
		n.Visible = visible
	}
	if s.ambient != nil {
		if p := s.ambient.Parent(); p != nil {
			p.Remove(s.ambient)
		}
	}
	s.log.Debug("scene restored", zap.Int("meshes", len(s.materials)))
}

// Assign sets texture as the light map (or AO map) of every baked mesh's
// materials. Call it after Restore.
func Assign(baked []*scene.Node, texture *scene.Texture, aoMode bool) {
	texture.Baked = true
	for _, n := range baked {
		for _, m := range n.Mesh.Materials {
			if m == nil {
				continue
			}
			if aoMode {
				m.AOMap = texture
			} else {
				m.LightMap = texture
			}
		}
	}
}

// walk visits every node under root, visible or not.
func walk(n *scene.Node, fn func(*scene.Node)) {
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}
