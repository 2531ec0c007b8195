package scene

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/lightbake/pkg/math"
)

// sceneFile is the YAML scene description read by the bake CLI.
type sceneFile struct {
	Materials []materialFile `yaml:"materials"`
	Nodes     []nodeFile     `yaml:"nodes"`
}

type materialFile struct {
	Name              string      `yaml:"name"`
	Color             *[3]float32 `yaml:"color"`
	Emissive          [3]float32  `yaml:"emissive"`
	EmissiveIntensity *float32    `yaml:"emissive_intensity"`
	Opacity           *float32    `yaml:"opacity"`
	Transparent       bool        `yaml:"transparent"`
	AlphaTest         float32     `yaml:"alpha_test"`
	Side              string      `yaml:"side"`
	Shininess         *float32    `yaml:"shininess"`
	VertexColors      bool        `yaml:"vertex_colors"`

	// Image paths, relative to the scene file.
	Map         string `yaml:"map"`
	AlphaMap    string `yaml:"alpha_map"`
	EmissiveMap string `yaml:"emissive_map"`
	LightMap    string `yaml:"light_map"`
	AOMap       string `yaml:"ao_map"`
	Filter      string `yaml:"filter"`
}

type nodeFile struct {
	Name      string      `yaml:"name"`
	Position  [3]float32  `yaml:"position"`
	Rotation  [3]float32  `yaml:"rotation"` // Euler degrees, XYZ order
	Scale     *[3]float32 `yaml:"scale"`
	Visible   *bool       `yaml:"visible"`
	Flags     []string    `yaml:"flags"`
	Material  string      `yaml:"material"`
	Materials []string    `yaml:"materials"`

	Plane *struct {
		Size [2]float32 `yaml:"size"`
	} `yaml:"plane"`
	Box *struct {
		Size   [3]float32 `yaml:"size"`
		Inward bool       `yaml:"inward"`
	} `yaml:"box"`
	Mesh  *meshFile  `yaml:"mesh"`
	Light *lightFile `yaml:"light"`

	Children []nodeFile `yaml:"children"`
}

type meshFile struct {
	Positions []float32 `yaml:"positions"`
	Normals   []float32 `yaml:"normals"`
	UV        []float32 `yaml:"uv"`
	UV2       []float32 `yaml:"uv2"`
	Colors    []float32 `yaml:"colors"`
	Index     []uint32  `yaml:"index"`
	Groups    []Group   `yaml:"groups"`
}

type lightFile struct {
	Type      string     `yaml:"type"`
	Color     [3]float32 `yaml:"color"`
	Intensity *float32   `yaml:"intensity"`
	Direction [3]float32 `yaml:"direction"`
	Distance  float32    `yaml:"distance"`
}

// Load reads a YAML scene description and returns its root node.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	return root, nil
}

// Parse builds a scene from YAML. Texture paths resolve against the
// working directory.
func Parse(data []byte) (*Node, error) {
	return parse(data, "")
}

func parse(data []byte, dir string) (*Node, error) {
	var f sceneFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	textures := &textureSet{dir: dir, loaded: make(map[string]*Texture)}
	materials := make(map[string]*Material, len(f.Materials))
	for _, mf := range f.Materials {
		if mf.Name == "" {
			return nil, fmt.Errorf("material without a name")
		}
		m, err := mf.build(textures)
		if err != nil {
			return nil, fmt.Errorf("material %q: %w", mf.Name, err)
		}
		materials[mf.Name] = m
	}

	root := NewGroup("root")
	for i := range f.Nodes {
		n, err := f.Nodes[i].build(materials)
		if err != nil {
			return nil, err
		}
		root.Add(n)
	}
	return root, nil
}

// textureSet loads each image file once.
type textureSet struct {
	dir    string
	loaded map[string]*Texture
}

func (ts *textureSet) get(path string, srgb bool, filter Filter) (*Texture, error) {
	if path == "" {
		return nil, nil
	}
	if !filepath.IsAbs(path) && ts.dir != "" {
		path = filepath.Join(ts.dir, path)
	}
	key := fmt.Sprintf("%s|%t|%d", path, srgb, filter)
	if t, ok := ts.loaded[key]; ok {
		return t, nil
	}
	t, err := LoadTexture(path, srgb)
	if err != nil {
		return nil, err
	}
	t.Filter = filter
	ts.loaded[key] = t
	return t, nil
}

func (mf materialFile) build(textures *textureSet) (*Material, error) {
	m := NewMaterial(mf.Name)
	if mf.Color != nil {
		m.Color = vec3(*mf.Color)
	}
	m.Emissive = vec3(mf.Emissive)
	if mf.EmissiveIntensity != nil {
		m.EmissiveIntensity = *mf.EmissiveIntensity
	}
	if mf.Opacity != nil {
		m.Opacity = *mf.Opacity
	}
	if mf.Shininess != nil {
		m.Shininess = *mf.Shininess
	}
	m.Transparent = mf.Transparent
	m.AlphaTest = mf.AlphaTest
	m.Side = ParseSide(mf.Side)
	m.VertexColors = mf.VertexColors

	filter := ParseFilter(mf.Filter)
	maps := []struct {
		path string
		srgb bool
		dst  **Texture
	}{
		{mf.Map, true, &m.Map},
		{mf.AlphaMap, false, &m.AlphaMap},
		{mf.EmissiveMap, true, &m.EmissiveMap},
		{mf.LightMap, false, &m.LightMap},
		{mf.AOMap, false, &m.AOMap},
	}
	for _, tm := range maps {
		t, err := textures.get(tm.path, tm.srgb, filter)
		if err != nil {
			return nil, err
		}
		*tm.dst = t
	}
	return m, nil
}

func (nf *nodeFile) build(materials map[string]*Material) (*Node, error) {
	var n *Node
	switch {
	case nf.Light != nil:
		light, err := nf.Light.build()
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nf.Name, err)
		}
		n = NewLightNode(nf.Name, light)
	case nf.Plane != nil || nf.Box != nil || nf.Mesh != nil:
		geom, err := nf.geometry()
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nf.Name, err)
		}
		mats, err := nf.lookupMaterials(materials)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nf.Name, err)
		}
		n = NewMeshNode(nf.Name, geom, mats...)
	default:
		n = NewGroup(nf.Name)
	}

	scale := math.Vec3{X: 1, Y: 1, Z: 1}
	if nf.Scale != nil {
		scale = vec3(*nf.Scale)
	}
	rot := math.QuatFromEulerDegrees(nf.Rotation[0], nf.Rotation[1], nf.Rotation[2])
	n.Local = math.Compose(vec3(nf.Position), rot, scale)
	if nf.Visible != nil {
		n.Visible = *nf.Visible
	}

	for _, name := range nf.Flags {
		switch name {
		case "ignore_for_atlas":
			n.Flags |= FlagIgnoreForAtlas
		case "ignore_for_uv2":
			n.Flags |= FlagIgnoreForUV2
		case "read_only":
			n.Flags |= FlagReadOnly
		default:
			return nil, fmt.Errorf("node %q: unknown flag %q", nf.Name, name)
		}
	}

	for i := range nf.Children {
		c, err := nf.Children[i].build(materials)
		if err != nil {
			return nil, err
		}
		n.Add(c)
	}
	return n, nil
}

func (nf *nodeFile) geometry() (*Geometry, error) {
	switch {
	case nf.Plane != nil:
		return Plane(nf.Plane.Size[0], nf.Plane.Size[1]), nil
	case nf.Box != nil:
		s := nf.Box.Size
		return Box(s[0], s[1], s[2], nf.Box.Inward), nil
	}
	m := nf.Mesh
	g := &Geometry{
		Positions: m.Positions,
		Normals:   m.Normals,
		UV:        m.UV,
		UV2:       m.UV2,
		Colors:    m.Colors,
		Index:     m.Index,
		Groups:    m.Groups,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (nf *nodeFile) lookupMaterials(materials map[string]*Material) ([]*Material, error) {
	names := nf.Materials
	if nf.Material != "" {
		names = append([]string{nf.Material}, names...)
	}
	if len(names) == 0 {
		return []*Material{NewMaterial("default")}, nil
	}
	out := make([]*Material, 0, len(names))
	for _, name := range names {
		m, ok := materials[name]
		if !ok {
			return nil, fmt.Errorf("unknown material %q", name)
		}
		// Each mesh gets its own instance so staging can swap them independently.
		out = append(out, m.Clone())
	}
	return out, nil
}

func (lf *lightFile) build() (*Light, error) {
	kind, ok := ParseLightKind(lf.Type)
	if !ok {
		return nil, fmt.Errorf("unknown light type %q", lf.Type)
	}
	l := &Light{
		Kind:      kind,
		Color:     vec3(lf.Color),
		Intensity: 1,
		Direction: vec3(lf.Direction),
		Distance:  lf.Distance,
	}
	if l.Color == (math.Vec3{}) {
		l.Color = math.Vec3{X: 1, Y: 1, Z: 1}
	}
	if lf.Intensity != nil {
		l.Intensity = *lf.Intensity
	}
	if kind == LightDirectional && l.Direction == (math.Vec3{}) {
		l.Direction = math.Vec3{Y: -1}
	}
	return l, nil
}

func vec3(a [3]float32) math.Vec3 {
	return math.Vec3{X: a[0], Y: a[1], Z: a[2]}
}
