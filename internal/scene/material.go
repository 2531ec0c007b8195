package scene

import "github.com/Faultbox/lightbake/pkg/math"

// Side selects which triangle faces are rendered.
type Side uint8

const (
	SideFront Side = iota
	SideBack
	SideDouble
)

// ParseSide converts a config string to a Side; unknown values mean front.
func ParseSide(s string) Side {
	switch s {
	case "back":
		return SideBack
	case "double", "both":
		return SideDouble
	default:
		return SideFront
	}
}

// Material describes how a surface responds to light. The renderer treats
// every material as Lambert diffuse plus an optional Blinn term scaled by
// Shininess.
type Material struct {
	Name string

	Color        math.Vec3
	Map          *Texture
	VertexColors bool

	Emissive          math.Vec3
	EmissiveIntensity float32
	EmissiveMap       *Texture

	AlphaTest   float32
	AlphaMap    *Texture
	Transparent bool
	Opacity     float32
	Side        Side
	Skinning    bool

	Shininess  float32
	ToneMapped bool

	LightMap          *Texture
	LightMapIntensity float32
	AOMap             *Texture
	AOMapIntensity    float32
}

// NewMaterial returns a white, opaque, front-sided material.
func NewMaterial(name string) *Material {
	return &Material{
		Name:              name,
		Color:             math.Vec3{X: 1, Y: 1, Z: 1},
		EmissiveIntensity: 1,
		Opacity:           1,
		Shininess:         30,
		ToneMapped:        true,
		LightMapIntensity: 1,
		AOMapIntensity:    1,
	}
}

// Clone returns a shallow copy; textures are shared.
func (m *Material) Clone() *Material {
	c := *m
	return &c
}
