package scene

import "github.com/Faultbox/lightbake/pkg/math"

// LightKind identifies a light model.
type LightKind uint8

const (
	LightAmbient LightKind = iota
	LightDirectional
	LightPoint
)

// ParseLightKind converts a config string to a LightKind.
func ParseLightKind(s string) (LightKind, bool) {
	switch s {
	case "ambient":
		return LightAmbient, true
	case "directional", "sun":
		return LightDirectional, true
	case "point":
		return LightPoint, true
	}
	return 0, false
}

// Light is a light source. Directional lights shine along Direction
// (node-local); point lights sit at the node origin.
type Light struct {
	Kind      LightKind
	Color     math.Vec3
	Intensity float32
	Direction math.Vec3
	// Distance is the point light cutoff range; 0 means unlimited.
	Distance float32
}

// Radiance returns Color * Intensity.
func (l *Light) Radiance() math.Vec3 {
	return l.Color.Scale(l.Intensity)
}
