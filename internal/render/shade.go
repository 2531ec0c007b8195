package render

import (
	gomath "math"

	"github.com/Faultbox/lightbake/internal/scene"
	"github.com/Faultbox/lightbake/pkg/math"
)

// LightSet is the per-frame light list gathered from a scene, in world space.
type LightSet struct {
	Ambient     math.Vec3
	Directional []DirectionalLight
	Point       []PointLight
}

// DirectionalLight shines along Direction.
type DirectionalLight struct {
	Direction math.Vec3
	Radiance  math.Vec3
}

// PointLight sits at Position with an optional cutoff Distance.
type PointLight struct {
	Position math.Vec3
	Radiance math.Vec3
	Distance float32
}

// CollectLights gathers the visible lights under root.
func CollectLights(root *scene.Node) LightSet {
	var ls LightSet
	for n := range scene.Lights(root) {
		l := n.Light
		switch l.Kind {
		case scene.LightAmbient:
			ls.Ambient = ls.Ambient.Add(l.Radiance())
		case scene.LightDirectional:
			dir := n.WorldMatrix().TransformDirection(l.Direction).Normalize()
			ls.Directional = append(ls.Directional, DirectionalLight{Direction: dir, Radiance: l.Radiance()})
		case scene.LightPoint:
			pos := n.WorldMatrix().TransformPoint(math.Vec3{})
			ls.Point = append(ls.Point, PointLight{Position: pos, Radiance: l.Radiance(), Distance: l.Distance})
		}
	}
	return ls
}

// Surface is the interpolated state of one fragment.
type Surface struct {
	Position math.Vec3
	Normal   math.Vec3
	UV       [2]float32
	UV2      [2]float32
	Color    math.Vec3 // vertex color, white without vertex colors
}

// ShadeFragment evaluates material m at surface s and returns linear RGB and
// alpha. It reports false when the fragment is discarded by the alpha test.
// Both render backends implement this model; the GL backend mirrors it in GLSL.
func ShadeFragment(m *scene.Material, s Surface, lights *LightSet, eye math.Vec3) (math.Vec3, float32, bool) {
	diffuse := m.Color
	if m.VertexColors {
		diffuse = diffuse.Mul(s.Color)
	}
	alpha := m.Opacity
	if m.Map != nil {
		t := m.Map.Sample(s.UV[0], s.UV[1])
		diffuse = diffuse.Mul(math.Vec3{X: t[0], Y: t[1], Z: t[2]})
		alpha *= t[3]
	}
	if m.AlphaMap != nil {
		alpha *= m.AlphaMap.Sample(s.UV[0], s.UV[1])[1]
	}
	if m.AlphaTest > 0 && alpha < m.AlphaTest {
		return math.Vec3{}, 0, false
	}

	n := s.Normal.Normalize()
	var direct, specular math.Vec3
	viewDir := eye.Sub(s.Position).Normalize()
	addLight := func(toLight math.Vec3, radiance math.Vec3) {
		ndl := n.Dot(toLight)
		if ndl <= 0 {
			return
		}
		direct = direct.Add(radiance.Scale(ndl))
		if m.Shininess > 0 {
			h := toLight.Add(viewDir).Normalize()
			if ndh := n.Dot(h); ndh > 0 {
				spec := float32(gomath.Pow(float64(ndh), float64(m.Shininess))) * 0.04
				specular = specular.Add(radiance.Scale(spec * ndl))
			}
		}
	}
	for _, d := range lights.Directional {
		addLight(d.Direction.Negate(), d.Radiance)
	}
	for _, p := range lights.Point {
		delta := p.Position.Sub(s.Position)
		dist := delta.Length()
		if dist == 0 || (p.Distance > 0 && dist > p.Distance) {
			continue
		}
		atten := float32(1)
		if p.Distance > 0 {
			f := 1 - dist/p.Distance
			atten = f * f
		}
		addLight(delta.Scale(1/dist), p.Radiance.Scale(atten))
	}

	indirect := lights.Ambient
	if m.LightMap != nil {
		t := m.LightMap.Sample(s.UV2[0], s.UV2[1])
		indirect = indirect.Add(math.Vec3{X: t[0], Y: t[1], Z: t[2]}.Scale(m.LightMapIntensity))
	}
	if m.AOMap != nil {
		ao := (m.AOMap.Sample(s.UV2[0], s.UV2[1])[0]-1)*m.AOMapIntensity + 1
		indirect = indirect.Scale(ao)
	}

	color := diffuse.Mul(direct.Add(indirect)).Add(specular)
	emissive := m.Emissive.Scale(m.EmissiveIntensity)
	if m.EmissiveMap != nil {
		t := m.EmissiveMap.Sample(s.UV[0], s.UV[1])
		emissive = emissive.Mul(math.Vec3{X: t[0], Y: t[1], Z: t[2]})
	}
	return color.Add(emissive), alpha, true
}

// ToneMap applies the tone curve to linear RGB.
func ToneMap(t ToneMapping, c math.Vec3, materialToneMapped bool) math.Vec3 {
	if t == ToneMappingLinear || !materialToneMapped {
		return c
	}
	return math.Vec3{X: aces(c.X), Y: aces(c.Y), Z: aces(c.Z)}
}

// aces is the Narkowicz fit of the ACES filmic curve.
func aces(x float32) float32 {
	const a, b, c, d, e = 2.51, 0.03, 2.43, 0.59, 0.14
	v := (x * (a*x + b)) / (x*(c*x+d) + e)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
