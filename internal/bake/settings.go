package bake

import (
	"fmt"

	"github.com/Faultbox/lightbake/internal/probe"
	"github.com/Faultbox/lightbake/internal/scene"
)

// Passes is the number of bounce passes: direct light, then one bounce.
const Passes = 2

// Settings configures one bake.
type Settings struct {
	AOMode     bool
	AODistance float32
	// EmissiveMultiplier scales emissive surfaces so small emitters can
	// light their surroundings.
	EmissiveMultiplier float32
	BounceMultiplier   float32
	// LightMapWidth and LightMapHeight fix the atlas size; zero means
	// automatic.
	LightMapWidth  int
	LightMapHeight int
	TextureFilter  scene.Filter
	TexelsPerUnit  float32
	Sampler        probe.Settings
}

// DefaultSettings returns the lightmap-mode defaults.
func DefaultSettings() Settings {
	return Settings{
		AODistance:         3,
		EmissiveMultiplier: 32,
		BounceMultiplier:   1,
		TextureFilter:      scene.FilterLinear,
		TexelsPerUnit:      2,
		Sampler:            probe.DefaultSettings(),
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if s.TexelsPerUnit <= 0 {
		return fmt.Errorf("bake: texels per unit must be positive, got %g", s.TexelsPerUnit)
	}
	if s.LightMapWidth < 0 || s.LightMapHeight < 0 || (s.LightMapWidth == 0) != (s.LightMapHeight == 0) {
		return fmt.Errorf("bake: light map size %dx%d must be both zero or both positive", s.LightMapWidth, s.LightMapHeight)
	}
	if s.AOMode && s.AODistance <= 0 {
		return fmt.Errorf("bake: ao distance must be positive, got %g", s.AODistance)
	}
	if s.EmissiveMultiplier < 0 || s.BounceMultiplier < 0 {
		return fmt.Errorf("bake: multipliers must not be negative")
	}
	return s.Sampler.Validate()
}
