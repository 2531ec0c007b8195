// Package config handles baker configuration loading and management.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/lightbake/internal/bake"
	"github.com/Faultbox/lightbake/internal/probe"
	"github.com/Faultbox/lightbake/internal/scene"
)

// Config holds all baker settings.
type Config struct {
	Bake    BakeConfig    `yaml:"bake"`
	Sampler SamplerConfig `yaml:"sampler"`
	Render  RenderConfig  `yaml:"render"`
	Output  OutputConfig  `yaml:"output"`
	Scene   SceneConfig   `yaml:"scene"`
	Logging LoggingConfig `yaml:"logging"`
}

// BakeConfig holds the bake policy.
type BakeConfig struct {
	AOMode             bool    `yaml:"ao_mode"`
	AODistance         float32 `yaml:"ao_distance"`
	EmissiveMultiplier float32 `yaml:"emissive_multiplier"`
	BounceMultiplier   float32 `yaml:"bounce_multiplier"`
	LightMapSize       Size    `yaml:"light_map_size"`
	TextureFilter      string  `yaml:"texture_filter"`
	TexelsPerUnit      float32 `yaml:"texels_per_unit"`
}

// SamplerConfig holds the hemicube probe settings.
type SamplerConfig struct {
	TargetSize int     `yaml:"target_size"`
	Offset     float32 `yaml:"offset"`
	Near       float32 `yaml:"near"`
	Far        float32 `yaml:"far"`
}

// RenderConfig selects the render backend.
type RenderConfig struct {
	Backend      string       `yaml:"backend"` // software or gl
	JobsPerFrame int          `yaml:"jobs_per_frame"`
	Window       WindowConfig `yaml:"window"`
}

// WindowConfig holds the GL backend window settings.
type WindowConfig struct {
	Width   int  `yaml:"width"`
	Height  int  `yaml:"height"`
	Visible bool `yaml:"visible"`
	VSync   bool `yaml:"vsync"`
}

// OutputConfig holds where and how the result is written.
type OutputConfig struct {
	Path     string `yaml:"path"`
	Format   string `yaml:"format"` // png, png16 or tiff
	SRGB     bool   `yaml:"srgb"`
	DebugDir string `yaml:"debug_dir"`
}

// SceneConfig holds the scene description path.
type SceneConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Size is an atlas size. In YAML it is a scalar for square sizes or a
// [width, height] pair; zero means automatic.
type Size struct {
	W, H int
}

// UnmarshalYAML accepts 512 or [512, 256].
func (s *Size) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var v int
		if err := n.Decode(&v); err != nil {
			return err
		}
		s.W, s.H = v, v
		return nil
	case yaml.SequenceNode:
		var v []int
		if err := n.Decode(&v); err != nil {
			return err
		}
		if len(v) != 2 {
			return fmt.Errorf("line %d: light_map_size needs 2 values, got %d", n.Line, len(v))
		}
		s.W, s.H = v[0], v[1]
		return nil
	}
	return fmt.Errorf("line %d: light_map_size must be a number or [width, height]", n.Line)
}

// MarshalYAML writes square sizes as a scalar.
func (s Size) MarshalYAML() (any, error) {
	if s.W == s.H {
		return s.W, nil
	}
	return []int{s.W, s.H}, nil
}

// ParseSize parses "512" or "512x256".
func ParseSize(v string) (Size, error) {
	w, h, found := strings.Cut(strings.ToLower(v), "x")
	wi, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q", v)
	}
	if !found {
		return Size{W: wi, H: wi}, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return Size{}, fmt.Errorf("invalid size %q", v)
	}
	return Size{W: wi, H: hi}, nil
}

// Default returns a Config with sensible default values.
func Default() *Config {
	b := bake.DefaultSettings()
	return &Config{
		Bake: BakeConfig{
			AOMode:             false,
			AODistance:         b.AODistance,
			EmissiveMultiplier: b.EmissiveMultiplier,
			BounceMultiplier:   b.BounceMultiplier,
			TextureFilter:      "linear",
			TexelsPerUnit:      b.TexelsPerUnit,
		},
		Sampler: SamplerConfig{
			TargetSize: b.Sampler.TargetSize,
			Offset:     b.Sampler.Offset,
			Near:       b.Sampler.Near,
			Far:        b.Sampler.Far,
		},
		Render: RenderConfig{
			Backend:      "software",
			JobsPerFrame: 4,
			Window: WindowConfig{
				Width:  640,
				Height: 480,
				VSync:  false,
			},
		},
		Output: OutputConfig{
			Path:   "lightmap.png",
			Format: "png",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks values that cannot be checked by the bake itself.
func (c *Config) Validate() error {
	switch c.Render.Backend {
	case "software", "gl":
	default:
		return fmt.Errorf("render.backend must be software or gl, got %q", c.Render.Backend)
	}
	switch c.Output.Format {
	case "png", "png16", "tiff":
	default:
		return fmt.Errorf("output.format must be png, png16 or tiff, got %q", c.Output.Format)
	}
	if c.Bake.LightMapSize.W < 0 || c.Bake.LightMapSize.H < 0 {
		return fmt.Errorf("bake.light_map_size must not be negative")
	}
	return c.BakeSettings().Validate()
}

// BakeSettings converts the bake and sampler sections.
func (c *Config) BakeSettings() bake.Settings {
	return bake.Settings{
		AOMode:             c.Bake.AOMode,
		AODistance:         c.Bake.AODistance,
		EmissiveMultiplier: c.Bake.EmissiveMultiplier,
		BounceMultiplier:   c.Bake.BounceMultiplier,
		LightMapWidth:      c.Bake.LightMapSize.W,
		LightMapHeight:     c.Bake.LightMapSize.H,
		TextureFilter:      scene.ParseFilter(c.Bake.TextureFilter),
		TexelsPerUnit:      c.Bake.TexelsPerUnit,
		Sampler: probe.Settings{
			TargetSize: c.Sampler.TargetSize,
			Offset:     c.Sampler.Offset,
			Near:       c.Sampler.Near,
			Far:        c.Sampler.Far,
		},
	}
}
