package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/lightbake/internal/scene"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test bake defaults
	if cfg.Bake.AOMode {
		t.Error("expected ao_mode to be false by default")
	}
	if cfg.Bake.EmissiveMultiplier != 32 {
		t.Errorf("expected emissive multiplier 32, got %f", cfg.Bake.EmissiveMultiplier)
	}
	if cfg.Bake.LightMapSize != (Size{}) {
		t.Errorf("expected automatic light map size, got %v", cfg.Bake.LightMapSize)
	}

	// Test sampler defaults
	if cfg.Sampler.TargetSize != 16 {
		t.Errorf("expected target size 16, got %d", cfg.Sampler.TargetSize)
	}

	// Test render defaults
	if cfg.Render.Backend != "software" {
		t.Errorf("expected software backend, got %s", cfg.Render.Backend)
	}
	if cfg.Render.Window.Visible {
		t.Error("expected hidden window by default")
	}

	// Test output defaults
	if cfg.Output.Format != "png" {
		t.Errorf("expected png format, got %s", cfg.Output.Format)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "lightbake.yaml")

	yamlContent := `
bake:
  ao_mode: true
  ao_distance: 5
  light_map_size: [256, 128]
  texture_filter: nearest
  texels_per_unit: 8

sampler:
  target_size: 32
  near: 0.01
  far: 20

render:
  backend: gl
  jobs_per_frame: 2
  window:
    visible: true

output:
  path: "out/ao.tiff"
  format: tiff
  debug_dir: "out/debug"

scene:
  path: "room.yaml"

logging:
  level: "debug"
  log_file: "bake.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Load config
	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Verify values were loaded
	if !cfg.Bake.AOMode {
		t.Error("expected ao_mode to be true")
	}
	if cfg.Bake.LightMapSize != (Size{W: 256, H: 128}) {
		t.Errorf("expected size 256x128, got %v", cfg.Bake.LightMapSize)
	}
	if cfg.Bake.TexelsPerUnit != 8 {
		t.Errorf("expected texels per unit 8, got %f", cfg.Bake.TexelsPerUnit)
	}
	// Unset keys keep their defaults
	if cfg.Bake.EmissiveMultiplier != 32 {
		t.Errorf("expected default emissive multiplier, got %f", cfg.Bake.EmissiveMultiplier)
	}
	if cfg.Sampler.TargetSize != 32 {
		t.Errorf("expected target size 32, got %d", cfg.Sampler.TargetSize)
	}
	if cfg.Render.Backend != "gl" {
		t.Errorf("expected gl backend, got %s", cfg.Render.Backend)
	}
	if !cfg.Render.Window.Visible {
		t.Error("expected visible window")
	}
	if cfg.Output.Format != "tiff" {
		t.Errorf("expected tiff format, got %s", cfg.Output.Format)
	}
	if cfg.Scene.Path != "room.yaml" {
		t.Errorf("expected scene room.yaml, got %s", cfg.Scene.Path)
	}
	if cfg.Logging.LogFile != "bake.log" {
		t.Errorf("expected log file 'bake.log', got %s", cfg.Logging.LogFile)
	}

	s := cfg.BakeSettings()
	if s.LightMapWidth != 256 || s.LightMapHeight != 128 {
		t.Errorf("expected bake settings size 256x128, got %dx%d", s.LightMapWidth, s.LightMapHeight)
	}
	if s.TextureFilter != scene.FilterNearest {
		t.Errorf("expected nearest filter, got %v", s.TextureFilter)
	}
	if s.Sampler.Far != 20 {
		t.Errorf("expected sampler far 20, got %f", s.Sampler.Far)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestSizeYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Size
		wantErr bool
	}{
		{"scalar", "light_map_size: 512", Size{512, 512}, false},
		{"pair", "light_map_size: [64, 32]", Size{64, 32}, false},
		{"short pair", "light_map_size: [64]", Size{}, true},
		{"mapping", "light_map_size: {w: 1}", Size{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b BakeConfig
			err := yaml.Unmarshal([]byte(tt.input), &b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if !tt.wantErr && b.LightMapSize != tt.want {
				t.Errorf("expected %v, got %v", tt.want, b.LightMapSize)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    Size
		wantErr bool
	}{
		{"512", Size{512, 512}, false},
		{"512x256", Size{512, 256}, false},
		{"64X32", Size{64, 32}, false},
		{"big", Size{}, true},
		{"64x", Size{}, true},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSize(%q): unexpected error state: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Render.Backend = "vulkan" }},
		{"unknown format", func(c *Config) { c.Output.Format = "jpeg" }},
		{"half size", func(c *Config) { c.Bake.LightMapSize = Size{W: 64} }},
		{"negative size", func(c *Config) { c.Bake.LightMapSize = Size{-1, -1} }},
		{"odd sampler size", func(c *Config) { c.Sampler.TargetSize = 15 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	// Create temporary config file with invalid YAML
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
bake:
  texels_per_unit: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Try to load - should error
	cfg := Default()
	err := loadFromFile(cfg, configPath)
	if err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	err := loadFromFile(cfg, "/nonexistent/path/lightbake.yaml")
	if err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}

	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	// No config file exists - should return empty
	path := findConfigFile()
	if path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile("lightbake.yaml", []byte("bake:\n  ao_mode: true\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	path = findConfigFile()
	if path == "" {
		t.Error("expected to find lightbake.yaml in current directory")
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lightbake.yaml")

	cfg := Default()
	cfg.Bake.LightMapSize = Size{W: 128, H: 64}
	cfg.Scene.Path = "room.yaml"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if loaded.Bake.LightMapSize != cfg.Bake.LightMapSize {
		t.Errorf("expected size %v after reload, got %v", cfg.Bake.LightMapSize, loaded.Bake.LightMapSize)
	}
	if loaded.Scene.Path != "room.yaml" {
		t.Errorf("expected scene path after reload, got %s", loaded.Scene.Path)
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*Config)
		teardown func()
	}{
		{
			name: "debug flag",
			setup: func() {
				*flagDebug = true
			},
			verify: func(cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() {
				*flagDebug = false
			},
		},
		{
			name: "ao flags",
			setup: func() {
				*flagAO = true
				*flagAODistance = 7
			},
			verify: func(cfg *Config) {
				if !cfg.Bake.AOMode {
					t.Error("expected ao_mode with ao flag")
				}
				if cfg.Bake.AODistance != 7 {
					t.Errorf("expected ao distance 7, got %f", cfg.Bake.AODistance)
				}
			},
			teardown: func() {
				*flagAO = false
				*flagAODistance = 0
			},
		},
		{
			name: "size flag",
			setup: func() {
				*flagSize = "256x64"
			},
			verify: func(cfg *Config) {
				if cfg.Bake.LightMapSize != (Size{256, 64}) {
					t.Errorf("expected size 256x64, got %v", cfg.Bake.LightMapSize)
				}
			},
			teardown: func() {
				*flagSize = ""
			},
		},
		{
			name: "output flags",
			setup: func() {
				*flagOut = "lm.png"
				*flagFormat = "png16"
				*flagDebugDir = "dbg"
				*flagScene = "scene.yaml"
				*flagBackend = "gl"
				*flagTexelsPerUnit = 16
			},
			verify: func(cfg *Config) {
				if cfg.Output.Path != "lm.png" || cfg.Output.Format != "png16" || cfg.Output.DebugDir != "dbg" {
					t.Errorf("unexpected output section %+v", cfg.Output)
				}
				if cfg.Scene.Path != "scene.yaml" {
					t.Errorf("expected scene path from flag, got %s", cfg.Scene.Path)
				}
				if cfg.Render.Backend != "gl" {
					t.Errorf("expected gl backend, got %s", cfg.Render.Backend)
				}
				if cfg.Bake.TexelsPerUnit != 16 {
					t.Errorf("expected texels per unit 16, got %f", cfg.Bake.TexelsPerUnit)
				}
			},
			teardown: func() {
				*flagOut = ""
				*flagFormat = ""
				*flagDebugDir = ""
				*flagScene = ""
				*flagBackend = ""
				*flagTexelsPerUnit = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			if err := applyFlags(cfg); err != nil {
				t.Fatalf("applyFlags: %v", err)
			}

			tt.verify(cfg)
		})
	}
}

func TestApplyFlagsBadSize(t *testing.T) {
	*flagSize = "huge"
	defer func() { *flagSize = "" }()

	if err := applyFlags(Default()); err == nil {
		t.Error("expected error for malformed size flag")
	}
}

func TestLoadPriority(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "lightbake.yaml")

	yamlContent := `
bake:
  texels_per_unit: 4
  bounce_multiplier: 0.5
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Set flag to override config file
	*flagConfig = configPath
	*flagTexelsPerUnit = 10
	defer func() {
		*flagConfig = ""
		*flagTexelsPerUnit = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Density should be from flag (10), not file (4)
	if cfg.Bake.TexelsPerUnit != 10 {
		t.Errorf("expected texels per unit 10 from flag, got %f", cfg.Bake.TexelsPerUnit)
	}

	// Bounce should be from file since no flag override
	if cfg.Bake.BounceMultiplier != 0.5 {
		t.Errorf("expected bounce multiplier 0.5 from file, got %f", cfg.Bake.BounceMultiplier)
	}
}
