package config

import "flag"

var (
	flagConfig        = flag.String("config", "", "Path to config file")
	flagDebug         = flag.Bool("debug", false, "Enable debug logging")
	flagScene         = flag.String("scene", "", "Scene description to bake")
	flagOut           = flag.String("out", "", "Output image path")
	flagFormat        = flag.String("format", "", "Output format: png, png16 or tiff")
	flagAO            = flag.Bool("ao", false, "Bake ambient occlusion instead of light")
	flagAODistance    = flag.Float64("ao-distance", 0, "AO sampling distance")
	flagTexelsPerUnit = flag.Float64("texels-per-unit", 0, "Atlas texel density")
	flagSize          = flag.String("size", "", "Fixed atlas size, e.g. 512 or 512x256")
	flagBackend       = flag.String("backend", "", "Render backend: software or gl")
	flagDebugDir      = flag.String("debug-dir", "", "Directory for atlas map and pass images")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) error {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagScene != "" {
		cfg.Scene.Path = *flagScene
	}
	if *flagOut != "" {
		cfg.Output.Path = *flagOut
	}
	if *flagFormat != "" {
		cfg.Output.Format = *flagFormat
	}
	if *flagAO {
		cfg.Bake.AOMode = true
	}
	if *flagAODistance > 0 {
		cfg.Bake.AODistance = float32(*flagAODistance)
	}
	if *flagTexelsPerUnit > 0 {
		cfg.Bake.TexelsPerUnit = float32(*flagTexelsPerUnit)
	}
	if *flagSize != "" {
		size, err := ParseSize(*flagSize)
		if err != nil {
			return err
		}
		cfg.Bake.LightMapSize = size
	}
	if *flagBackend != "" {
		cfg.Render.Backend = *flagBackend
	}
	if *flagDebugDir != "" {
		cfg.Output.DebugDir = *flagDebugDir
	}
	return nil
}
