package config

import "flag"

// Flags is the shared flag set of every casttool command.
var Flags = flag.NewFlagSet("casttool", flag.ExitOnError)

var (
	flagConfig        = Flags.String("config", "", "Path to config file")
	flagDebug         = Flags.Bool("debug", false, "Enable debug logging")
	flagScaleUnit     = Flags.String("scale-unit", "", "Source unit: meters, inches, centimeters")
	flagScale         = Flags.Float64("scale", 0, "Scale multiplier applied on top of the unit")
	flagRecalcNormals = Flags.Bool("recalc-normals", false, "Recompute normals from faces")
	flagLightmapUVs   = Flags.Bool("lightmap-uvs", false, "Generate a lightmap UV layer")
	flagOptimize      = Flags.String("optimize", "", "Mesh optimization: none, polygonOrder, vertexOrder, everything")
	flagRig           = Flags.String("rig", "", "Rig type: generic, humanoid, legacy")
	flagSkeleton      = Flags.String("skeleton", "", "Cast file whose first skeleton drives every animation")
	flagOutput        = Flags.String("o", "", "Output file")
	flagFormat        = Flags.String("format", "", "Output format: glb or gltf")
	flagWorkers       = Flags.Int("workers", 0, "Parallel workers (0 = all CPUs)")
)

// ParseFlags parses command-line flags and returns the remaining arguments.
func ParseFlags(args []string) ([]string, error) {
	if err := Flags.Parse(args); err != nil {
		return nil, err
	}
	return Flags.Args(), nil
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagScaleUnit != "" {
		cfg.Import.ScaleUnit = *flagScaleUnit
	}
	if *flagScale > 0 {
		cfg.Import.ScaleMultiplier = float32(*flagScale)
	}
	if *flagRecalcNormals {
		cfg.Import.RecalculateNormals = true
	}
	if *flagLightmapUVs {
		cfg.Import.GenerateLightmapUVs = true
	}
	if *flagOptimize != "" {
		cfg.Import.OptimizeMesh = *flagOptimize
	}
	if *flagRig != "" {
		cfg.Import.RigType = *flagRig
	}
	if *flagSkeleton != "" {
		cfg.Import.ExternalSkeleton = *flagSkeleton
	}
	if *flagOutput != "" {
		cfg.Export.Output = *flagOutput
	}
	if *flagFormat != "" {
		cfg.Export.Format = *flagFormat
	}
	if *flagWorkers > 0 {
		cfg.Import.Workers = *flagWorkers
	}
}
