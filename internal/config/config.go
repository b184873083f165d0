// Package config handles importer configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/cast-importer/internal/engine/model"
	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
	"github.com/Faultbox/cast-importer/internal/export"
	"github.com/Faultbox/cast-importer/internal/importer"
	"github.com/Faultbox/cast-importer/internal/logger"
)

// ErrInvalid reports a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all importer settings.
type Config struct {
	Import  ImportConfig  `yaml:"import"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// ImportConfig holds scene reconstruction settings.
type ImportConfig struct {
	ScaleUnit           string  `yaml:"scale_unit"` // meters, inches, centimeters
	ScaleMultiplier     float32 `yaml:"scale_multiplier"`
	GenerateLightmapUVs bool    `yaml:"generate_lightmap_uvs"`
	RecalculateNormals  bool    `yaml:"recalculate_normals"`
	OptimizeMesh        string  `yaml:"optimize_mesh"` // none, polygonOrder, vertexOrder, everything
	RigType             string  `yaml:"rig_type"`      // generic, humanoid, legacy
	ExternalSkeleton    string  `yaml:"external_skeleton"`
	Workers             int     `yaml:"workers"` // 0 uses every CPU
}

// ExportConfig holds output settings.
type ExportConfig struct {
	Output string `yaml:"output"` // Empty derives the path from the input
	Format string `yaml:"format"` // glb or gltf
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Import: ImportConfig{
			ScaleUnit:       "meters",
			ScaleMultiplier: 1,
			OptimizeMesh:    "everything",
			RigType:         "generic",
		},
		Export: ExportConfig{
			Format: "glb",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks every enumerated value and numeric range.
func (c *Config) Validate() error {
	if _, err := c.Settings(); err != nil {
		return err
	}
	if c.Import.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalid, c.Import.Workers)
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		return fmt.Errorf("%w: export.format: %w", ErrInvalid, err)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalid, err)
	}
	return nil
}

// Settings converts the import section into importer settings. The
// external skeleton path is left to the caller, who owns file loading.
func (c *Config) Settings() (importer.Settings, error) {
	s := importer.DefaultSettings()

	unit, err := importer.ParseScaleUnit(c.Import.ScaleUnit)
	if err != nil {
		return s, fmt.Errorf("%w: import.scale_unit: %w", ErrInvalid, err)
	}
	if c.Import.ScaleMultiplier <= 0 {
		return s, fmt.Errorf("%w: import.scale_multiplier must be positive, got %v",
			ErrInvalid, c.Import.ScaleMultiplier)
	}
	opt, err := model.ParseOptimizeFlags(c.Import.OptimizeMesh)
	if err != nil {
		return s, fmt.Errorf("%w: import.optimize_mesh: %w", ErrInvalid, err)
	}
	rig, err := skeleton.ParseRigType(c.Import.RigType)
	if err != nil {
		return s, fmt.Errorf("%w: import.rig_type: %w", ErrInvalid, err)
	}

	s.ScaleUnit = unit
	s.ScaleMultiplier = c.Import.ScaleMultiplier
	s.GenerateLightmapUVs = c.Import.GenerateLightmapUVs
	s.RecalculateNormals = c.Import.RecalculateNormals
	s.Optimize = opt
	s.Rig = rig
	return s, nil
}
