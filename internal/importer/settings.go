package importer

import (
	"fmt"
	"strings"

	"github.com/Faultbox/cast-importer/internal/engine/model"
	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
)

// ScaleUnit is the unit the source asset was authored in.
type ScaleUnit int

const (
	Meters ScaleUnit = iota
	Inches
	Centimeters
)

// Base returns the factor converting one unit to meters.
func (u ScaleUnit) Base() float32 {
	switch u {
	case Inches:
		return 1 / 39.3701
	case Centimeters:
		return 1.0 / 100
	default:
		return 1
	}
}

// String returns the configuration name of the unit.
func (u ScaleUnit) String() string {
	switch u {
	case Meters:
		return "meters"
	case Inches:
		return "inches"
	case Centimeters:
		return "centimeters"
	default:
		return fmt.Sprintf("ScaleUnit(%d)", int(u))
	}
}

// ParseScaleUnit parses a configuration name, case-insensitively.
func ParseScaleUnit(s string) (ScaleUnit, error) {
	switch strings.ToLower(s) {
	case "meters", "meter", "m", "":
		return Meters, nil
	case "inches", "inch", "in":
		return Inches, nil
	case "centimeters", "centimeter", "cm":
		return Centimeters, nil
	default:
		return 0, fmt.Errorf("unknown scale unit %q", s)
	}
}

// Settings is the flat option set of one import.
type Settings struct {
	ScaleUnit           ScaleUnit
	ScaleMultiplier     float32
	GenerateLightmapUVs bool
	RecalculateNormals  bool
	Optimize            model.OptimizeFlags
	Rig                 skeleton.RigType

	// ExternalSkeleton, when set, is the target of every animation.
	// Otherwise animations bind to the first model skeleton of their root.
	ExternalSkeleton *skeleton.Skeleton

	// SourceName names models and clips that have no name of their own,
	// usually the file name without extension.
	SourceName string
}

// DefaultSettings returns settings for a meter-scale generic import.
func DefaultSettings() Settings {
	return Settings{
		ScaleUnit:       Meters,
		ScaleMultiplier: 1,
		Rig:             skeleton.RigGeneric,
	}
}

// TotalScale returns the unit base scale times the multiplier.
func (s Settings) TotalScale() float32 {
	return s.ScaleUnit.Base() * s.ScaleMultiplier
}
