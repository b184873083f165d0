package skeleton

import (
	"errors"
	"fmt"
	"strings"
)

// ErrHumanoidUnsupported is returned when a humanoid retarget is requested.
var ErrHumanoidUnsupported = errors.New("humanoid rigs are not supported, choose generic or legacy")

// RigType selects how the hierarchy is exposed to the host animation system.
type RigType int

const (
	// RigGeneric declares the hierarchy as-is through an Avatar.
	RigGeneric RigType = iota
	// RigHumanoid requests humanoid retargeting, which is rejected.
	RigHumanoid
	// RigLegacy produces no avatar and marks clips as legacy.
	RigLegacy
)

// String returns the configuration name of the rig type.
func (r RigType) String() string {
	switch r {
	case RigGeneric:
		return "generic"
	case RigHumanoid:
		return "humanoid"
	case RigLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("RigType(%d)", int(r))
	}
}

// ParseRigType parses a configuration name, case-insensitively.
func ParseRigType(s string) (RigType, error) {
	switch strings.ToLower(s) {
	case "generic", "":
		return RigGeneric, nil
	case "humanoid", "human":
		return RigHumanoid, nil
	case "legacy":
		return RigLegacy, nil
	default:
		return 0, fmt.Errorf("unknown rig type %q", s)
	}
}

// Avatar declares a transform hierarchy to the host without retargeting
// semantics.
type Avatar struct {
	Name  string
	Root  string
	Paths []string
}

// BuildAvatar creates the avatar for a model. Legacy rigs get none.
func BuildAvatar(s *Skeleton, modelName string, rig RigType) (*Avatar, error) {
	switch rig {
	case RigHumanoid:
		return nil, ErrHumanoidUnsupported
	case RigLegacy:
		return nil, nil
	}
	return &Avatar{
		Name:  modelName + "_Avatar",
		Root:  ArmatureName,
		Paths: s.Paths(),
	}, nil
}
