package model

import (
	"fmt"

	"github.com/Faultbox/cast-importer/pkg/cast"
	"github.com/Faultbox/cast-importer/pkg/math"
)

// MorphTarget is a named alternate position set blended into its mesh.
// Normal and tangent deltas are zero-filled.
type MorphTarget struct {
	Name        string
	WeightScale float32 // Weight at which the target is fully applied
	Positions   []math.Vec3

	NormalDeltas  []math.Vec3
	TangentDeltas []math.Vec3
}

// Deltas returns the per-vertex displacement from the base positions.
func (t *MorphTarget) Deltas(base []math.Vec3) []math.Vec3 {
	d := make([]math.Vec3, len(t.Positions))
	for i, p := range t.Positions {
		d[i] = p.Sub(base[i])
	}
	return d
}

// GroupBlendShapes attaches every blend shape to the assembled mesh of its
// base shape, in declaration order, and returns the number of distinct base
// meshes. Target positions are multiplied by scale.
func GroupBlendShapes(shapes []*cast.BlendShape, meshes map[*cast.Mesh]*Mesh, scale float32) (int, error) {
	if scale == 0 {
		scale = 1
	}

	var order []*cast.Mesh
	groups := make(map[*cast.Mesh][]*cast.BlendShape)
	for _, s := range shapes {
		if _, ok := meshes[s.BaseShape]; !ok || s.BaseShape == nil {
			return 0, fmt.Errorf("%w: blend shape %q", ErrUnknownBaseMesh, s.Name)
		}
		if _, seen := groups[s.BaseShape]; !seen {
			order = append(order, s.BaseShape)
		}
		groups[s.BaseShape] = append(groups[s.BaseShape], s)
	}

	for _, base := range order {
		mesh := meshes[base]
		n := mesh.VertexCount()
		for _, s := range groups[base] {
			if len(s.TargetPositions) != n {
				return 0, fmt.Errorf("%w: blend shape %q has %d positions, base mesh %q has %d vertices",
					ErrBufferLength, s.Name, len(s.TargetPositions), mesh.Name, n)
			}
			target := &MorphTarget{
				Name:          s.Name,
				WeightScale:   s.TargetWeightScale,
				Positions:     make([]math.Vec3, n),
				NormalDeltas:  make([]math.Vec3, n),
				TangentDeltas: make([]math.Vec3, n),
			}
			for i, p := range s.TargetPositions {
				target.Positions[i] = math.Vec3FromArray(p).Scale(scale)
			}
			mesh.MorphTargets = append(mesh.MorphTargets, target)
		}
	}
	return len(order), nil
}
