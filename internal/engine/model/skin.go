package model

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
	"github.com/Faultbox/cast-importer/pkg/cast"
	"github.com/Faultbox/cast-importer/pkg/math"
)

// Influence is one bone contribution to a skinned vertex.
type Influence struct {
	Bone   int
	Weight float32
}

// Skin binds a mesh to a skeleton. Influences holds exactly MaxInfluence
// entries per vertex, sorted by descending weight.
type Skin struct {
	MaxInfluence int
	Influences   []Influence

	RootBone  string
	Bones     []string    // Bone names in skeleton arena order
	BindPoses []math.Mat4 // One per bone
}

// Vertex returns the influences of vertex i.
func (s *Skin) Vertex(i int) []Influence {
	return s.Influences[i*s.MaxInfluence : (i+1)*s.MaxInfluence]
}

// VertexCount returns the number of bound vertices.
func (s *Skin) VertexCount() int {
	if s.MaxInfluence == 0 {
		return 0
	}
	return len(s.Influences) / s.MaxInfluence
}

// BindSkin attaches a skin to m from the weight buffers of src. Meshes with
// no influences stay unskinned. A single influence is always bound with full
// weight and the stored weight value is not read.
func BindSkin(m *Mesh, src *cast.Mesh, skel *skeleton.Skeleton) error {
	stride := src.MaxInfluence
	if stride <= 0 {
		return nil
	}

	n := src.VertexCount()
	want := n * stride
	if len(src.WeightBones) != want {
		return fmt.Errorf("%w: %d bone indices for %d vertices with %d influences",
			ErrWeightBuffer, len(src.WeightBones), n, stride)
	}
	if stride > 1 && len(src.WeightValues) != want {
		return fmt.Errorf("%w: %d weight values for %d vertices with %d influences",
			ErrWeightBuffer, len(src.WeightValues), n, stride)
	}

	boneCount := 0
	if skel != nil {
		boneCount = skel.Len()
	}

	influences := make([]Influence, want)
	for i, b := range src.WeightBones {
		if int(b) >= boneCount {
			return fmt.Errorf("%w: vertex %d bone %d of %d", ErrWeightBone, i/stride, b, boneCount)
		}
		influences[i].Bone = int(b)
		if stride == 1 {
			influences[i].Weight = 1
		} else {
			influences[i].Weight = src.WeightValues[i]
		}
	}

	if stride > 1 {
		for v := 0; v < n; v++ {
			slices.SortStableFunc(influences[v*stride:(v+1)*stride], func(a, b Influence) int {
				return cmp.Compare(b.Weight, a.Weight)
			})
		}
	}

	m.Skin = &Skin{
		MaxInfluence: stride,
		Influences:   influences,
		RootBone:     skeleton.ArmatureName,
	}
	if skel != nil {
		m.Skin.Bones = make([]string, boneCount)
		for i := range m.Skin.Bones {
			m.Skin.Bones[i] = skel.Bone(i).Name
		}
		m.Skin.BindPoses = skel.BindPoses()
	}
	return nil
}
