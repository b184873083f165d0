package skeleton

import (
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/cast-importer/pkg/cast"
	"github.com/Faultbox/cast-importer/pkg/math"
)

// axisAngle builds a rotation of angle radians around a unit axis.
func axisAngle(axis math.Vec3, angle float64) math.Quat {
	s := float32(stdmath.Sin(angle / 2))
	return math.Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: float32(stdmath.Cos(angle / 2))}
}

func bone(name string, parent int32, pos [3]float32) *cast.Bone {
	return &cast.Bone{Name: name, ParentIndex: parent, LocalPosition: pos}
}

func TestBuildForwardReference(t *testing.T) {
	// The child is declared before its parent.
	s, err := Build([]*cast.Bone{
		bone("hand", 1, [3]float32{0, 1, 0}),
		bone("arm", -1, [3]float32{1, 0, 0}),
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Bones[0].Parent)
	assert.Equal(t, NoParent, s.Bones[1].Parent)
	assert.Equal(t, []int{0}, s.Bones[1].Children)
	assert.Equal(t, []int{1}, s.Roots())
	assert.Equal(t, "arm/hand", s.Path(0))

	world := s.World(0).TransformPoint(math.Vec3{})
	assert.Equal(t, math.Vec3{X: 1, Y: 1, Z: 0}, world)
}

func TestBuildParentsResolve(t *testing.T) {
	s, err := Build([]*cast.Bone{
		bone("hips", -1, [3]float32{}),
		bone("spine", 0, [3]float32{}),
		bone("neck", 1, [3]float32{}),
		bone("tail", 0, [3]float32{}),
	}, 1)
	require.NoError(t, err)

	for i, n := range s.Bones {
		if n.Parent == NoParent {
			assert.Contains(t, s.Roots(), i)
			continue
		}
		require.GreaterOrEqual(t, n.Parent, 0)
		require.Less(t, n.Parent, s.Len())
		assert.Contains(t, s.Bones[n.Parent].Children, i)
	}
	assert.Equal(t, []string{"hips", "hips/spine", "hips/spine/neck", "hips/tail"}, s.Paths())
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		bones   []*cast.Bone
		wantErr error
	}{
		{
			name:    "self parent",
			bones:   []*cast.Bone{bone("a", 0, [3]float32{})},
			wantErr: ErrSkeletonCycle,
		},
		{
			name: "two bone cycle",
			bones: []*cast.Bone{
				bone("root", -1, [3]float32{}),
				bone("a", 2, [3]float32{}),
				bone("b", 1, [3]float32{}),
			},
			wantErr: ErrSkeletonCycle,
		},
		{
			name:    "parent past end",
			bones:   []*cast.Bone{bone("a", 3, [3]float32{})},
			wantErr: ErrInvalidParent,
		},
		{
			name:    "negative parent",
			bones:   []*cast.Bone{bone("a", -2, [3]float32{})},
			wantErr: ErrInvalidParent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.bones, 1)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildScaleAppliesToTranslationOnly(t *testing.T) {
	rot := [4]float32{0, 0.7071068, 0, 0.7071068}
	scale := [3]float32{2, 3, 4}
	s, err := Build([]*cast.Bone{{
		Name:          "hips",
		ParentIndex:   -1,
		LocalPosition: [3]float32{1, 2, 3},
		LocalRotation: &rot,
		Scale:         &scale,
	}}, 0.01)
	require.NoError(t, err)

	n := s.Bones[0]
	assert.InDelta(t, 0.01, n.LocalPosition.X, 1e-7)
	assert.InDelta(t, 0.02, n.LocalPosition.Y, 1e-7)
	assert.InDelta(t, 0.03, n.LocalPosition.Z, 1e-7)
	assert.Equal(t, math.QuatFromArray(rot), n.LocalRotation)
	assert.Equal(t, math.Vec3{X: 2, Y: 3, Z: 4}, n.LocalScale)
}

func TestBuildDefaults(t *testing.T) {
	s, err := Build([]*cast.Bone{bone("hips", -1, [3]float32{})}, 1)
	require.NoError(t, err)
	assert.Equal(t, math.QuatIdentity(), s.Bones[0].LocalRotation)
	assert.Equal(t, math.One(), s.Bones[0].LocalScale)
}

func TestBuildDuplicateNames(t *testing.T) {
	s, err := Build([]*cast.Bone{
		bone("root", -1, [3]float32{}),
		bone("end", 0, [3]float32{}),
		bone("end", 0, [3]float32{}),
	}, 1)
	require.NoError(t, err)

	i, ok := s.Lookup("end")
	require.True(t, ok)
	assert.Equal(t, 2, i, "later declaration wins")
	assert.Equal(t, []string{"end"}, s.Duplicates())

	_, ok = s.Lookup("missing")
	assert.False(t, ok)
}

func TestBindPoses(t *testing.T) {
	rot := axisAngle(math.Vec3{Z: 1}, stdmath.Pi/4).Array()
	s, err := Build([]*cast.Bone{
		{Name: "hips", ParentIndex: -1, LocalPosition: [3]float32{0, 1, 0}, LocalRotation: &rot},
		bone("spine", 0, [3]float32{0, 0.5, 0}),
	}, 1)
	require.NoError(t, err)

	poses := s.BindPoses()
	require.Len(t, poses, 2)
	for i, bind := range poses {
		assert.True(t, bind.Mul(s.World(i)).ApproxEqual(math.Identity(), 1e-5),
			"bind pose of bone %d should invert its world transform", i)
	}

	poses[0] = math.Mat4{}
	assert.NotEqual(t, math.Mat4{}, s.BindPoses()[0], "callers get a copy")
}

func TestEmptySkeleton(t *testing.T) {
	s, err := Build(nil, 1)
	require.NoError(t, err)
	assert.Zero(t, s.Len())
	assert.Empty(t, s.BindPoses())
	assert.Equal(t, ArmatureName, s.Armature.Name)
}

func TestParseRigType(t *testing.T) {
	tests := []struct {
		in      string
		want    RigType
		wantErr bool
	}{
		{"generic", RigGeneric, false},
		{"", RigGeneric, false},
		{"Humanoid", RigHumanoid, false},
		{"legacy", RigLegacy, false},
		{"biped", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRigType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) RigType {
	t.Helper()
	r, err := ParseRigType(s)
	require.NoError(t, err)
	return r
}

func TestBuildAvatar(t *testing.T) {
	s, err := Build([]*cast.Bone{
		bone("hips", -1, [3]float32{}),
		bone("spine", 0, [3]float32{}),
	}, 1)
	require.NoError(t, err)

	a, err := BuildAvatar(s, "hero", RigGeneric)
	require.NoError(t, err)
	assert.Equal(t, "hero_Avatar", a.Name)
	assert.Equal(t, ArmatureName, a.Root)
	assert.Equal(t, []string{"hips", "hips/spine"}, a.Paths)

	_, err = BuildAvatar(s, "hero", RigHumanoid)
	assert.ErrorIs(t, err, ErrHumanoidUnsupported)

	a, err = BuildAvatar(s, "hero", RigLegacy)
	assert.NoError(t, err)
	assert.Nil(t, a)
}
