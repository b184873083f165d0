package animation

import (
	"errors"
	stdmath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
	"github.com/Faultbox/cast-importer/pkg/cast"
	"github.com/Faultbox/cast-importer/pkg/math"
)

// axisAngle builds a rotation of angle radians around a unit axis.
func axisAngle(axis math.Vec3, angle float64) math.Quat {
	s := float32(stdmath.Sin(angle / 2))
	return math.Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: float32(stdmath.Cos(angle / 2))}
}

var bindRotation = axisAngle(math.Vec3{Y: 1}, stdmath.Pi/3)

func testSkeleton(t *testing.T) *skeleton.Skeleton {
	t.Helper()
	rot := bindRotation.Array()
	scale := [3]float32{1, 2, 3}
	s, err := skeleton.Build([]*cast.Bone{
		{Name: "hips", ParentIndex: -1, LocalPosition: [3]float32{0, 1, 0}},
		{Name: "spine", ParentIndex: 0, LocalPosition: [3]float32{0.5, 0.25, 0}, LocalRotation: &rot, Scale: &scale},
	}, 1)
	require.NoError(t, err)
	return s
}

func scalarCurve(node, prop string, frames []uint32, values []float32) *cast.Curve {
	return &cast.Curve{
		NodeName:        node,
		KeyPropertyName: prop,
		Mode:            cast.ModeAbsolute,
		KeyFrames:       frames,
		Values:          cast.KeyValues{Floats: values},
	}
}

func TestBuildAbsoluteTranslation(t *testing.T) {
	src := &cast.Animation{
		Name:      "walk",
		Framerate: 10,
		Curves:    []*cast.Curve{scalarCurve("spine", "tx", []uint32{0, 10, 20}, []float32{0, 1, 2})},
	}
	clip, warnings, err := Build(src, testSkeleton(t), Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, clip.Curves, 1)
	c := clip.Curves[0]
	assert.Equal(t, "hips/spine", c.Path)
	assert.Equal(t, "localPosition.x", c.Property())
	assert.Equal(t, []Keyframe{{Time: 0, Value: 0}, {Time: 1, Value: 1}, {Time: 2, Value: 2}}, c.Keys)
	assert.Equal(t, float32(2), clip.Duration())
}

func TestBuildUnsortedKeyframes(t *testing.T) {
	src := &cast.Animation{
		Framerate: 10,
		Curves:    []*cast.Curve{scalarCurve("spine", "tx", []uint32{20, 0, 10}, []float32{2, 0, 1})},
	}
	clip, _, err := Build(src, testSkeleton(t), Options{})
	require.NoError(t, err)

	require.Len(t, clip.Curves, 1)
	c := clip.Curves[0]
	assert.Equal(t, []Keyframe{{Time: 2, Value: 2}, {Time: 0, Value: 0}, {Time: 1, Value: 1}}, c.Keys,
		"keys stay in declaration order")
	assert.Equal(t, float32(2), clip.Duration())
	assert.InDelta(t, 0.5, c.Evaluate(0.5), 1e-6)
}

func TestBuildRelativeRotation(t *testing.T) {
	stored := axisAngle(math.Vec3{X: 1, Y: 1}.Normalize(), 0.8)
	src := &cast.Animation{
		Framerate: 30,
		Curves: []*cast.Curve{{
			NodeName:        "spine",
			KeyPropertyName: "rq",
			Mode:            cast.ModeRelative,
			KeyFrames:       []uint32{0, 15},
			Values:          cast.KeyValues{Vectors: [][4]float32{stored.Array(), math.QuatIdentity().Array()}},
		}},
	}
	clip, warnings, err := Build(src, testSkeleton(t), Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, clip.Curves, 4)
	var channel math.Quat
	for comp, c := range clip.Curves {
		assert.Equal(t, TargetRotation, c.Target)
		assert.Equal(t, comp, c.Component)
		assert.Equal(t, "hips/spine", c.Path)
		require.Len(t, c.Keys, 2)
		assert.InDelta(t, 0.5, c.Keys[1].Time, 1e-6)
	}
	channel = math.Quat{
		X: clip.Curves[0].Keys[0].Value,
		Y: clip.Curves[1].Keys[0].Value,
		Z: clip.Curves[2].Keys[0].Value,
		W: clip.Curves[3].Keys[0].Value,
	}
	assert.True(t, bindRotation.Mul(channel).ApproxEqual(stored, 1e-5),
		"bind * channel should reproduce the stored value, got %+v", bindRotation.Mul(channel))
	assert.Equal(t, "localRotation.w", clip.Curves[3].Property())
}

func TestBuildAbsoluteRotation(t *testing.T) {
	q := [4]float32{0, 0.6, 0, 0.8}
	src := &cast.Animation{
		Framerate: 30,
		Curves: []*cast.Curve{{
			NodeName:        "spine",
			KeyPropertyName: "rq",
			KeyFrames:       []uint32{3},
			Values:          cast.KeyValues{Vectors: [][4]float32{q}},
		}},
	}
	clip, _, err := Build(src, testSkeleton(t), Options{})
	require.NoError(t, err)
	for comp, c := range clip.Curves {
		assert.Equal(t, q[comp], c.Keys[0].Value, "absolute values pass through")
	}
}

func TestBuildRelativeOffsets(t *testing.T) {
	src := &cast.Animation{
		Framerate: 24,
		Curves: []*cast.Curve{
			{NodeName: "spine", KeyPropertyName: "ty", Mode: cast.ModeRelative, KeyFrames: []uint32{0}, Values: cast.KeyValues{Floats: []float32{1}}},
			{NodeName: "spine", KeyPropertyName: "sz", Mode: cast.ModeRelative, KeyFrames: []uint32{0}, Values: cast.KeyValues{Floats: []float32{0.5}}},
			{NodeName: "spine", KeyPropertyName: "sx", Mode: cast.ModeAbsolute, KeyFrames: []uint32{0}, Values: cast.KeyValues{Floats: []float32{0.5}}},
		},
	}
	clip, _, err := Build(src, testSkeleton(t), Options{})
	require.NoError(t, err)
	require.Len(t, clip.Curves, 3)

	assert.Equal(t, "localPosition.y", clip.Curves[0].Property())
	assert.Equal(t, float32(1.25), clip.Curves[0].Keys[0].Value, "bind Y 0.25 is added")
	assert.Equal(t, "localScale.z", clip.Curves[1].Property())
	assert.Equal(t, float32(3.5), clip.Curves[1].Keys[0].Value, "bind Z scale 3 is added")
	assert.Equal(t, float32(0.5), clip.Curves[2].Keys[0].Value)
}

func TestBuildSkipsUnknownProperty(t *testing.T) {
	src := &cast.Animation{
		Name:      "idle",
		Framerate: 30,
		Curves: []*cast.Curve{
			scalarCurve("hips", "xx", []uint32{0}, []float32{1}),
			scalarCurve("hips", "tz", []uint32{0}, []float32{1}),
		},
	}
	clip, warnings, err := Build(src, testSkeleton(t), Options{})
	require.NoError(t, err)

	require.Len(t, clip.Curves, 1, "sibling curves still build")
	assert.Equal(t, "localPosition.z", clip.Curves[0].Property())
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], ErrUnknownProperty)
	assert.Equal(t, 0, warnings[0].Curve)
	assert.Equal(t, "idle", warnings[0].Animation)
}

func TestBuildSkipsUnresolvedBone(t *testing.T) {
	src := &cast.Animation{
		Framerate: 30,
		Curves: []*cast.Curve{
			scalarCurve("tail", "tx", []uint32{0}, []float32{1}),
			scalarCurve("hips", "tx", []uint32{0}, []float32{1}),
		},
	}
	clip, warnings, err := Build(src, testSkeleton(t), Options{})
	require.NoError(t, err)
	assert.Len(t, clip.Curves, 1)
	require.Len(t, warnings, 1)
	assert.True(t, errors.Is(warnings[0], ErrUnresolvedBone))
	assert.Equal(t, "tail", warnings[0].Node)

	// Without a skeleton nothing resolves.
	clip, warnings, err = Build(src, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, clip.Curves)
	assert.Len(t, warnings, 2)
}

func TestBuildUnknownModeIsAbsolute(t *testing.T) {
	c := scalarCurve("spine", "ty", []uint32{0}, []float32{1})
	c.Mode = "additive"
	clip, warnings, err := Build(&cast.Animation{Framerate: 30, Curves: []*cast.Curve{c}}, testSkeleton(t), Options{})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], ErrUnknownMode)
	assert.Equal(t, float32(1), clip.Curves[0].Keys[0].Value)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		anim    *cast.Animation
		wantErr error
	}{
		{
			name:    "zero frame rate",
			anim:    &cast.Animation{},
			wantErr: ErrInvalidFrameRate,
		},
		{
			name: "short values",
			anim: &cast.Animation{Framerate: 30, Curves: []*cast.Curve{
				scalarCurve("hips", "tx", []uint32{0, 1}, []float32{1}),
			}},
			wantErr: ErrKeyframeMismatch,
		},
		{
			name: "scalar rotation",
			anim: &cast.Animation{Framerate: 30, Curves: []*cast.Curve{
				scalarCurve("hips", "rq", []uint32{0}, []float32{1}),
			}},
			wantErr: ErrKeyframeMismatch,
		},
		{
			name: "vector translation",
			anim: &cast.Animation{Framerate: 30, Curves: []*cast.Curve{{
				NodeName: "hips", KeyPropertyName: "tx", KeyFrames: []uint32{0},
				Values: cast.KeyValues{Vectors: [][4]float32{{0, 0, 0, 1}}},
			}}},
			wantErr: ErrKeyframeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Build(tt.anim, testSkeleton(t), Options{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildClipMetadata(t *testing.T) {
	src := &cast.Animation{Framerate: 60, Looping: true}
	clip, _, err := Build(src, testSkeleton(t), Options{SourceName: "run.cast", Legacy: true})
	require.NoError(t, err)
	assert.Equal(t, "run.cast", clip.Name)
	assert.Equal(t, float32(60), clip.FrameRate)
	assert.True(t, clip.Loop)
	assert.True(t, clip.Legacy)
}

func TestEvents(t *testing.T) {
	events := Events([]*cast.Notification{
		{Name: "footstep", KeyFrames: []uint32{5, 15}},
		{Name: "sound", KeyFrames: []uint32{15, 0, 15}},
	}, 30)

	require.Len(t, events, 5)
	assert.Equal(t, "footstep", events[0].Name)
	assert.InDelta(t, 1.0/6, events[0].Time, 1e-6)
	assert.Equal(t, "footstep", events[1].Name)
	assert.InDelta(t, 0.5, events[1].Time, 1e-6)

	// Declaration order, duplicates kept.
	assert.Equal(t, []float32{0.5, 0, 0.5}, []float32{events[2].Time, events[3].Time, events[4].Time})
}

func TestBuildAttachesEvents(t *testing.T) {
	src := &cast.Animation{
		Framerate:     30,
		Notifications: []*cast.Notification{{Name: "footstep", KeyFrames: []uint32{5, 15}}},
	}
	clip, _, err := Build(src, testSkeleton(t), Options{})
	require.NoError(t, err)
	assert.Len(t, clip.Events, 2)
}

func TestParseProperty(t *testing.T) {
	for _, tag := range []string{"rq", "tx", "ty", "tz", "sx", "sy", "sz"} {
		p, err := ParseProperty(tag)
		require.NoError(t, err)
		assert.Equal(t, tag, p.String())
	}
	_, err := ParseProperty("rx")
	assert.ErrorIs(t, err, ErrUnknownProperty)
}
