package importer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/cast-importer/internal/engine/animation"
	"github.com/Faultbox/cast-importer/internal/engine/model"
	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
	"github.com/Faultbox/cast-importer/pkg/cast"
)

const sceneDoc = `
roots:
  - models:
      - name: hero
        skeleton:
          bones:
            - {name: hips, position: [0, 100, 0]}
            - {name: spine, parent: 0, position: [0, 50, 0]}
            - {name: spine, parent: 1, position: [0, 50, 0]}
        meshes:
          - hash: 1
            positions: [[0, 0, 0], [100, 0, 0], [0, 100, 0]]
            faces: [0, 1, 2]
            max_influence: 2
            weight_bones: [0, 1, 1, 0, 0, 1]
            weight_values: [0.25, 0.75, 0.5, 0.5, 1, 0]
          - hash: 2
            name: eyes
            positions: [[0, 0, 0], [1, 0, 0], [0, 1, 0]]
            faces: [0, 1, 2]
          - hash: 3
            positions: [[0, 0, 0], [1, 0, 0], [0, 1, 0]]
            faces: [0, 1, 2]
        blend_shapes:
          - {name: smile, base_shape: 1, positions: [[0, 0, 10], [100, 0, 10], [0, 100, 10]]}
    animations:
      - name: walk
        framerate: 10
        curves:
          - {node: hips, property: tx, keyframes: [0, 10, 20], values: [0, 1, 2]}
          - {node: hips, property: xx, keyframes: [0], values: [1]}
          - {node: tail, property: ty, keyframes: [0], values: [1]}
        notifications:
          - {name: footstep, keyframes: [5, 15]}
      - framerate: 30
        curves:
          - {node: spine, property: rq, mode: relative, keyframes: [0], values: [[0, 0, 0, 1]]}
`

func parse(t *testing.T, doc string) *cast.File {
	t.Helper()
	f, err := cast.Parse([]byte(doc))
	require.NoError(t, err)
	return f
}

func TestImport(t *testing.T) {
	settings := DefaultSettings()
	settings.ScaleUnit = Centimeters
	settings.SourceName = "hero_file"

	var mu sync.Mutex
	var progress []Progress
	im := New(settings, WithWorkers(4), WithProgress(func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		progress = append(progress, p)
	}))

	res, err := im.Import(context.Background(), parse(t, sceneDoc))
	require.NoError(t, err)

	require.Len(t, res.Models, 1)
	hero := res.Models[0]
	assert.Equal(t, "hero", hero.Name)
	require.NotNil(t, hero.Avatar)
	assert.Equal(t, "hero_Avatar", hero.Avatar.Name)
	assert.InDelta(t, 1, hero.Skeleton.Bone(0).LocalPosition.Y, 1e-6, "bones are scaled to meters")

	require.Len(t, hero.Meshes, 3)
	assert.Equal(t, "CastMesh 0", hero.Meshes[0].Name)
	assert.Equal(t, "eyes", hero.Meshes[1].Name)
	assert.Equal(t, "CastMesh 1", hero.Meshes[2].Name, "only unnamed meshes are counted")
	assert.InDelta(t, 1, hero.Meshes[0].Positions[1].X, 1e-6)

	skin := hero.Meshes[0].Skin
	require.NotNil(t, skin)
	assert.Equal(t, []model.Influence{{Bone: 1, Weight: 0.75}, {Bone: 0, Weight: 0.25}}, skin.Vertex(0))
	assert.Nil(t, hero.Meshes[1].Skin)

	require.Len(t, hero.Meshes[0].MorphTargets, 1)
	assert.InDelta(t, 0.1, hero.Meshes[0].MorphTargets[0].Positions[0].Z, 1e-6)

	require.Len(t, res.Clips, 2)
	walk := res.Clips[0]
	assert.Equal(t, "walk", walk.Name)
	require.Len(t, walk.Curves, 1)
	assert.Equal(t, []float32{0, 1, 2}, []float32{walk.Curves[0].Keys[0].Time, walk.Curves[0].Keys[1].Time, walk.Curves[0].Keys[2].Time})
	assert.Len(t, walk.Events, 2)
	assert.Equal(t, "hero_file", res.Clips[1].Name, "unnamed clips use the source name")
	assert.Len(t, res.Clips[1].Curves, 4)
	assert.Equal(t, "hips/spine/spine", res.Clips[1].Curves[0].Path, "last duplicate bone wins")

	var unknown, unresolved, duplicate int
	for _, w := range res.Warnings {
		switch {
		case errors.Is(w, animation.ErrUnknownProperty):
			unknown++
		case errors.Is(w, animation.ErrUnresolvedBone):
			unresolved++
		case errors.Is(w, ErrDuplicateBone):
			duplicate++
		}
	}
	assert.Equal(t, 1, unknown)
	assert.Equal(t, 1, unresolved)
	assert.Equal(t, 1, duplicate)

	require.Len(t, progress, 3)
	assert.Equal(t, Progress{Stage: "model", Name: "hero", Done: 1, Total: 3}, progress[0])
	assert.Equal(t, 3, progress[2].Done)
}

func TestImportHumanoidAbortsModel(t *testing.T) {
	settings := DefaultSettings()
	settings.Rig = skeleton.RigHumanoid

	res, err := New(settings).Import(context.Background(), parse(t, sceneDoc))
	require.Error(t, err)
	assert.ErrorIs(t, err, skeleton.ErrHumanoidUnsupported)
	assert.Empty(t, res.Models)

	// Animations still import but have no skeleton to bind to.
	require.Len(t, res.Clips, 2)
	for _, clip := range res.Clips {
		assert.Empty(t, clip.Curves)
	}
}

func TestImportLegacyRig(t *testing.T) {
	settings := DefaultSettings()
	settings.Rig = skeleton.RigLegacy

	res, err := New(settings).Import(context.Background(), parse(t, sceneDoc))
	require.NoError(t, err)
	assert.Nil(t, res.Models[0].Avatar)
	for _, clip := range res.Clips {
		assert.True(t, clip.Legacy)
	}
}

func TestImportExternalSkeleton(t *testing.T) {
	ext, err := skeleton.Build([]*cast.Bone{{Name: "tail", ParentIndex: -1}}, 1)
	require.NoError(t, err)

	settings := DefaultSettings()
	settings.ExternalSkeleton = ext
	res, err := New(settings).Import(context.Background(), parse(t, sceneDoc))
	require.NoError(t, err)

	walk := res.Clips[0]
	require.Len(t, walk.Curves, 1)
	assert.Equal(t, "tail", walk.Curves[0].Path)
}

func TestImportCollectsErrors(t *testing.T) {
	doc := `
roots:
  - models:
      - name: broken
        meshes:
          - {positions: [[0, 0, 0]], faces: [0, 1, 2]}
          - {positions: [[0, 0, 0]], faces: [0, 0]}
      - name: fine
        meshes:
          - {positions: [[0, 0, 0], [1, 0, 0], [0, 1, 0]], faces: [0, 1, 2]}
    animations:
      - {name: still, framerate: 0}
      - {name: ok, framerate: 30}
`
	core, logs := observer.New(zap.WarnLevel)
	res, err := New(DefaultSettings(), WithLogger(zap.New(core))).Import(context.Background(), parse(t, doc))
	require.Error(t, err)

	assert.Len(t, multierr.Errors(err), 2, "one per failed model and animation")
	assert.ErrorIs(t, err, model.ErrInvalidFaces)
	assert.ErrorIs(t, err, animation.ErrInvalidFrameRate)

	require.Len(t, res.Models, 1)
	assert.Equal(t, "fine", res.Models[0].Name)
	assert.Nil(t, res.Models[0].Skeleton)
	require.Len(t, res.Clips, 1)
	assert.Equal(t, "ok", res.Clips[0].Name)

	assert.Equal(t, 1, logs.FilterMessage("Model import failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Animation import failed").Len())
}

func TestImportLogsMeshes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	_, err := New(DefaultSettings(), WithLogger(zap.New(core))).Import(context.Background(), parse(t, sceneDoc))
	require.NoError(t, err)

	built := logs.FilterMessage("Mesh built").All()
	require.Len(t, built, 3)
	fields := built[0].ContextMap()
	assert.Equal(t, "CastMesh 0", fields["mesh"])
	assert.Equal(t, int64(3), fields["vertices"])
	assert.Equal(t, int64(1), fields["triangles"])
	assert.Contains(t, fields, "center")
	assert.Contains(t, fields, "size")
	assert.Equal(t, "hero", fields["model"])
}

func TestImportCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(DefaultSettings()).Import(ctx, parse(t, sceneDoc))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Models)
}

func TestImportOptimizes(t *testing.T) {
	settings := DefaultSettings()
	settings.Optimize = model.OptimizeEverything
	res, err := New(settings, WithWorkers(1)).Import(context.Background(), parse(t, sceneDoc))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Models[0].Meshes[0].VertexCount())
}

func TestScaleUnits(t *testing.T) {
	tests := []struct {
		in   string
		unit ScaleUnit
		base float32
	}{
		{"meters", Meters, 1},
		{"inches", Inches, 1 / 39.3701},
		{"centimeters", Centimeters, 0.01},
		{"CM", Centimeters, 0.01},
	}
	for _, tt := range tests {
		u, err := ParseScaleUnit(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.unit, u)
		assert.InDelta(t, tt.base, u.Base(), 1e-9)
	}
	_, err := ParseScaleUnit("furlongs")
	assert.Error(t, err)

	s := Settings{ScaleUnit: Inches, ScaleMultiplier: 39.3701}
	assert.InDelta(t, 1, s.TotalScale(), 1e-6)
}
