// Package importer reconstructs scenes and animation clips from a Cast node
// graph.
package importer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/cast-importer/internal/engine/animation"
	"github.com/Faultbox/cast-importer/internal/engine/model"
	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
	"github.com/Faultbox/cast-importer/pkg/cast"
)

// ErrDuplicateBone is reported through Result.Warnings when a skeleton
// declares a bone name twice.
var ErrDuplicateBone = errors.New("duplicate bone name")

// Model is one reconstructed model.
type Model struct {
	Name     string
	Skeleton *skeleton.Skeleton // nil when the model has no skeleton
	Avatar   *skeleton.Avatar   // nil for legacy rigs
	Meshes   []*model.Mesh
}

// Result is the output of an import. Warnings holds recoverable problems;
// items that failed are absent.
type Result struct {
	Models   []*Model
	Clips    []*animation.Clip
	Warnings []error
}

// Progress describes a finished top-level item.
type Progress struct {
	Stage string // "model" or "animation"
	Name  string
	Done  int
	Total int
}

// ProgressFunc receives progress between top-level items. Calls are
// serialised.
type ProgressFunc func(Progress)

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(im *Importer) {
		im.log = log.Named("importer")
	}
}

// WithWorkers bounds the number of concurrent mesh and animation tasks.
func WithWorkers(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.workers = n
		}
	}
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(im *Importer) {
		im.progress = fn
	}
}

// Importer runs the reconstruction stages over a Cast file.
type Importer struct {
	settings Settings
	log      *zap.Logger
	workers  int
	progress ProgressFunc

	mu    sync.Mutex
	done  int
	total int
}

// New creates an importer.
func New(settings Settings, opts ...Option) *Importer {
	im := &Importer{
		settings: settings,
		log:      zap.NewNop(),
		workers:  runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Import reconstructs every model and animation of f. Per-item failures are
// combined into the returned error while the other items still import, so
// a non-nil Result may accompany a non-nil error. The context is checked
// between roots, models and animations.
func (im *Importer) Import(ctx context.Context, f *cast.File) (*Result, error) {
	im.mu.Lock()
	im.done = 0
	im.total = len(f.Models()) + len(f.Animations())
	im.mu.Unlock()

	res := &Result{}
	var errs error
	for ri, root := range f.Roots {
		if err := ctx.Err(); err != nil {
			return res, multierr.Append(errs, err)
		}

		var rootSkeleton *skeleton.Skeleton
		for mi, src := range root.Models {
			if err := ctx.Err(); err != nil {
				return res, multierr.Append(errs, err)
			}
			m, warnings, err := im.importModel(src)
			res.Warnings = append(res.Warnings, warnings...)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("root %d model %d (%s): %w", ri, mi, src.Name, err))
				im.log.Error("Model import failed", zap.String("model", src.Name), zap.Error(err))
			} else {
				res.Models = append(res.Models, m)
				if rootSkeleton == nil {
					rootSkeleton = m.Skeleton
				}
			}
			im.report("model", src.Name)
		}

		skel := im.settings.ExternalSkeleton
		if skel == nil {
			skel = rootSkeleton
		}
		clips, warnings, err := im.importAnimations(ctx, root.Animations, skel)
		res.Clips = append(res.Clips, clips...)
		res.Warnings = append(res.Warnings, warnings...)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("root %d: %w", ri, err))
		}
	}

	im.log.Info("Import finished",
		zap.Int("models", len(res.Models)),
		zap.Int("clips", len(res.Clips)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Int("errors", len(multierr.Errors(errs))))
	return res, errs
}

func (im *Importer) importModel(src *cast.Model) (*Model, []error, error) {
	name := src.Name
	if name == "" {
		name = im.settings.SourceName
	}
	scale := im.settings.TotalScale()
	log := im.log.With(zap.String("model", name))

	m := &Model{Name: name}
	var warnings []error
	if src.Skeleton != nil {
		skel, err := skeleton.Build(src.Bones(), scale)
		if err != nil {
			return nil, nil, fmt.Errorf("building skeleton: %w", err)
		}
		for _, dup := range skel.Duplicates() {
			w := fmt.Errorf("model %q: %w: %q", name, ErrDuplicateBone, dup)
			log.Warn("Duplicate bone name, later bone wins", zap.String("bone", dup))
			warnings = append(warnings, w)
		}
		m.Skeleton = skel

		avatar, err := skeleton.BuildAvatar(skel, name, im.settings.Rig)
		if err != nil {
			return nil, warnings, err
		}
		m.Avatar = avatar
	}

	// Names are assigned in declaration order before work is spread out.
	names := make([]string, len(src.Meshes))
	unnamed := 0
	for i, mesh := range src.Meshes {
		if mesh.Name == "" {
			names[i] = fmt.Sprintf("CastMesh %d", unnamed)
			unnamed++
		}
	}

	meshes := make([]*model.Mesh, len(src.Meshes))
	meshErrs := make([]error, len(src.Meshes))
	im.parallel(len(src.Meshes), func(i int) {
		mesh, err := model.Build(src.Meshes[i], model.BuildOptions{
			Scale:               scale,
			RecalculateNormals:  im.settings.RecalculateNormals,
			GenerateLightmapUVs: im.settings.GenerateLightmapUVs,
			Name:                names[i],
		})
		if err == nil {
			err = model.BindSkin(mesh, src.Meshes[i], m.Skeleton)
		}
		if err != nil {
			meshErrs[i] = fmt.Errorf("mesh %d (%s): %w", i, src.Meshes[i].Name, err)
			return
		}
		meshes[i] = mesh
	})
	if err := multierr.Combine(meshErrs...); err != nil {
		return nil, warnings, err
	}

	byIdentity := make(map[*cast.Mesh]*model.Mesh, len(meshes))
	for i, mesh := range meshes {
		byIdentity[src.Meshes[i]] = mesh
	}
	groups, err := model.GroupBlendShapes(src.BlendShapes, byIdentity, scale)
	if err != nil {
		return nil, warnings, err
	}

	if im.settings.Optimize != model.OptimizeNone {
		for _, mesh := range meshes {
			model.Optimize(mesh, im.settings.Optimize)
		}
	}

	if log.Core().Enabled(zap.DebugLevel) {
		for _, mesh := range meshes {
			center, size := mesh.Bounds.Center().Array(), mesh.Bounds.Size().Array()
			log.Debug("Mesh built",
				zap.String("mesh", mesh.Name),
				zap.Int("vertices", mesh.VertexCount()),
				zap.Int("triangles", mesh.TriangleCount()),
				zap.Float32s("center", center[:]),
				zap.Float32s("size", size[:]))
		}
	}

	m.Meshes = meshes
	log.Debug("Model imported",
		zap.Int("bones", m.boneCount()),
		zap.Int("meshes", len(meshes)),
		zap.Int("blendShapeGroups", groups))
	return m, warnings, nil
}

func (m *Model) boneCount() int {
	if m.Skeleton == nil {
		return 0
	}
	return m.Skeleton.Len()
}

func (im *Importer) importAnimations(ctx context.Context, anims []*cast.Animation, skel *skeleton.Skeleton) ([]*animation.Clip, []error, error) {
	opts := animation.Options{
		SourceName: im.settings.SourceName,
		Legacy:     im.settings.Rig == skeleton.RigLegacy,
	}

	clips := make([]*animation.Clip, len(anims))
	clipWarnings := make([][]animation.Warning, len(anims))
	clipErrs := make([]error, len(anims))
	im.parallel(len(anims), func(i int) {
		if err := ctx.Err(); err != nil {
			clipErrs[i] = err
			return
		}
		clip, warnings, err := animation.Build(anims[i], skel, opts)
		clipWarnings[i] = warnings
		if err != nil {
			clipErrs[i] = fmt.Errorf("animation %d (%s): %w", i, anims[i].Name, err)
		} else {
			clips[i] = clip
		}
		im.report("animation", anims[i].Name)
	})

	var (
		out      []*animation.Clip
		warnings []error
	)
	for i, clip := range clips {
		for _, w := range clipWarnings[i] {
			im.log.Warn("Curve skipped",
				zap.String("animation", w.Animation),
				zap.String("node", w.Node),
				zap.String("property", w.Property),
				zap.Error(w.Err))
			warnings = append(warnings, w)
		}
		if clipErrs[i] != nil {
			im.log.Error("Animation import failed", zap.String("animation", anims[i].Name), zap.Error(clipErrs[i]))
			continue
		}
		out = append(out, clip)
	}
	return out, warnings, multierr.Combine(clipErrs...)
}

// parallel runs fn for every index in [0, n) on a bounded worker pool and
// waits for all of them.
func (im *Importer) parallel(n int, fn func(i int)) {
	workers := min(im.workers, n)
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	work := make(chan int, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		work <- i
	}
	close(work)
	wg.Wait()
}

func (im *Importer) report(stage, name string) {
	if im.progress == nil {
		return
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	im.done++
	im.progress(Progress{Stage: stage, Name: name, Done: im.done, Total: im.total})
}
