// Package export writes reconstructed scenes and clips as glTF 2.0.
package export

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/cast-importer/internal/engine/animation"
	"github.com/Faultbox/cast-importer/internal/engine/model"
	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
	"github.com/Faultbox/cast-importer/internal/importer"
	"github.com/Faultbox/cast-importer/pkg/math"
)

// Export errors.
var (
	ErrEmptyResult = errors.New("import result has no models or clips")
)

// Format selects the container written by Save.
type Format int

const (
	// FormatGLB is binary glTF with an embedded buffer.
	FormatGLB Format = iota
	// FormatGLTF is JSON glTF with the buffer embedded as a data URI.
	FormatGLTF
)

// String returns the file extension of the format, without the dot.
func (f Format) String() string {
	if f == FormatGLTF {
		return "gltf"
	}
	return "glb"
}

// ParseFormat parses "glb" or "gltf".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "glb", "":
		return FormatGLB, nil
	case "gltf":
		return FormatGLTF, nil
	default:
		return 0, fmt.Errorf("unknown export format %q", s)
	}
}

// Save writes res to path.
func Save(res *importer.Result, path string, format Format) error {
	doc, err := Document(res)
	if err != nil {
		return err
	}
	if format == FormatGLTF {
		for _, b := range doc.Buffers {
			b.EmbeddedResource()
		}
		return gltf.Save(doc, path)
	}
	return gltf.SaveBinary(doc, path)
}

// boneRef locates the glTF node of a skeleton bone.
type boneRef struct {
	node uint32
	bind skeleton.Node
}

type writer struct {
	doc       *gltf.Document
	materials map[string]uint32
	bones     map[string]boneRef // First model wins for a shared path
}

// Document converts res into an in-memory glTF document. Every model becomes
// a root node holding its armature and mesh nodes; every clip becomes an
// animation targeting the bone nodes by path.
func Document(res *importer.Result) (*gltf.Document, error) {
	if len(res.Models) == 0 && len(res.Clips) == 0 {
		return nil, ErrEmptyResult
	}

	w := &writer{
		doc:       gltf.NewDocument(),
		materials: make(map[string]uint32),
		bones:     make(map[string]boneRef),
	}
	for _, m := range res.Models {
		root := w.addNode(&gltf.Node{Name: m.Name})
		w.doc.Scenes[0].Nodes = append(w.doc.Scenes[0].Nodes, root)
		w.addModel(root, m)
	}
	for _, clip := range res.Clips {
		w.addClip(clip)
	}
	return w.doc, nil
}

func (w *writer) addNode(n *gltf.Node) uint32 {
	w.doc.Nodes = append(w.doc.Nodes, n)
	return uint32(len(w.doc.Nodes) - 1)
}

func (w *writer) child(parent, node uint32) {
	p := w.doc.Nodes[parent]
	p.Children = append(p.Children, node)
}

func trsNode(n skeleton.Node) *gltf.Node {
	return &gltf.Node{
		Name:        n.Name,
		Translation: n.LocalPosition.Array(),
		Rotation:    n.LocalRotation.Array(),
		Scale:       n.LocalScale.Array(),
	}
}

func (w *writer) addModel(root uint32, m *importer.Model) {
	var joints []uint32
	var armature uint32
	if skel := m.Skeleton; skel != nil {
		armature = w.addNode(trsNode(skel.Armature))
		w.child(root, armature)

		// Bones are appended in arena order, so joint i is node first+i.
		first := uint32(len(w.doc.Nodes))
		joints = make([]uint32, skel.Len())
		for i := range joints {
			joints[i] = w.addNode(trsNode(skel.Bone(i)))
		}
		for i := range joints {
			n := skel.Bone(i)
			for _, c := range n.Children {
				w.child(joints[i], first+uint32(c))
			}
			path := skel.Path(i)
			if _, ok := w.bones[path]; !ok {
				w.bones[path] = boneRef{node: joints[i], bind: n}
			}
		}
		for _, r := range skel.Roots() {
			w.child(armature, joints[r])
		}
	}

	for _, mesh := range m.Meshes {
		node := &gltf.Node{Name: mesh.Name}
		// Empty meshes keep their node so the hierarchy survives.
		if mesh.VertexCount() == 0 {
			w.child(root, w.addNode(node))
			continue
		}
		node.Mesh = gltf.Index(w.addMesh(mesh))
		if mesh.Skin != nil && len(joints) > 0 {
			node.Skin = gltf.Index(w.addSkin(mesh.Skin, joints, armature))
		}
		w.child(root, w.addNode(node))
	}
}

func (w *writer) material(name string) uint32 {
	if idx, ok := w.materials[name]; ok {
		return idx
	}
	w.doc.Materials = append(w.doc.Materials, &gltf.Material{
		Name:                 name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{},
	})
	idx := uint32(len(w.doc.Materials) - 1)
	w.materials[name] = idx
	return idx
}

func vec3s(v []math.Vec3) [][3]float32 {
	out := make([][3]float32, len(v))
	for i, p := range v {
		out[i] = p.Array()
	}
	return out
}

func (w *writer) addMesh(m *model.Mesh) uint32 {
	doc := w.doc

	attributes := gltf.Attribute{
		gltf.POSITION: modeler.WritePosition(doc, vec3s(m.Positions)),
	}
	if len(m.Normals) > 0 {
		attributes[gltf.NORMAL] = modeler.WriteNormal(doc, vec3s(m.Normals))
	}
	if len(m.Tangents) > 0 {
		tangents := make([][4]float32, len(m.Tangents))
		for i, t := range m.Tangents {
			tangents[i] = t
		}
		attributes[gltf.TANGENT] = modeler.WriteTangent(doc, tangents)
	}
	for layer, uvs := range m.UVLayers {
		data := make([][2]float32, len(uvs))
		for i, uv := range uvs {
			data[i] = uv.Array()
		}
		attributes[fmt.Sprintf("TEXCOORD_%d", layer)] = modeler.WriteTextureCoord(doc, data)
	}
	if len(m.Colors) > 0 {
		colors := make([][4]float32, len(m.Colors))
		for i, c := range m.Colors {
			colors[i] = [4]float32{c.R, c.G, c.B, c.A}
		}
		attributes[gltf.COLOR_0] = modeler.WriteAccessor(doc, gltf.TargetArrayBuffer, colors)
	}
	if s := m.Skin; s != nil {
		joints, weights := skinAttributes(s)
		for set := range joints {
			attributes[fmt.Sprintf("JOINTS_%d", set)] = modeler.WriteJoints(doc, joints[set])
			attributes[fmt.Sprintf("WEIGHTS_%d", set)] = modeler.WriteWeights(doc, weights[set])
		}
	}

	prim := &gltf.Primitive{
		Attributes: attributes,
		Material:   gltf.Index(w.material(m.Material)),
	}
	if len(m.Indices) > 0 {
		prim.Indices = gltf.Index(modeler.WriteIndices(doc, m.Indices))
	}

	mesh := &gltf.Mesh{Name: m.Name, Primitives: []*gltf.Primitive{prim}}
	extras := map[string]interface{}{}
	if len(m.MorphTargets) > 0 {
		names := make([]string, len(m.MorphTargets))
		scales := make([]float32, len(m.MorphTargets))
		for i, t := range m.MorphTargets {
			prim.Targets = append(prim.Targets, gltf.Attribute{
				gltf.POSITION: modeler.WritePosition(doc, vec3s(t.Deltas(m.Positions))),
			})
			names[i] = t.Name
			scales[i] = t.WeightScale
		}
		mesh.Weights = make([]float32, len(m.MorphTargets))
		extras["targetNames"] = names
		extras["targetWeightScales"] = scales
	}
	if m.LightmapLayer >= 0 {
		extras["lightmapTexCoord"] = m.LightmapLayer
	}
	if len(extras) > 0 {
		mesh.Extras = extras
	}

	doc.Meshes = append(doc.Meshes, mesh)
	return uint32(len(doc.Meshes) - 1)
}

// skinAttributes packs influences into sets of four with weights normalised
// to sum to one.
func skinAttributes(s *model.Skin) ([][][4]uint16, [][][4]float32) {
	sets := (s.MaxInfluence + 3) / 4
	n := s.VertexCount()
	joints := make([][][4]uint16, sets)
	weights := make([][][4]float32, sets)
	for set := range joints {
		joints[set] = make([][4]uint16, n)
		weights[set] = make([][4]float32, n)
	}
	for v := 0; v < n; v++ {
		infl := s.Vertex(v)
		var sum float32
		for _, in := range infl {
			sum += in.Weight
		}
		if sum <= 0 {
			sum = 1
		}
		for i, in := range infl {
			joints[i/4][v][i%4] = uint16(in.Bone)
			weights[i/4][v][i%4] = in.Weight / sum
		}
	}
	return joints, weights
}

// addMatrices writes mat4 data by packing columns as four vec4 rows per
// matrix and retyping the accessor.
func (w *writer) addMatrices(mats []math.Mat4) uint32 {
	a := make([][4]float32, len(mats)*4)
	for i, m := range mats {
		cols := m.Columns()
		copy(a[i*4:], cols[:])
	}
	acc := modeler.WriteTangent(w.doc, a)
	w.doc.Accessors[acc].Type = gltf.AccessorMat4
	w.doc.Accessors[acc].Count /= 4
	w.doc.BufferViews[*w.doc.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

func (w *writer) addSkin(s *model.Skin, joints []uint32, armature uint32) uint32 {
	w.doc.Skins = append(w.doc.Skins, &gltf.Skin{
		Joints:              joints,
		Skeleton:            gltf.Index(armature),
		InverseBindMatrices: gltf.Index(w.addMatrices(s.BindPoses)),
	})
	return uint32(len(w.doc.Skins) - 1)
}

// channelKey groups component curves of one property of one bone.
type channelKey struct {
	path   string
	target animation.Target
}

func (w *writer) addClip(clip *animation.Clip) {
	var order []channelKey
	groups := make(map[channelKey][]*animation.Curve)
	for _, c := range clip.Curves {
		k := channelKey{c.Path, c.Target}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	anim := &gltf.Animation{Name: clip.Name}
	for _, k := range order {
		ref, ok := w.bones[k.path]
		if !ok {
			continue
		}
		times, values := sampleChannel(groups[k], k.target, ref.bind)
		if len(times) == 0 {
			continue
		}
		input := modeler.WriteAccessor(w.doc, gltf.TargetNone, times)
		w.doc.Accessors[input].Min = []float32{times[0]}
		w.doc.Accessors[input].Max = []float32{times[len(times)-1]}
		var output uint32
		var path gltf.TRSProperty
		switch k.target {
		case animation.TargetRotation:
			output = modeler.WriteAccessor(w.doc, gltf.TargetNone, values)
			path = gltf.TRSRotation
		case animation.TargetScale:
			output = modeler.WriteAccessor(w.doc, gltf.TargetNone, vec3Values(values))
			path = gltf.TRSScale
		default:
			output = modeler.WriteAccessor(w.doc, gltf.TargetNone, vec3Values(values))
			path = gltf.TRSTranslation
		}

		anim.Samplers = append(anim.Samplers, &gltf.AnimationSampler{
			Input:         gltf.Index(input),
			Output:        gltf.Index(output),
			Interpolation: gltf.InterpolationLinear,
		})
		anim.Channels = append(anim.Channels, &gltf.Channel{
			Sampler: gltf.Index(uint32(len(anim.Samplers) - 1)),
			Target:  gltf.ChannelTarget{Node: gltf.Index(ref.node), Path: path},
		})
	}

	events := make([]map[string]interface{}, len(clip.Events))
	for i, e := range clip.Events {
		events[i] = map[string]interface{}{"name": e.Name, "time": e.Time}
	}
	anim.Extras = map[string]interface{}{
		"frameRate": clip.FrameRate,
		"loop":      clip.Loop,
		"legacy":    clip.Legacy,
		"events":    events,
	}
	if len(anim.Channels) > 0 || len(events) > 0 {
		w.doc.Animations = append(w.doc.Animations, anim)
	}
}

// sampleChannel merges component curves over the union of their key times.
// Components without a curve hold the bind pose value.
func sampleChannel(curves []*animation.Curve, target animation.Target, bind skeleton.Node) ([]float32, [][4]float32) {
	sorted := make([]*animation.Curve, len(curves))
	for i, c := range curves {
		sc := *c
		sc.Keys = c.Sorted()
		sorted[i] = &sc
	}
	curves = sorted

	var times []float32
	for _, c := range curves {
		for _, k := range c.Keys {
			times = append(times, k.Time)
		}
	}
	slices.Sort(times)
	times = slices.Compact(times)

	var base [4]float32
	switch target {
	case animation.TargetRotation:
		base = bind.LocalRotation.Array()
	case animation.TargetScale:
		base = [4]float32{bind.LocalScale.X, bind.LocalScale.Y, bind.LocalScale.Z, 0}
	default:
		base = [4]float32{bind.LocalPosition.X, bind.LocalPosition.Y, bind.LocalPosition.Z, 0}
	}

	values := make([][4]float32, len(times))
	for i, t := range times {
		v := base
		for _, c := range curves {
			v[c.Component] = c.Evaluate(t)
		}
		if target == animation.TargetRotation {
			v = math.QuatFromArray(v).Normalize().Array()
		}
		values[i] = v
	}
	return times, values
}

func vec3Values(v [][4]float32) [][3]float32 {
	out := make([][3]float32, len(v))
	for i, x := range v {
		out[i] = [3]float32{x[0], x[1], x[2]}
	}
	return out
}
