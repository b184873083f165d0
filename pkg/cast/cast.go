// Package cast provides the typed Cast node graph consumed by the importer.
//
// A File holds root nodes; each root owns models and animations. Cross-node
// references (mesh material, blend shape base mesh) are resolved pointers, so
// node identity is pointer identity.
package cast

// Curve modes.
const (
	ModeAbsolute = "absolute"
	ModeRelative = "relative"
)

// File is a parsed Cast document.
type File struct {
	Roots []*Root
}

// Root is a top-level node grouping models and animations.
type Root struct {
	Models     []*Model
	Animations []*Animation
}

// Model is a skinned model: one skeleton, its meshes and blend shapes.
type Model struct {
	Name        string
	Skeleton    *Skeleton
	Materials   []*Material
	Meshes      []*Mesh
	BlendShapes []*BlendShape
}

// Skeleton is an ordered bone list. Bones reference parents by index.
type Skeleton struct {
	Bones []*Bone
}

// Bone is a single skeleton joint.
type Bone struct {
	Name          string
	ParentIndex   int32       // -1 attaches to the armature root
	LocalPosition [3]float32  // Translation relative to the parent
	LocalRotation *[4]float32 // X, Y, Z, W quaternion; nil means identity
	Scale         *[3]float32 // nil means unit scale
}

// Material is a named surface reference.
type Material struct {
	Hash uint64
	Name string
}

// Mesh is a triangle mesh stored as parallel per-vertex buffers.
type Mesh struct {
	Hash         uint64
	Name         string
	Positions    [][3]float32
	Normals      [][3]float32 // Empty or len(Positions)
	Colors       []uint32     // Packed 0xRRGGBB; empty or len(Positions)
	UVLayers     [][][2]float32
	Faces        []uint32 // Flat triangle list
	Material     *Material
	MaxInfluence int       // 0 unskinned, 1 rigid, >1 blended
	WeightBones  []uint32  // VertexCount * MaxInfluence bone indices
	WeightValues []float32 // VertexCount * MaxInfluence weights
}

// BlendShape is a morph target applied to a base mesh.
type BlendShape struct {
	Name              string
	BaseShape         *Mesh
	TargetPositions   [][3]float32 // Displaced positions, len = base vertex count
	TargetWeightScale float32      // Weight at which the shape reaches 100%
}

// Animation is a keyframed clip.
type Animation struct {
	Name          string
	Framerate     float32
	Looping       bool
	Curves        []*Curve
	Notifications []*Notification
}

// Curve animates one property of one bone.
type Curve struct {
	NodeName        string
	KeyPropertyName string // rq, tx, ty, tz, sx, sy, sz
	Mode            string // absolute or relative
	KeyFrames       []uint32
	Values          KeyValues
}

// KeyValues is a curve value buffer. Exactly one of Floats or Vectors is
// populated, depending on the property.
type KeyValues struct {
	Floats  []float32
	Vectors [][4]float32
}

// Len returns the number of stored values.
func (v KeyValues) Len() int {
	if v.Vectors != nil {
		return len(v.Vectors)
	}
	return len(v.Floats)
}

// Notification is a named set of keyframe markers.
type Notification struct {
	Name      string
	KeyFrames []uint32
}

// Models returns the models of every root in declaration order.
func (f *File) Models() []*Model {
	var models []*Model
	for _, r := range f.Roots {
		models = append(models, r.Models...)
	}
	return models
}

// Animations returns the animations of every root in declaration order.
func (f *File) Animations() []*Animation {
	var anims []*Animation
	for _, r := range f.Roots {
		anims = append(anims, r.Animations...)
	}
	return anims
}

// Bones returns the skeleton bones, or nil if the model has no skeleton.
func (m *Model) Bones() []*Bone {
	if m.Skeleton == nil {
		return nil
	}
	return m.Skeleton.Bones
}

// MeshByHash returns the mesh with the given hash, or nil.
func (m *Model) MeshByHash(hash uint64) *Mesh {
	for _, mesh := range m.Meshes {
		if mesh.Hash == hash {
			return mesh
		}
	}
	return nil
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

// FaceCount returns the number of triangles.
func (m *Mesh) FaceCount() int {
	return len(m.Faces) / 3
}

// UVLayerCount returns the number of UV layers.
func (m *Mesh) UVLayerCount() int {
	return len(m.UVLayers)
}

// MaterialName returns the referenced material's name, or "".
func (m *Mesh) MaterialName() string {
	if m.Material == nil {
		return ""
	}
	return m.Material.Name
}

// Rotation returns the local rotation, defaulting to identity.
func (b *Bone) Rotation() [4]float32 {
	if b.LocalRotation == nil {
		return [4]float32{0, 0, 0, 1}
	}
	return *b.LocalRotation
}

// LocalScale returns the local scale, defaulting to (1, 1, 1).
func (b *Bone) LocalScale() [3]float32 {
	if b.Scale == nil {
		return [3]float32{1, 1, 1}
	}
	return *b.Scale
}
