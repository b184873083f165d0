// Package model assembles renderable meshes, skin bindings and morph targets
// from Cast mesh nodes.
package model

import "github.com/Faultbox/cast-importer/pkg/math"

// Color is a normalised RGBA vertex color.
type Color struct {
	R, G, B, A float32
}

// Bounds holds the axis-aligned bounding box of a mesh.
type Bounds struct {
	Min math.Vec3
	Max math.Vec3
}

// Center returns the midpoint of the box.
func (b Bounds) Center() math.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the extent of the box on each axis.
func (b Bounds) Size() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// Mesh holds assembled geometry ready for a host renderer. Every per-vertex
// slice is either empty or VertexCount long.
type Mesh struct {
	Name     string
	Material string

	Positions []math.Vec3
	Normals   []math.Vec3
	Tangents  []math.Vec4 // xyz direction, w handedness
	Colors    []Color
	UVLayers  [][]math.Vec2
	Indices   []uint32

	// LightmapLayer is the UV layer index holding generated lightmap
	// coordinates, or -1.
	LightmapLayer int

	Bounds       Bounds
	Skin         *Skin
	MorphTargets []*MorphTarget
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Positions)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// BuildOptions contains options for mesh assembly.
type BuildOptions struct {
	// Scale multiplies every position.
	Scale float32
	// RecalculateNormals discards source normals and derives them from faces.
	RecalculateNormals bool
	// GenerateLightmapUVs appends a lightmap UV layer.
	GenerateLightmapUVs bool
	// Name is used when the source mesh has no name.
	Name string
}
