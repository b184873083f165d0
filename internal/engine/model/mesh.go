package model

import (
	"errors"
	"fmt"

	"github.com/Faultbox/cast-importer/pkg/cast"
	"github.com/Faultbox/cast-importer/pkg/math"
)

// Mesh assembly errors.
var (
	ErrInvalidFaces    = errors.New("invalid face buffer")
	ErrBufferLength    = errors.New("vertex buffer length mismatch")
	ErrWeightBuffer    = errors.New("weight buffer length mismatch")
	ErrWeightBone      = errors.New("weight references unknown bone")
	ErrUnknownBaseMesh = errors.New("blend shape base mesh was not assembled")
)

// Build assembles a renderable mesh from a Cast mesh node. Positions are
// multiplied by opts.Scale; tangents and bounds are always recomputed.
func Build(src *cast.Mesh, opts BuildOptions) (*Mesh, error) {
	n := src.VertexCount()
	if err := checkLength("normals", len(src.Normals), n); err != nil {
		return nil, err
	}
	if err := checkLength("colors", len(src.Colors), n); err != nil {
		return nil, err
	}
	for i, layer := range src.UVLayers {
		if err := checkLength(fmt.Sprintf("uv layer %d", i), len(layer), n); err != nil {
			return nil, err
		}
	}
	if len(src.Faces)%3 != 0 {
		return nil, fmt.Errorf("%w: %d indices is not a triangle list", ErrInvalidFaces, len(src.Faces))
	}
	for i, idx := range src.Faces {
		if int(idx) >= n {
			return nil, fmt.Errorf("%w: index %d references vertex %d of %d", ErrInvalidFaces, i, idx, n)
		}
	}

	name := src.Name
	if name == "" {
		name = opts.Name
	}
	material := src.MaterialName()
	if material == "" {
		material = name
	}

	m := &Mesh{
		Name:          name,
		Material:      material,
		Positions:     make([]math.Vec3, n),
		Indices:       append([]uint32(nil), src.Faces...),
		LightmapLayer: -1,
	}

	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	for i, p := range src.Positions {
		m.Positions[i] = math.Vec3FromArray(p).Scale(scale)
	}

	if opts.RecalculateNormals || len(src.Normals) == 0 {
		if len(m.Indices) > 0 {
			m.Normals = faceNormals(m.Positions, m.Indices)
		}
	} else {
		m.Normals = make([]math.Vec3, n)
		for i, v := range src.Normals {
			m.Normals[i] = math.Vec3FromArray(v)
		}
	}

	if len(src.Colors) > 0 {
		m.Colors = make([]Color, n)
		for i, c := range src.Colors {
			m.Colors[i] = UnpackColor(c)
		}
	}

	for _, layer := range src.UVLayers {
		uvs := make([]math.Vec2, n)
		for i, uv := range layer {
			uvs[i] = math.Vec2{X: uv[0], Y: uv[1]}
		}
		m.UVLayers = append(m.UVLayers, uvs)
	}

	if opts.GenerateLightmapUVs && n > 0 {
		m.LightmapLayer = len(m.UVLayers)
		m.UVLayers = append(m.UVLayers, lightmapUVs(m))
	}

	m.RecalculateTangents()
	m.RecalculateBounds()
	return m, nil
}

func checkLength(buffer string, got, want int) error {
	if got != 0 && got != want {
		return fmt.Errorf("%w: %s has %d entries, want %d", ErrBufferLength, buffer, got, want)
	}
	return nil
}

// UnpackColor converts a packed 0xRRGGBB value into a normalised opaque color.
func UnpackColor(v uint32) Color {
	return Color{
		R: float32((v>>16)&0xFF) / 255,
		G: float32((v>>8)&0xFF) / 255,
		B: float32(v&0xFF) / 255,
		A: 1,
	}
}

// faceNormals accumulates unnormalised face normals, which weights each face
// by its area, then normalises per vertex.
func faceNormals(positions []math.Vec3, indices []uint32) []math.Vec3 {
	normals := make([]math.Vec3, len(positions))
	for t := 0; t+2 < len(indices); t += 3 {
		i0, i1, i2 := indices[t], indices[t+1], indices[t+2]
		e1 := positions[i1].Sub(positions[i0])
		e2 := positions[i2].Sub(positions[i0])
		fn := e1.Cross(e2)
		normals[i0] = normals[i0].Add(fn)
		normals[i1] = normals[i1].Add(fn)
		normals[i2] = normals[i2].Add(fn)
	}
	for i := range normals {
		normals[i] = normalizeOrUp(normals[i])
	}
	return normals
}

// RecalculateTangents derives per-vertex tangents from UV layer 0. Vertices
// without usable texture derivatives get a tangent perpendicular to the
// normal.
func (m *Mesh) RecalculateTangents() {
	n := len(m.Positions)
	if n == 0 || len(m.Normals) != n {
		m.Tangents = nil
		return
	}

	tan := make([]math.Vec3, n)
	bitan := make([]math.Vec3, n)
	if len(m.UVLayers) > 0 && m.LightmapLayer != 0 {
		uv := m.UVLayers[0]
		for t := 0; t+2 < len(m.Indices); t += 3 {
			i0, i1, i2 := m.Indices[t], m.Indices[t+1], m.Indices[t+2]
			e1 := m.Positions[i1].Sub(m.Positions[i0])
			e2 := m.Positions[i2].Sub(m.Positions[i0])
			d1 := uv[i1].Sub(uv[i0])
			d2 := uv[i2].Sub(uv[i0])

			det := d1.X*d2.Y - d2.X*d1.Y
			if det > -1e-8 && det < 1e-8 {
				continue
			}
			r := 1 / det
			sdir := e1.Scale(d2.Y).Sub(e2.Scale(d1.Y)).Scale(r)
			tdir := e2.Scale(d1.X).Sub(e1.Scale(d2.X)).Scale(r)
			for _, i := range [3]uint32{i0, i1, i2} {
				tan[i] = tan[i].Add(sdir)
				bitan[i] = bitan[i].Add(tdir)
			}
		}
	}

	m.Tangents = make([]math.Vec4, n)
	for i := range m.Tangents {
		normal := m.Normals[i]
		// Gram-Schmidt orthogonalise.
		t := tan[i].Sub(normal.Scale(normal.Dot(tan[i])))
		if t.Length() < 1e-6 {
			t = perpendicular(normal)
		}
		t = t.Normalize()
		w := float32(1)
		if normal.Cross(t).Dot(bitan[i]) < 0 {
			w = -1
		}
		m.Tangents[i] = math.Vec4{t.X, t.Y, t.Z, w}
	}
}

// RecalculateBounds recomputes the bounding box from the positions.
func (m *Mesh) RecalculateBounds() {
	if len(m.Positions) == 0 {
		m.Bounds = Bounds{}
		return
	}
	b := Bounds{Min: m.Positions[0], Max: m.Positions[0]}
	for _, p := range m.Positions[1:] {
		updateBounds(&b, p)
	}
	m.Bounds = b
}

func updateBounds(b *Bounds, p math.Vec3) {
	b.Min = b.Min.Min(p)
	b.Max = b.Max.Max(p)
}

// lightmapUVs copies UV layer 0 fitted into the unit square, or projects
// positions onto the XZ plane when the mesh has no UVs.
func lightmapUVs(m *Mesh) []math.Vec2 {
	n := len(m.Positions)
	src := make([]math.Vec2, n)
	if len(m.UVLayers) > 0 {
		copy(src, m.UVLayers[0])
	} else {
		for i, p := range m.Positions {
			src[i] = math.Vec2{X: p.X, Y: p.Z}
		}
	}

	lo, hi := src[0], src[0]
	for _, uv := range src[1:] {
		lo = math.Vec2{X: min(lo.X, uv.X), Y: min(lo.Y, uv.Y)}
		hi = math.Vec2{X: max(hi.X, uv.X), Y: max(hi.Y, uv.Y)}
	}
	// Uniform fit keeps the aspect ratio.
	extent := max(hi.X-lo.X, hi.Y-lo.Y)
	if extent < 1e-8 {
		extent = 1
	}
	for i, uv := range src {
		d := uv.Sub(lo)
		src[i] = math.Vec2{X: d.X / extent, Y: d.Y / extent}
	}
	return src
}
