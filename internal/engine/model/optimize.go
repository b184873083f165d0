package model

import (
	"fmt"
	"strings"
)

// OptimizeFlags selects index and vertex reordering passes.
type OptimizeFlags uint8

const (
	OptimizePolygonOrder OptimizeFlags = 1 << iota
	OptimizeVertexOrder

	OptimizeNone       OptimizeFlags = 0
	OptimizeEverything OptimizeFlags = OptimizePolygonOrder | OptimizeVertexOrder
)

// String returns the configuration name of the flags.
func (f OptimizeFlags) String() string {
	switch f {
	case OptimizeNone:
		return "none"
	case OptimizePolygonOrder:
		return "polygonOrder"
	case OptimizeVertexOrder:
		return "vertexOrder"
	case OptimizeEverything:
		return "everything"
	default:
		return fmt.Sprintf("OptimizeFlags(%d)", uint8(f))
	}
}

// ParseOptimizeFlags parses a configuration name, case-insensitively.
func ParseOptimizeFlags(s string) (OptimizeFlags, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return OptimizeNone, nil
	case "polygonorder", "polygon", "index":
		return OptimizePolygonOrder, nil
	case "vertexorder", "vertex":
		return OptimizeVertexOrder, nil
	case "everything", "both", "all":
		return OptimizeEverything, nil
	default:
		return 0, fmt.Errorf("unknown mesh optimization %q", s)
	}
}

// cacheSize approximates a post-transform vertex cache.
const cacheSize = 16

// Optimize reorders triangles and/or vertices of m without changing what
// it renders. Vertex reordering permutes every per-vertex buffer in lockstep,
// including skin influences and morph targets, so it must run after skin
// binding and blend shape grouping.
func Optimize(m *Mesh, flags OptimizeFlags) {
	if flags&OptimizePolygonOrder != 0 {
		optimizePolygons(m)
	}
	if flags&OptimizeVertexOrder != 0 {
		optimizeVertices(m)
	}
}

// optimizePolygons greedily emits, after each triangle, the pending triangle
// sharing the most vertices with a small FIFO of recently used vertices.
func optimizePolygons(m *Mesh) {
	triCount := len(m.Indices) / 3
	if triCount < 2 {
		return
	}

	adjacency := make([][]int, m.VertexCount())
	for t := 0; t < triCount; t++ {
		for _, v := range m.Indices[t*3 : t*3+3] {
			adjacency[v] = append(adjacency[v], t)
		}
	}

	emitted := make([]bool, triCount)
	out := make([]uint32, 0, len(m.Indices))
	var cache []uint32
	inCache := func(v uint32) bool {
		for _, c := range cache {
			if c == v {
				return true
			}
		}
		return false
	}

	next := 0 // lowest triangle that may still be pending
	for len(out) < triCount*3 {
		best, bestScore := -1, 0
		for _, v := range cache {
			for _, t := range adjacency[v] {
				if emitted[t] {
					continue
				}
				score := 0
				for _, w := range m.Indices[t*3 : t*3+3] {
					if inCache(w) {
						score++
					}
				}
				if score > bestScore || (score == bestScore && t < best) {
					best, bestScore = t, score
				}
			}
		}
		if best < 0 {
			for emitted[next] {
				next++
			}
			best = next
		}

		emitted[best] = true
		tri := m.Indices[best*3 : best*3+3]
		out = append(out, tri...)
		for _, v := range tri {
			if inCache(v) {
				continue
			}
			cache = append(cache, v)
			if len(cache) > cacheSize {
				cache = cache[1:]
			}
		}
	}
	m.Indices = out
}

// optimizeVertices renumbers vertices by first use in the index buffer.
// Unreferenced vertices keep their relative order at the end.
func optimizeVertices(m *Mesh) {
	n := m.VertexCount()
	if n == 0 {
		return
	}

	remap := make([]int, n) // old -> new
	for i := range remap {
		remap[i] = -1
	}
	order := make([]int, 0, n) // new -> old
	for _, idx := range m.Indices {
		if remap[idx] < 0 {
			remap[idx] = len(order)
			order = append(order, int(idx))
		}
	}
	for old := range remap {
		if remap[old] < 0 {
			remap[old] = len(order)
			order = append(order, old)
		}
	}

	for i, idx := range m.Indices {
		m.Indices[i] = uint32(remap[idx])
	}
	m.Positions = permute(m.Positions, order)
	m.Normals = permute(m.Normals, order)
	m.Tangents = permute(m.Tangents, order)
	m.Colors = permute(m.Colors, order)
	for i := range m.UVLayers {
		m.UVLayers[i] = permute(m.UVLayers[i], order)
	}
	for _, t := range m.MorphTargets {
		t.Positions = permute(t.Positions, order)
		t.NormalDeltas = permute(t.NormalDeltas, order)
		t.TangentDeltas = permute(t.TangentDeltas, order)
	}
	if s := m.Skin; s != nil {
		influences := make([]Influence, len(s.Influences))
		for newIdx, old := range order {
			copy(influences[newIdx*s.MaxInfluence:], s.Vertex(old))
		}
		s.Influences = influences
	}
}

func permute[T any](values []T, order []int) []T {
	if len(values) == 0 {
		return values
	}
	out := make([]T, len(values))
	for newIdx, old := range order {
		out[newIdx] = values[old]
	}
	return out
}
