// Package skeleton rebuilds bone hierarchies from flat parent-index lists.
package skeleton

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Faultbox/cast-importer/pkg/cast"
	"github.com/Faultbox/cast-importer/pkg/math"
)

// ArmatureName is the name of the synthetic root every top-level bone
// attaches to.
const ArmatureName = "Joints"

// NoParent marks a bone attached directly to the armature root.
const NoParent = -1

// Skeleton errors.
var (
	ErrInvalidParent = errors.New("bone parent index out of range")
	ErrSkeletonCycle = errors.New("bone hierarchy contains a cycle")
)

// Node is one transform in the hierarchy. Parent and child links are arena
// indices into Skeleton.Bones.
type Node struct {
	Name          string
	LocalPosition math.Vec3
	LocalRotation math.Quat
	LocalScale    math.Vec3
	Parent        int // NoParent for armature children
	Children      []int
}

// Skeleton is an immutable bone arena under a synthetic armature root.
// It is safe for concurrent reads once Build returns.
type Skeleton struct {
	Armature Node
	Bones    []Node

	byName     map[string]int
	duplicates []string
	worlds     []math.Mat4
	bindPoses  []math.Mat4
}

// Build creates the hierarchy in two passes: every node is allocated first,
// then parent links are wired by index, so parents may be declared after
// their children. Translations are multiplied by scale; rotation and scale
// are unit independent.
//
// Name lookup is last-write-wins: when two bones share a name, Lookup
// returns the later one and the name is reported by Duplicates.
func Build(bones []*cast.Bone, scale float32) (*Skeleton, error) {
	s := &Skeleton{
		Armature: Node{
			Name:          ArmatureName,
			LocalRotation: math.QuatIdentity(),
			LocalScale:    math.One(),
			Parent:        NoParent,
		},
		Bones:  make([]Node, len(bones)),
		byName: make(map[string]int, len(bones)),
	}

	for i, b := range bones {
		s.Bones[i] = Node{
			Name:          b.Name,
			LocalPosition: math.Vec3FromArray(b.LocalPosition).Scale(scale),
			LocalRotation: math.QuatFromArray(b.Rotation()),
			LocalScale:    math.Vec3FromArray(b.LocalScale()),
			Parent:        NoParent,
		}
		if _, ok := s.byName[b.Name]; ok {
			s.duplicates = append(s.duplicates, b.Name)
		}
		s.byName[b.Name] = i
	}

	for i, b := range bones {
		p := int(b.ParentIndex)
		switch {
		case p == NoParent:
			s.Armature.Children = append(s.Armature.Children, i)
		case p < NoParent || p >= len(bones):
			return nil, fmt.Errorf("%w: bone %d (%s) parent %d of %d bones",
				ErrInvalidParent, i, b.Name, p, len(bones))
		default:
			s.Bones[i].Parent = p
			s.Bones[p].Children = append(s.Bones[p].Children, i)
		}
	}

	if err := s.computeWorlds(); err != nil {
		return nil, err
	}
	s.computeBindPoses()
	return s, nil
}

// computeWorlds resolves every bone's model-space matrix, failing on any
// parent chain that does not terminate at the armature root.
func (s *Skeleton) computeWorlds() error {
	const (
		unvisited = iota
		visiting
		done
	)

	s.worlds = make([]math.Mat4, len(s.Bones))
	state := make([]uint8, len(s.Bones))
	armature := s.armatureWorld()

	var chain []int
	for i := range s.Bones {
		chain = chain[:0]
		for cur := i; cur != NoParent && state[cur] != done; cur = s.Bones[cur].Parent {
			if state[cur] == visiting {
				return fmt.Errorf("%w: bone %d (%s)", ErrSkeletonCycle, cur, s.Bones[cur].Name)
			}
			state[cur] = visiting
			chain = append(chain, cur)
		}

		// Resolve from the topmost unresolved ancestor down.
		for j := len(chain) - 1; j >= 0; j-- {
			idx := chain[j]
			parent := armature
			if p := s.Bones[idx].Parent; p != NoParent {
				parent = s.worlds[p]
			}
			n := &s.Bones[idx]
			s.worlds[idx] = parent.Mul(math.Compose(n.LocalPosition, n.LocalRotation, n.LocalScale))
			state[idx] = done
		}
	}
	return nil
}

// computeBindPoses derives bone.worldToLocal * armature.localToWorld.
func (s *Skeleton) computeBindPoses() {
	armature := s.armatureWorld()
	s.bindPoses = make([]math.Mat4, len(s.Bones))
	for i, w := range s.worlds {
		s.bindPoses[i] = w.Inverse().Mul(armature)
	}
}

func (s *Skeleton) armatureWorld() math.Mat4 {
	a := &s.Armature
	return math.Compose(a.LocalPosition, a.LocalRotation, a.LocalScale)
}

// Len returns the number of bones.
func (s *Skeleton) Len() int {
	return len(s.Bones)
}

// Bone returns the node at arena index i.
func (s *Skeleton) Bone(i int) Node {
	return s.Bones[i]
}

// Lookup returns the index of the bone with the given name.
func (s *Skeleton) Lookup(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Duplicates returns bone names declared more than once, in order.
func (s *Skeleton) Duplicates() []string {
	return s.duplicates
}

// Roots returns the indices of bones attached to the armature root.
func (s *Skeleton) Roots() []int {
	return s.Armature.Children
}

// Path returns the slash-delimited path of bone i from the topmost bone,
// excluding the armature root.
func (s *Skeleton) Path(i int) string {
	var parts []string
	for cur := i; cur != NoParent; cur = s.Bones[cur].Parent {
		parts = append(parts, s.Bones[cur].Name)
	}
	for l, r := 0, len(parts)-1; l < r; l, r = l+1, r-1 {
		parts[l], parts[r] = parts[r], parts[l]
	}
	return strings.Join(parts, "/")
}

// Paths returns the path of every bone in arena order.
func (s *Skeleton) Paths() []string {
	paths := make([]string, len(s.Bones))
	for i := range s.Bones {
		paths[i] = s.Path(i)
	}
	return paths
}

// World returns the model-space matrix of bone i.
func (s *Skeleton) World(i int) math.Mat4 {
	return s.worlds[i]
}

// BindPoses returns a copy of the bind matrices, one per bone in arena order.
func (s *Skeleton) BindPoses() []math.Mat4 {
	return slices.Clone(s.bindPoses)
}
