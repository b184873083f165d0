package cast

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Cast document errors.
var (
	ErrEmptyDocument    = errors.New("cast document has no roots")
	ErrUnknownReference = errors.New("reference to unknown node hash")
	ErrDuplicateHash    = errors.New("duplicate node hash")
	ErrValueType        = errors.New("invalid key value buffer")
)

type rawFile struct {
	Roots []rawRoot `yaml:"roots"`
}

type rawRoot struct {
	Models     []rawModel     `yaml:"models"`
	Animations []rawAnimation `yaml:"animations"`
}

type rawModel struct {
	Name        string          `yaml:"name"`
	Skeleton    *rawSkeleton    `yaml:"skeleton"`
	Materials   []rawMaterial   `yaml:"materials"`
	Meshes      []rawMesh       `yaml:"meshes"`
	BlendShapes []rawBlendShape `yaml:"blend_shapes"`
}

type rawSkeleton struct {
	Bones []rawBone `yaml:"bones"`
}

type rawBone struct {
	Name     string      `yaml:"name"`
	Parent   *int32      `yaml:"parent"`
	Position [3]float32  `yaml:"position"`
	Rotation *[4]float32 `yaml:"rotation"`
	Scale    *[3]float32 `yaml:"scale"`
}

type rawMaterial struct {
	Hash uint64 `yaml:"hash"`
	Name string `yaml:"name"`
}

type rawMesh struct {
	Hash         uint64         `yaml:"hash"`
	Name         string         `yaml:"name"`
	Material     uint64         `yaml:"material"`
	Positions    [][3]float32   `yaml:"positions"`
	Normals      [][3]float32   `yaml:"normals"`
	Colors       []uint32       `yaml:"colors"`
	UVLayers     [][][2]float32 `yaml:"uv_layers"`
	Faces        []uint32       `yaml:"faces"`
	MaxInfluence int            `yaml:"max_influence"`
	WeightBones  []uint32       `yaml:"weight_bones"`
	WeightValues []float32      `yaml:"weight_values"`
}

type rawBlendShape struct {
	Name        string       `yaml:"name"`
	BaseShape   uint64       `yaml:"base_shape"`
	Positions   [][3]float32 `yaml:"positions"`
	WeightScale *float32     `yaml:"weight_scale"`
}

type rawAnimation struct {
	Name          string            `yaml:"name"`
	Framerate     float32           `yaml:"framerate"`
	Looping       bool              `yaml:"looping"`
	Curves        []rawCurve        `yaml:"curves"`
	Notifications []rawNotification `yaml:"notifications"`
}

type rawCurve struct {
	Node      string    `yaml:"node"`
	Property  string    `yaml:"property"`
	Mode      string    `yaml:"mode"`
	Keyframes []uint32  `yaml:"keyframes"`
	Values    KeyValues `yaml:"values"`
}

type rawNotification struct {
	Name      string   `yaml:"name"`
	Keyframes []uint32 `yaml:"keyframes"`
}

// Parse parses a YAML Cast document and resolves node references.
func Parse(data []byte) (*File, error) {
	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding cast document: %w", err)
	}
	if len(raw.Roots) == 0 {
		return nil, ErrEmptyDocument
	}

	f := &File{Roots: make([]*Root, len(raw.Roots))}
	for i := range raw.Roots {
		root, err := buildRoot(&raw.Roots[i])
		if err != nil {
			return nil, fmt.Errorf("root %d: %w", i, err)
		}
		f.Roots[i] = root
	}
	return f, nil
}

// Load parses a YAML Cast document from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cast file: %w", err)
	}
	return Parse(data)
}

func buildRoot(raw *rawRoot) (*Root, error) {
	root := &Root{}
	for i := range raw.Models {
		m, err := buildModel(&raw.Models[i])
		if err != nil {
			return nil, fmt.Errorf("model %d (%s): %w", i, raw.Models[i].Name, err)
		}
		root.Models = append(root.Models, m)
	}
	for i := range raw.Animations {
		root.Animations = append(root.Animations, buildAnimation(&raw.Animations[i]))
	}
	return root, nil
}

func buildModel(raw *rawModel) (*Model, error) {
	m := &Model{Name: raw.Name}

	if raw.Skeleton != nil {
		m.Skeleton = &Skeleton{Bones: make([]*Bone, len(raw.Skeleton.Bones))}
		for i, rb := range raw.Skeleton.Bones {
			parent := int32(-1)
			if rb.Parent != nil {
				parent = *rb.Parent
			}
			m.Skeleton.Bones[i] = &Bone{
				Name:          rb.Name,
				ParentIndex:   parent,
				LocalPosition: rb.Position,
				LocalRotation: rb.Rotation,
				Scale:         rb.Scale,
			}
		}
	}

	materials := make(map[uint64]*Material, len(raw.Materials))
	for _, rm := range raw.Materials {
		if _, ok := materials[rm.Hash]; ok && rm.Hash != 0 {
			return nil, fmt.Errorf("%w: material %#x", ErrDuplicateHash, rm.Hash)
		}
		mat := &Material{Hash: rm.Hash, Name: rm.Name}
		materials[rm.Hash] = mat
		m.Materials = append(m.Materials, mat)
	}

	meshes := make(map[uint64]*Mesh, len(raw.Meshes))
	for _, rm := range raw.Meshes {
		mesh := &Mesh{
			Hash:         rm.Hash,
			Name:         rm.Name,
			Positions:    rm.Positions,
			Normals:      rm.Normals,
			Colors:       rm.Colors,
			UVLayers:     rm.UVLayers,
			Faces:        rm.Faces,
			MaxInfluence: rm.MaxInfluence,
			WeightBones:  rm.WeightBones,
			WeightValues: rm.WeightValues,
		}
		if rm.Material != 0 {
			mat, ok := materials[rm.Material]
			if !ok {
				return nil, fmt.Errorf("%w: mesh %q material %#x", ErrUnknownReference, rm.Name, rm.Material)
			}
			mesh.Material = mat
		}
		if rm.Hash != 0 {
			if _, ok := meshes[rm.Hash]; ok {
				return nil, fmt.Errorf("%w: mesh %#x", ErrDuplicateHash, rm.Hash)
			}
			meshes[rm.Hash] = mesh
		}
		m.Meshes = append(m.Meshes, mesh)
	}

	for _, rb := range raw.BlendShapes {
		base, ok := meshes[rb.BaseShape]
		if !ok {
			return nil, fmt.Errorf("%w: blend shape %q base %#x", ErrUnknownReference, rb.Name, rb.BaseShape)
		}
		scale := float32(1)
		if rb.WeightScale != nil {
			scale = *rb.WeightScale
		}
		m.BlendShapes = append(m.BlendShapes, &BlendShape{
			Name:              rb.Name,
			BaseShape:         base,
			TargetPositions:   rb.Positions,
			TargetWeightScale: scale,
		})
	}

	return m, nil
}

func buildAnimation(raw *rawAnimation) *Animation {
	a := &Animation{
		Name:      raw.Name,
		Framerate: raw.Framerate,
		Looping:   raw.Looping,
	}
	for _, rc := range raw.Curves {
		mode := rc.Mode
		if mode == "" {
			mode = ModeAbsolute
		}
		a.Curves = append(a.Curves, &Curve{
			NodeName:        rc.Node,
			KeyPropertyName: rc.Property,
			Mode:            mode,
			KeyFrames:       rc.Keyframes,
			Values:          rc.Values,
		})
	}
	for _, rn := range raw.Notifications {
		a.Notifications = append(a.Notifications, &Notification{
			Name:      rn.Name,
			KeyFrames: rn.Keyframes,
		})
	}
	return a
}

// UnmarshalYAML decodes either a scalar list or a list of 4-vectors.
func (v *KeyValues) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("%w: line %d: expected a sequence", ErrValueType, node.Line)
	}
	if len(node.Content) == 0 {
		*v = KeyValues{}
		return nil
	}

	switch node.Content[0].Kind {
	case yaml.ScalarNode:
		var floats []float32
		if err := node.Decode(&floats); err != nil {
			return fmt.Errorf("%w: %w", ErrValueType, err)
		}
		*v = KeyValues{Floats: floats}
	case yaml.SequenceNode:
		var rows [][]float32
		if err := node.Decode(&rows); err != nil {
			return fmt.Errorf("%w: %w", ErrValueType, err)
		}
		vectors := make([][4]float32, len(rows))
		for i, row := range rows {
			if len(row) != 4 {
				return fmt.Errorf("%w: line %d: value %d has %d components, want 4",
					ErrValueType, node.Line, i, len(row))
			}
			copy(vectors[i][:], row)
		}
		*v = KeyValues{Vectors: vectors}
	default:
		return fmt.Errorf("%w: line %d: unsupported element kind", ErrValueType, node.Line)
	}
	return nil
}
