package animation

import (
	"errors"
	"fmt"

	"github.com/Faultbox/cast-importer/internal/engine/skeleton"
	"github.com/Faultbox/cast-importer/pkg/cast"
	"github.com/Faultbox/cast-importer/pkg/math"
)

// Animation errors. ErrUnknownProperty, ErrUnresolvedBone and ErrUnknownMode
// are only reported through warnings.
var (
	ErrUnknownProperty  = errors.New("unknown curve property")
	ErrUnresolvedBone   = errors.New("curve targets an unknown bone")
	ErrUnknownMode      = errors.New("unknown curve mode")
	ErrKeyframeMismatch = errors.New("keyframe and value buffers do not pair up")
	ErrInvalidFrameRate = errors.New("frame rate must be positive")
)

// Mode says how stored curve values relate to the bind pose.
type Mode int

const (
	// ModeAbsolute values are final channel values.
	ModeAbsolute Mode = iota
	// ModeRelative values are composed with the bind pose value.
	ModeRelative
)

// ParseMode parses a Cast curve mode. An empty mode is absolute.
func ParseMode(s string) (Mode, error) {
	switch s {
	case cast.ModeAbsolute, "":
		return ModeAbsolute, nil
	case cast.ModeRelative:
		return ModeRelative, nil
	default:
		return ModeAbsolute, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Property is a Cast curve property tag.
type Property int

const (
	PropertyRotation Property = iota
	PropertyTranslateX
	PropertyTranslateY
	PropertyTranslateZ
	PropertyScaleX
	PropertyScaleY
	PropertyScaleZ
)

type propertyInfo struct {
	tag       string
	target    Target
	component int // Axis for scalar properties; unused for rotation
}

// properties is the dispatch table from property to channel.
var properties = [...]propertyInfo{
	PropertyRotation:   {"rq", TargetRotation, 0},
	PropertyTranslateX: {"tx", TargetPosition, 0},
	PropertyTranslateY: {"ty", TargetPosition, 1},
	PropertyTranslateZ: {"tz", TargetPosition, 2},
	PropertyScaleX:     {"sx", TargetScale, 0},
	PropertyScaleY:     {"sy", TargetScale, 1},
	PropertyScaleZ:     {"sz", TargetScale, 2},
}

// String returns the Cast tag of the property.
func (p Property) String() string {
	if p < 0 || int(p) >= len(properties) {
		return fmt.Sprintf("Property(%d)", int(p))
	}
	return properties[p].tag
}

// ParseProperty maps a Cast property tag to a Property.
func ParseProperty(tag string) (Property, error) {
	for p, info := range properties {
		if info.tag == tag {
			return Property(p), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProperty, tag)
}

// Event is a named marker at a point in the clip.
type Event struct {
	Name string
	Time float32 // Seconds
}

// Clip is a reconstructed animation.
type Clip struct {
	Name      string
	FrameRate float32
	Loop      bool
	Legacy    bool
	Curves    []*Curve
	Events    []Event
}

// Duration returns the time of the last key of any curve.
func (c *Clip) Duration() float32 {
	var d float32
	for _, curve := range c.Curves {
		d = max(d, curve.Duration())
	}
	return d
}

// Options controls clip reconstruction.
type Options struct {
	// SourceName names the clip when the animation node has no name.
	SourceName string
	// Legacy marks the clip for a legacy animation system.
	Legacy bool
}

// Warning reports a curve that was skipped or reinterpreted.
type Warning struct {
	Animation string
	Curve     int
	Node      string
	Property  string
	Err       error
}

func (w Warning) Error() string {
	return fmt.Sprintf("animation %q curve %d (%s.%s): %v", w.Animation, w.Curve, w.Node, w.Property, w.Err)
}

func (w Warning) Unwrap() error {
	return w.Err
}

// Build reconstructs a clip against skel. Curves with an unknown property or
// an unknown target bone are skipped with a warning. Mismatched buffers
// fail the whole animation.
func Build(src *cast.Animation, skel *skeleton.Skeleton, opts Options) (*Clip, []Warning, error) {
	if src.Framerate <= 0 {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFrameRate, src.Framerate)
	}

	clip := &Clip{
		Name:      src.Name,
		FrameRate: src.Framerate,
		Loop:      src.Looping,
		Legacy:    opts.Legacy,
	}
	if clip.Name == "" {
		clip.Name = opts.SourceName
	}

	var warnings []Warning
	warn := func(i int, c *cast.Curve, err error) {
		warnings = append(warnings, Warning{
			Animation: clip.Name,
			Curve:     i,
			Node:      c.NodeName,
			Property:  c.KeyPropertyName,
			Err:       err,
		})
	}

	for i, c := range src.Curves {
		prop, err := ParseProperty(c.KeyPropertyName)
		if err != nil {
			warn(i, c, err)
			continue
		}
		mode, err := ParseMode(c.Mode)
		if err != nil {
			warn(i, c, err)
		}

		bone := -1
		if skel != nil {
			if idx, ok := skel.Lookup(c.NodeName); ok {
				bone = idx
			}
		}
		if bone < 0 {
			warn(i, c, fmt.Errorf("%w: %q", ErrUnresolvedBone, c.NodeName))
			continue
		}

		curves, err := buildCurves(c, prop, mode, skel, bone, src.Framerate)
		if err != nil {
			return nil, warnings, fmt.Errorf("curve %d (%s.%s): %w", i, c.NodeName, c.KeyPropertyName, err)
		}
		clip.Curves = append(clip.Curves, curves...)
	}

	clip.Events = Events(src.Notifications, src.Framerate)
	return clip, warnings, nil
}

// buildCurves expands one Cast curve into channel curves. The bone path is
// rebuilt for every curve.
func buildCurves(c *cast.Curve, prop Property, mode Mode, skel *skeleton.Skeleton, bone int, rate float32) ([]*Curve, error) {
	info := properties[prop]
	path := skel.Path(bone)
	bind := skel.Bone(bone)
	n := len(c.KeyFrames)

	if prop == PropertyRotation {
		if len(c.Values.Vectors) != n || len(c.Values.Floats) != 0 {
			return nil, fmt.Errorf("%w: %d keyframes, %d quaternion values",
				ErrKeyframeMismatch, n, len(c.Values.Vectors))
		}
		curves := make([]*Curve, 4)
		for comp := range curves {
			curves[comp] = &Curve{Path: path, Target: info.target, Component: comp, Keys: make([]Keyframe, n)}
		}
		inv := bind.LocalRotation.Inverse()
		for k, frame := range c.KeyFrames {
			q := math.QuatFromArray(c.Values.Vectors[k])
			if mode == ModeRelative {
				q = inv.Mul(q)
			}
			t := float32(frame) / rate
			for comp, curve := range curves {
				curve.Keys[k] = Keyframe{Time: t, Value: q.Component(comp)}
			}
		}
		return curves, nil
	}

	if len(c.Values.Floats) != n || len(c.Values.Vectors) != 0 {
		return nil, fmt.Errorf("%w: %d keyframes, %d scalar values",
			ErrKeyframeMismatch, n, len(c.Values.Floats))
	}
	var offset float32
	if mode == ModeRelative {
		switch info.target {
		case TargetPosition:
			offset = bind.LocalPosition.Axis(info.component)
		case TargetScale:
			offset = bind.LocalScale.Axis(info.component)
		}
	}
	curve := &Curve{Path: path, Target: info.target, Component: info.component, Keys: make([]Keyframe, n)}
	for k, frame := range c.KeyFrames {
		curve.Keys[k] = Keyframe{Time: float32(frame) / rate, Value: c.Values.Floats[k] + offset}
	}
	return []*Curve{curve}, nil
}

// Events expands notification markers into timed events in declaration
// order. Duplicate and unsorted times are kept.
func Events(notifications []*cast.Notification, frameRate float32) []Event {
	var events []Event
	for _, n := range notifications {
		for _, frame := range n.KeyFrames {
			events = append(events, Event{Name: n.Name, Time: float32(frame) / frameRate})
		}
	}
	return events
}
