// Package animation rebuilds keyframed transform curves and timed events
// from Cast animation nodes.
package animation

import (
	"cmp"
	"fmt"
	"slices"
)

// Target is the transform property group a curve animates.
type Target int

const (
	TargetPosition Target = iota
	TargetRotation
	TargetScale
)

// String returns the host property name of the target.
func (t Target) String() string {
	switch t {
	case TargetPosition:
		return "localPosition"
	case TargetRotation:
		return "localRotation"
	case TargetScale:
		return "localScale"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// Keyframe is one timed sample. Tangents are flat hints.
type Keyframe struct {
	Time       float32 // Seconds
	Value      float32
	InTangent  float32
	OutTangent float32
}

// Curve animates one component of one transform property at a bone path.
type Curve struct {
	Path      string
	Target    Target
	Component int // 0..2 for position and scale, 0..3 (x, y, z, w) for rotation
	Keys      []Keyframe
}

// Property returns the channel name, for example "localRotation.w".
func (c *Curve) Property() string {
	return c.Target.String() + "." + string("xyzw"[c.Component])
}

// Duration returns the latest key time.
func (c *Curve) Duration() float32 {
	var d float32
	for _, k := range c.Keys {
		d = max(d, k.Time)
	}
	return d
}

// Sorted returns the keys in time order. Keys sharing a time keep their
// declaration order. Keys is returned as is when already ordered.
func (c *Curve) Sorted() []Keyframe {
	byTime := func(a, b Keyframe) int { return cmp.Compare(a.Time, b.Time) }
	if slices.IsSortedFunc(c.Keys, byTime) {
		return c.Keys
	}
	keys := slices.Clone(c.Keys)
	slices.SortStableFunc(keys, byTime)
	return keys
}

// Evaluate samples the curve at time t with linear interpolation, holding
// the first and last values outside the keyed range.
func (c *Curve) Evaluate(t float32) float32 {
	keys := c.Sorted()
	if len(keys) == 0 {
		return 0
	}
	if len(keys) == 1 {
		return keys[0].Value
	}

	// Find surrounding keyframes
	var prev, next int
	for i := range keys {
		if keys[i].Time > t {
			next = i
			break
		}
		prev = i
		next = i
	}

	if prev == next {
		return keys[prev].Value
	}

	k0 := keys[prev]
	k1 := keys[next]
	f := float32(0)
	if k1.Time != k0.Time {
		f = (t - k0.Time) / (k1.Time - k0.Time)
	}
	return k0.Value + f*(k1.Value-k0.Value)
}
