package model

import "github.com/Faultbox/cast-importer/pkg/math"

// normalizeOrUp returns a unit vector in the same direction as v, or +Y when
// v is too short to have a direction.
func normalizeOrUp(v math.Vec3) math.Vec3 {
	if v.Length() < 0.0001 {
		return math.Vec3{Y: 1}
	}
	return v.Normalize()
}

// perpendicular returns some vector perpendicular to n.
func perpendicular(n math.Vec3) math.Vec3 {
	axis := math.Vec3{X: 1}
	if n.X > 0.9 || n.X < -0.9 {
		axis = math.Vec3{Y: 1}
	}
	return n.Cross(axis)
}
