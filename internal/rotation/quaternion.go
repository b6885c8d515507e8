// Package rotation provides the small rotation-math layer used by pose
// fusion: unit quaternions, spherical linear interpolation, and conversion
// to and from 3x3 rotation matrices.
package rotation

import (
	"math"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Quaternion is a rotation quaternion w + xi + yj + zk. Fusion only ever
// works with unit quaternions; use Normalize after construction from
// untrusted input.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuat returns the identity rotation.
func IdentityQuat() Quaternion {
	return Quaternion{W: 1}
}

// Norm returns the quaternion's Euclidean norm.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalize returns the unit quaternion with the same orientation.
// The zero quaternion normalizes to identity.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 {
		return IdentityQuat()
	}
	return Quaternion{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// Dot returns the 4D dot product of two quaternions.
func (q Quaternion) Dot(r Quaternion) float64 {
	return q.W*r.W + q.X*r.X + q.Y*r.Y + q.Z*r.Z
}

// Neg returns the antipodal quaternion, which represents the same rotation.
func (q Quaternion) Neg() Quaternion {
	return Quaternion{W: -q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// FromMatrix converts an orthonormal 3x3 rotation matrix to a unit
// quaternion, branching on the largest diagonal term for numerical
// stability.
func FromMatrix(m core.Matrix3) Quaternion {
	var q Quaternion
	trace := m[0][0] + m[1][1] + m[2][2]

	switch {
	case trace > 0:
		s := math.Sqrt(trace+1.0) * 2
		q.W = 0.25 * s
		q.X = (m[2][1] - m[1][2]) / s
		q.Y = (m[0][2] - m[2][0]) / s
		q.Z = (m[1][0] - m[0][1]) / s
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := math.Sqrt(1.0+m[0][0]-m[1][1]-m[2][2]) * 2
		q.W = (m[2][1] - m[1][2]) / s
		q.X = 0.25 * s
		q.Y = (m[0][1] + m[1][0]) / s
		q.Z = (m[0][2] + m[2][0]) / s
	case m[1][1] > m[2][2]:
		s := math.Sqrt(1.0+m[1][1]-m[0][0]-m[2][2]) * 2
		q.W = (m[0][2] - m[2][0]) / s
		q.X = (m[0][1] + m[1][0]) / s
		q.Y = 0.25 * s
		q.Z = (m[1][2] + m[2][1]) / s
	default:
		s := math.Sqrt(1.0+m[2][2]-m[0][0]-m[1][1]) * 2
		q.W = (m[1][0] - m[0][1]) / s
		q.X = (m[0][2] + m[2][0]) / s
		q.Y = (m[1][2] + m[2][1]) / s
		q.Z = 0.25 * s
	}

	return q.Normalize()
}

// Matrix converts a unit quaternion back to a 3x3 rotation matrix. The
// result is orthonormal as long as the quaternion is unit length.
func (q Quaternion) Matrix() core.Matrix3 {
	xx, yy, zz := q.X*q.X, q.Y*q.Y, q.Z*q.Z
	xy, xz, yz := q.X*q.Y, q.X*q.Z, q.Y*q.Z
	wx, wy, wz := q.W*q.X, q.W*q.Y, q.W*q.Z

	return core.Matrix3{
		{1 - 2*(yy+zz), 2 * (xy - wz), 2 * (xz + wy)},
		{2 * (xy + wz), 1 - 2*(xx+zz), 2 * (yz - wx)},
		{2 * (xz - wy), 2 * (yz + wx), 1 - 2*(xx+yy)},
	}
}

// Slerp spherically interpolates from a to b with parameter t in [0,1],
// taking the shortest arc. t=0 yields a, t=1 yields b. Nearly parallel
// inputs fall back to normalized linear interpolation to avoid dividing by
// a vanishing sine.
func Slerp(a, b Quaternion, t float64) Quaternion {
	dot := a.Dot(b)

	// Same rotation, opposite hemisphere: flip to take the short way round.
	if dot < 0 {
		b = b.Neg()
		dot = -dot
	}

	const parallelEps = 0.999999
	if dot > parallelEps {
		return Quaternion{
			W: a.W + t*(b.W-a.W),
			X: a.X + t*(b.X-a.X),
			Y: a.Y + t*(b.Y-a.Y),
			Z: a.Z + t*(b.Z-a.Z),
		}.Normalize()
	}

	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta

	return Quaternion{
		W: wa*a.W + wb*b.W,
		X: wa*a.X + wb*b.X,
		Y: wa*a.Y + wb*b.Y,
		Z: wa*a.Z + wb*b.Z,
	}.Normalize()
}
