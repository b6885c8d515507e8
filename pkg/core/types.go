// pkg/core/types.go
package core

import "github.com/golang/geo/r3"

// Point2 represents a 2D coordinate in image space (origin top-left,
// y increasing downward) or in the centered solver frame after normalization.
type Point2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Matrix3 is a row-major 3x3 matrix. Rotation matrices stored here are
// always orthonormal; they are rebuilt from unit quaternions, never averaged
// element-wise.
type Matrix3 [3][3]float64

// Identity returns the 3x3 identity matrix.
func Identity() Matrix3 {
	return Matrix3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// MulVec applies the matrix to a vector.
func (m Matrix3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Transpose returns the transposed matrix. For orthonormal rotations this is
// the inverse.
func (m Matrix3) Transpose() Matrix3 {
	var t Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i][j] = m[j][i]
		}
	}
	return t
}
