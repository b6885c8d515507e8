package rotation

import (
	"math"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Euler holds extracted rotation angles in radians.
type Euler struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

// EulerFromMatrix extracts euler angles from a rotation matrix using the
// renderer conventions: the virtual object pitches with -asin(-R[1][2]),
// yaws with -atan2(R[0][2], R[2][2]) and rolls with atan2(R[1][0], R[1][1]).
// These match the solver's camera frame, where the renderer additionally
// inverts the z translation axis (see renderer.TranslationForScene).
func EulerFromMatrix(m core.Matrix3) Euler {
	return Euler{
		Pitch: -math.Asin(-m[1][2]),
		Yaw:   -math.Atan2(m[0][2], m[2][2]),
		Roll:  math.Atan2(m[1][0], m[1][1]),
	}
}
