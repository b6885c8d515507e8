// pkg/core/pose.go
package core

import (
	"time"

	"github.com/golang/geo/r3"
)

// SinglePose is the camera-relative pose solved from one marker's corners in
// isolation: a 3x3 orthonormal rotation and a translation in marker units
// (millimeters). Ephemeral - recomputed every frame per visible marker.
type SinglePose struct {
	Rotation    Matrix3
	Translation r3.Vector
}

// FusedPose is the single authoritative camera pose for one frame, combined
// across every eligible marker visible in that frame. Rotation is rebuilt
// from a unit quaternion so it is always orthonormal.
type FusedPose struct {
	ID           uint
	SessionID    uint
	CaptureFrame uint
	Time         time.Time
	Rotation     Matrix3
	Translation  r3.Vector

	// MarkerCount is how many markers contributed to this pose.
	MarkerCount int
}
