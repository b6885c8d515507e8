// Package solver recovers a single marker's 3D pose from its 2D corners
// and known physical size. The pipeline depends only on the Solver
// interface; Homography is the built-in implementation, and capture
// clients running their own solver can inject theirs instead.
package solver

import (
	"errors"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// ErrDegenerateCorners is returned when the corner geometry carries too
// little perspective information for the solver to converge (collinear or
// collapsed corners).
var ErrDegenerateCorners = errors.New("degenerate corners, pose solve did not converge")

// Solver recovers a single marker's camera-relative pose. Corners must
// already be normalized to the centered solver frame (see geo.NormalizeCorners);
// markerSizeMm is the physical edge length of the printed marker.
//
// Solve is synchronous and non-blocking; the per-frame pipeline calls it
// once per eligible marker.
type Solver interface {
	Solve(corners [4]core.Point2, markerSizeMm float64) (core.SinglePose, error)
}

// Func adapts a plain function to the Solver interface.
type Func func(corners [4]core.Point2, markerSizeMm float64) (core.SinglePose, error)

// Solve implements Solver.
func (f Func) Solve(corners [4]core.Point2, markerSizeMm float64) (core.SinglePose, error) {
	return f(corners, markerSizeMm)
}
