// Package geo handles image-space corner geometry: remapping detector
// corner coordinates into the centered frame the pose solver expects, and
// rejecting degenerate corner quadrilaterals before they reach the solver.
package geo

import (
	"errors"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// ErrInvalidFrameSize is returned when a frame reports non-positive
// dimensions.
var ErrInvalidFrameSize = errors.New("invalid frame dimensions")

// NormalizeCorners remaps corners from image pixel space (origin top-left,
// y down) to the solver frame (origin at image center, y up):
// (x, y) -> (x - W/2, H/2 - y). It returns a fresh corner set; the input is
// never mutated, so normalization cannot be applied twice to the same
// detection.
func NormalizeCorners(corners [4]core.Point2, width, height float64) ([4]core.Point2, error) {
	if width <= 0 || height <= 0 {
		return [4]core.Point2{}, ErrInvalidFrameSize
	}

	var out [4]core.Point2
	for i, c := range corners {
		out[i] = core.Point2{
			X: c.X - width/2,
			Y: height/2 - c.Y,
		}
	}
	return out, nil
}
