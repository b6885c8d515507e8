package geo

import (
	"errors"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// ErrDegenerateQuad is returned when a corner quadrilateral is collapsed,
// collinear or self-intersecting and therefore unusable for pose solving.
var ErrDegenerateQuad = errors.New("degenerate corner quadrilateral")

// MinQuadArea is the smallest corner-quad area (in square pixels) accepted
// for pose solving. Below this, corner noise dominates the solution.
const MinQuadArea = 1.0

// QuadFromCorners builds a closed polygon ring from the four detection
// corners, preserving the detector's winding order.
func QuadFromCorners(corners [4]core.Point2) geom.Polygon {
	flat := make([]float64, 0, 10)
	for _, c := range corners {
		flat = append(flat, c.X, c.Y)
	}
	// close the ring
	flat = append(flat, corners[0].X, corners[0].Y)

	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	return geom.NewPolygon([]geom.LineString{ring})
}

// ValidateQuad rejects corner sets whose quadrilateral is degenerate:
// self-intersecting rings fail polygon validation, and collapsed or
// collinear corners produce a near-zero area.
func ValidateQuad(corners [4]core.Point2) error {
	quad := QuadFromCorners(corners)
	if err := quad.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}
	if quad.Area() < MinQuadArea {
		return fmt.Errorf("%w: area %.3f below minimum %.1f", ErrDegenerateQuad, quad.Area(), MinQuadArea)
	}
	return nil
}
