package solver

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Homography is the built-in planar pose solver. It estimates the
// marker-plane-to-image homography with a direct linear transform and
// decomposes it into a rotation and translation. Corners must be in the
// centered solver frame (y up); translations come out in the same units
// as markerSizeMm, with depth positive away from the camera.
type Homography struct {
	focalLengthPx float64
}

// NewHomography creates a solver for a pinhole camera with the given focal
// length in pixels.
func NewHomography(focalLengthPx float64) *Homography {
	return &Homography{focalLengthPx: focalLengthPx}
}

// minCornerArea is the smallest corner-quad area (in square pixels) for
// which the DLT system still has full rank.
const minCornerArea = 1e-6

// quadArea computes the shoelace area of the corner quadrilateral.
func quadArea(corners [4]core.Point2) float64 {
	area := 0.0
	for i := range corners {
		j := (i + 1) % 4
		area += corners[i].X*corners[j].Y - corners[j].X*corners[i].Y
	}
	return math.Abs(area) / 2
}

// Solve implements Solver.
func (h *Homography) Solve(corners [4]core.Point2, markerSizeMm float64) (core.SinglePose, error) {
	if h.focalLengthPx <= 0 || markerSizeMm <= 0 {
		return core.SinglePose{}, ErrDegenerateCorners
	}
	if quadArea(corners) < minCornerArea {
		// Collapsed or collinear corners make the DLT system rank
		// deficient: the SVD still returns a unit-norm nullspace vector,
		// but it no longer determines the homography.
		return core.SinglePose{}, ErrDegenerateCorners
	}

	// Marker model points on the z=0 plane, in the same order the detector
	// reports corners: top-left, top-right, bottom-right, bottom-left.
	half := markerSizeMm / 2
	model := [4][2]float64{
		{-half, half},
		{half, half},
		{half, -half},
		{-half, -half},
	}

	// DLT: each correspondence contributes two rows of the 8x9 system
	// A h = 0, with image coordinates normalized by the focal length.
	a := mat.NewDense(8, 9, nil)
	for i := 0; i < 4; i++ {
		x, y := model[i][0], model[i][1]
		u := corners[i].X / h.focalLengthPx
		v := corners[i].Y / h.focalLengthPx
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, -v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return core.SinglePose{}, ErrDegenerateCorners
	}
	var v mat.Dense
	svd.VTo(&v)

	// The homography is the right singular vector of the smallest singular
	// value, reshaped row-major.
	var hv [9]float64
	for i := range hv {
		hv[i] = v.At(i, 8)
	}

	h1 := r3.Vector{X: hv[0], Y: hv[3], Z: hv[6]}
	h2 := r3.Vector{X: hv[1], Y: hv[4], Z: hv[7]}
	h3 := r3.Vector{X: hv[2], Y: hv[5], Z: hv[8]}

	lambda := math.Sqrt(h1.Norm() * h2.Norm())
	if lambda < 1e-12 {
		return core.SinglePose{}, ErrDegenerateCorners
	}

	trans := h3.Mul(1 / lambda)
	if trans.Z == 0 {
		return core.SinglePose{}, ErrDegenerateCorners
	}
	// The nullspace vector's sign is arbitrary; pick the solution with the
	// marker in front of the camera.
	if trans.Z < 0 {
		h1, h2, trans = h1.Mul(-1), h2.Mul(-1), trans.Mul(-1)
	}

	r1 := h1.Mul(1 / lambda)
	r2 := h2.Mul(1 / lambda)
	r3v := r1.Cross(r2)

	rotation, err := nearestRotation(r1, r2, r3v)
	if err != nil {
		return core.SinglePose{}, err
	}

	return core.SinglePose{Rotation: rotation, Translation: trans}, nil
}

// nearestRotation projects the column triplet onto the closest proper
// rotation matrix via SVD (R = U Vt, with the last column of U flipped when
// the product would reflect).
func nearestRotation(c1, c2, c3 r3.Vector) (core.Matrix3, error) {
	m := mat.NewDense(3, 3, []float64{
		c1.X, c2.X, c3.X,
		c1.Y, c2.Y, c3.Y,
		c1.Z, c2.Z, c3.Z,
	})

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return core.Matrix3{}, ErrDegenerateCorners
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	var out core.Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r.At(i, j)
		}
	}
	return out, nil
}
