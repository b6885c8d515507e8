// Package fuser combines the per-marker poses of one video frame into a
// single fused camera pose. Rotations are blended with a running
// spherical-linear-interpolation mean over unit quaternions; translations
// are arithmetically averaged. The result is the session's authoritative
// pose for that frame.
package fuser

import (
	"fmt"
	"log/slog"

	"github.com/golang/geo/r3"

	"github.com/ctralie/aruco2-fast/internal/geo"
	"github.com/ctralie/aruco2-fast/internal/rotation"
	"github.com/ctralie/aruco2-fast/internal/solver"
	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Config is the explicit, immutable session configuration for fusion.
// It replaces any notion of ambient per-session state: everything Fuse
// needs arrives through this struct and the call arguments.
type Config struct {
	// Offsets maps marker id to its world-frame offset. Only detections
	// whose id appears here are eligible for fusion.
	Offsets map[int]r3.Vector

	// MarkerSizeMm is the physical marker edge length passed to the solver.
	MarkerSizeMm float64

	// Policy selects between core.FusionFirstOnly (the detection list is
	// truncated to its first element before fusing) and true multi-marker
	// averaging (core.FusionAverageAll).
	Policy string

	// ApplyOffsets controls whether each marker's solved translation has
	// the fused-rotation-transformed offset subtracted before averaging.
	// The browser viewer reads and rotates offsets but never subtracts
	// them, so this defaults to false; calibration downstream may depend
	// on that.
	ApplyOffsets bool
}

// Validate checks the config for use at session start.
func (c Config) Validate() error {
	if len(c.Offsets) == 0 {
		return fmt.Errorf("fusion config: offsets table is empty")
	}
	if c.MarkerSizeMm <= 0 {
		return fmt.Errorf("fusion config: marker size must be positive, got %f", c.MarkerSizeMm)
	}
	switch c.Policy {
	case core.FusionFirstOnly, core.FusionAverageAll:
	default:
		return fmt.Errorf("fusion config: unknown policy %q", c.Policy)
	}
	return nil
}

// Fuser turns one frame's detections into at most one fused pose.
// It carries no mutable state between frames; the running quaternion and
// translation accumulators live only inside a single Fuse call.
type Fuser struct {
	cfg    Config
	solver solver.Solver
	logger *slog.Logger
}

// New creates a Fuser. The logger is only used for per-marker skip
// diagnostics at debug level.
func New(cfg Config, s solver.Solver, logger *slog.Logger) *Fuser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fuser{cfg: cfg, solver: s, logger: logger}
}

// Config returns the fuser's session configuration.
func (f *Fuser) Config() Config {
	return f.cfg
}

// Fuse processes one frame's detections and returns the fused pose, or
// ok=false when no eligible marker produced a usable pose. Callers must
// then leave the previously rendered pose unchanged rather than resetting
// to identity.
//
// Rotation fusion is an order-dependent running circular mean: the k-th
// solved marker is slerped into the accumulator with parameter 1/k.
// Reordering detections with distinct rotations changes the result; that
// is a documented property of this algorithm, not a defect.
func (f *Fuser) Fuse(detections []core.MarkerDetection, width, height float64) (core.FusedPose, bool) {
	if f.cfg.Policy == core.FusionFirstOnly && len(detections) > 1 {
		detections = detections[:1]
	}

	type solved struct {
		markerID int
		quat     rotation.Quaternion
		trans    r3.Vector
	}

	var poses []solved
	var fusedQuat rotation.Quaternion

	for _, det := range detections {
		if !det.Eligible(f.cfg.Offsets) {
			continue
		}

		normalized, err := geo.NormalizeCorners(det.Corners, width, height)
		if err != nil {
			f.logger.Debug("skipping detection, bad frame geometry", "markerId", det.MarkerID, "error", err)
			continue
		}
		if err := geo.ValidateQuad(normalized); err != nil {
			f.logger.Debug("skipping detection, degenerate quad", "markerId", det.MarkerID, "error", err)
			continue
		}

		pose, err := f.solver.Solve(normalized, f.cfg.MarkerSizeMm)
		if err != nil {
			// A failed solve excludes this marker from the frame; it is a
			// normal per-marker skip, not a pipeline error.
			f.logger.Debug("skipping detection, solver failed", "markerId", det.MarkerID, "error", err)
			continue
		}

		q := rotation.FromMatrix(pose.Rotation)
		k := len(poses) + 1
		if k == 1 {
			fusedQuat = q
		} else {
			fusedQuat = rotation.Slerp(fusedQuat, q, 1/float64(k))
		}

		poses = append(poses, solved{markerID: det.MarkerID, quat: q, trans: pose.Translation})
	}

	if len(poses) == 0 {
		return core.FusedPose{}, false
	}

	fusedRotation := fusedQuat.Matrix()

	// Second pass: average translations. Offsets are rotated into the
	// camera frame and, only when configured, subtracted from each
	// marker's translation.
	var sum r3.Vector
	for _, p := range poses {
		t := p.trans
		if f.cfg.ApplyOffsets {
			rotated := fusedRotation.MulVec(f.cfg.Offsets[p.markerID])
			t = t.Sub(rotated)
		}
		sum = sum.Add(t)
	}
	mean := sum.Mul(1 / float64(len(poses)))

	return core.FusedPose{
		Rotation:    fusedRotation,
		Translation: mean,
		MarkerCount: len(poses),
	}, true
}
