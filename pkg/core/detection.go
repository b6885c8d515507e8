// pkg/core/detection.go
package core

import (
	"time"

	"github.com/golang/geo/r3"
)

// MarkerDetection is one fiducial marker found in a single video frame:
// the decoded marker id plus the ordered quadrilateral of image-space
// corners. Detections are consumed within the frame that produced them and
// never retained across frames.
type MarkerDetection struct {
	ID           uint
	SessionID    uint
	MarkerID     int
	Corners      [4]Point2
	CaptureFrame uint
	Time         time.Time
}

// Eligible reports whether this detection participates in pose fusion given
// an offsets table. Detections without a configured offset may still be
// drawn for debugging but contribute nothing to the fused pose.
func (d *MarkerDetection) Eligible(offsets map[int]r3.Vector) bool {
	_, ok := offsets[d.MarkerID]
	return ok
}

// FrameState is the per-frame bookkeeping record: frame geometry, how many
// markers were detected and how many survived eligibility + solving, and
// how long the fusion pass took.
type FrameState struct {
	ID             uint
	SessionID      uint
	CaptureFrame   uint
	Time           time.Time
	Width          float64
	Height         float64
	DetectionCount int
	FusedCount     int
	FuseDurationUs int64
}

// FpsReport is a capture-side frames-per-second report.
type FpsReport struct {
	SessionID    uint
	CaptureFrame uint
	Time         time.Time
	Fps          float64
}
