// pkg/core/session.go
package core

import (
	"time"

	"github.com/golang/geo/r3"
)

// Fusion policy names. FusionFirstOnly matches the browser viewer's
// long-standing behavior of truncating the detection list to its first
// element before fusing; FusionAverageAll fuses every eligible marker.
const (
	FusionFirstOnly  = "first-only"
	FusionAverageAll = "average-all"
)

// DefaultMarkerHeightMm is the vertical spacing between stacked marker
// pages (US letter height in millimeters), used to derive default offsets
// when a session configures marker ids without explicit offsets.
const DefaultMarkerHeightMm = 279.4

// Session describes one tracking session: the capture client, the marker
// configuration, and the fusion settings. The offsets table is configured
// once at session start and is immutable thereafter.
type Session struct {
	ID              uint
	Name            string
	StartTime       time.Time
	DetectorName    string
	DetectorVersion string
	TrackerVersion  string

	// MarkerSizeMm is the physical marker edge length handed to the solver.
	MarkerSizeMm float64

	// FrameWidth/FrameHeight are the capture dimensions announced at
	// session start. Individual frames may override them.
	FrameWidth  float64
	FrameHeight float64

	// Offsets maps marker id to that marker's position in the shared world
	// frame, relative to the reference origin.
	Offsets map[int]r3.Vector

	FusionPolicy string
	ApplyOffsets bool
}

// DeriveOffsets builds the default offsets table for a vertical stack of
// marker pages: marker i sits i*heightMm above the origin along Y.
func DeriveOffsets(markerIDs []int, heightMm float64) map[int]r3.Vector {
	if heightMm == 0 {
		heightMm = DefaultMarkerHeightMm
	}
	offsets := make(map[int]r3.Vector, len(markerIDs))
	for i, id := range markerIDs {
		offsets[id] = r3.Vector{X: 0, Y: float64(i) * heightMm, Z: 0}
	}
	return offsets
}

// SessionPerf is a periodic service-health snapshot recorded by the monitor.
type SessionPerf struct {
	Time                time.Time
	SessionID           uint
	FramesProcessed     uint
	PosesFused          uint
	DetectionsSeen      uint
	QueueDetections     uint16
	QueuePoses          uint16
	QueueFrames         uint16
	LastWriteDurationMs float32
	LastFuseDurationUs  int64
	CaptureFps          float64
}

// UploadMetadata accompanies an exported session file uploaded to the
// viewer frontend.
type UploadMetadata struct {
	SessionName     string
	DetectorName    string
	DurationSeconds float64
	Tag             string
}
