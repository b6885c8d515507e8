package streaming

import (
	"encoding/json"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Message type constants for the tracking protocol. The same envelope
// format is used in both directions: capture clients send start_session,
// frame, fps and end_session; the tracker streams add_detection,
// fused_pose and session_perf out to the viewer.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeFrame        = "frame"
	TypeFps          = "fps"
	TypeAddDetection = "add_detection"
	TypeFusedPose    = "fused_pose"
	TypeSessionPerf  = "session_perf"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session configuration announced by the
// capture client. Offsets come either explicit (id -> [x,y,z]) or as a
// marker id list plus page height, from which defaults are derived.
type StartSessionPayload struct {
	Name            string                `json:"name"`
	DetectorName    string                `json:"detectorName"`
	DetectorVersion string                `json:"detectorVersion"`
	MarkerSizeMm    float64               `json:"markerSizeMm"`
	FrameWidth      float64               `json:"frameWidth"`
	FrameHeight     float64               `json:"frameHeight"`
	Offsets         map[string][3]float64 `json:"offsets,omitempty"`
	MarkerIDs       []int                 `json:"markerIds,omitempty"`
	MarkerHeightMm  float64               `json:"markerHeightMm,omitempty"`
	FusionPolicy    string                `json:"fusionPolicy,omitempty"`
	ApplyOffsets    bool                  `json:"applyOffsets,omitempty"`
}

// FramePayload carries one frame's detections. Each detection is
// [id, [[x,y],[x,y],[x,y],[x,y]]] with corners in image-pixel space.
type FramePayload struct {
	CaptureFrame uint             `json:"captureFrame"`
	Width        float64          `json:"width"`
	Height       float64          `json:"height"`
	Detections   []FrameDetection `json:"detections"`
}

// FrameDetection is one detected marker on the wire.
type FrameDetection struct {
	ID      int           `json:"id"`
	Corners [4][2]float64 `json:"corners"`
}

// FpsPayload is the capture-side frame-rate report.
type FpsPayload struct {
	CaptureFrame uint    `json:"captureFrame"`
	Fps          float64 `json:"fps"`
}

// FusedPosePayload is the outbound pose message consumed by scene
// renderers. Rotation is the full 3x3 matrix; euler angles and the
// z-inverted translation are precomputed for renderers that want them
// (see rotation.EulerFromMatrix for the extraction conventions).
type FusedPosePayload struct {
	CaptureFrame uint         `json:"captureFrame"`
	Rotation     core.Matrix3 `json:"rotation"`
	Translation  [3]float64   `json:"translation"`
	Euler        [3]float64   `json:"euler"` // pitch, yaw, roll
	MarkerCount  int          `json:"markerCount"`
}
