package renderer

import (
	"github.com/golang/geo/r3"

	"github.com/ctralie/aruco2-fast/internal/rotation"
	"github.com/ctralie/aruco2-fast/pkg/core"
	"github.com/ctralie/aruco2-fast/pkg/streaming"
)

// PosePayload adapts a fused pose into the wire format scene renderers
// consume: the full rotation matrix, the z-inverted translation, and
// precomputed Euler angles for renderers that want them.
func PosePayload(p *core.FusedPose) streaming.FusedPosePayload {
	e := rotation.EulerFromMatrix(p.Rotation)
	t := TranslationForScene(p.Translation)
	return streaming.FusedPosePayload{
		CaptureFrame: p.CaptureFrame,
		Rotation:     p.Rotation,
		Translation:  [3]float64{t.X, t.Y, t.Z},
		Euler:        [3]float64{e.Pitch, e.Yaw, e.Roll},
		MarkerCount:  p.MarkerCount,
	}
}

// Publisher is a SceneRenderer that forwards poses over a transport
// instead of drawing them. The send function receives fully adapted
// payloads; CaptureFrame and MarkerCount are zero because UpdatePose
// carries only the geometric state.
type Publisher struct {
	send  func(streaming.FusedPosePayload) error
	scale float64
}

// NewPublisher creates a streaming-backed renderer.
func NewPublisher(send func(streaming.FusedPosePayload) error) *Publisher {
	return &Publisher{send: send, scale: 1}
}

// Publish forwards a full fused pose, keeping the frame number and marker
// count that UpdatePose's geometric signature cannot carry. Streaming
// backends use this path; UpdatePose remains for scale-aware renderers.
func (p *Publisher) Publish(pose *core.FusedPose) error {
	return p.send(PosePayload(pose))
}

// UpdatePose implements SceneRenderer.
func (p *Publisher) UpdatePose(scale float64, rot core.Matrix3, trans r3.Vector) error {
	p.scale = scale
	e := rotation.EulerFromMatrix(rot)
	t := TranslationForScene(trans)
	return p.send(streaming.FusedPosePayload{
		Rotation:    rot,
		Translation: [3]float64{t.X, t.Y, t.Z},
		Euler:       [3]float64{e.Pitch, e.Yaw, e.Roll},
	})
}
