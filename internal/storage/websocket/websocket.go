package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ctralie/aruco2-fast/internal/renderer"
	"github.com/ctralie/aruco2-fast/pkg/core"
	"github.com/ctralie/aruco2-fast/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket to a live viewer. It
// implements storage.Backend but not storage.Uploadable: nothing is
// persisted locally, the viewer owns the data once acknowledged.
type Backend struct {
	conn *connection
	cfg  Config

	// pub adapts fused poses into the viewer's wire conventions before
	// they hit the connection.
	pub *renderer.Publisher
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	b := &Backend{
		conn: newConnection(slog.Default()),
		cfg:  cfg,
	}
	b.pub = renderer.NewPublisher(func(p streaming.FusedPosePayload) error {
		return b.sendEnvelope(streaming.TypeFusedPose, p)
	})
	return b
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, msgType, ackTimeout)
}

// StartSession announces the session configuration and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, startPayload(s))
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession() error {
	err := b.sendEnvelopeAndWait(streaming.TypeEndSession, nil)

	// Clear cached state regardless of error.
	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

func (b *Backend) RecordDetection(d *core.MarkerDetection) error {
	return b.sendEnvelope(streaming.TypeAddDetection, d)
}

// RecordFusedPose publishes the pose with precomputed euler angles and the
// z-inverted scene translation so the viewer can apply it directly.
func (b *Backend) RecordFusedPose(p *core.FusedPose) error {
	return b.pub.Publish(p)
}

func (b *Backend) RecordFrame(f *core.FrameState) error {
	return b.sendEnvelope(streaming.TypeFrame, f)
}

func (b *Backend) RecordFps(r *core.FpsReport) error {
	return b.sendEnvelope(streaming.TypeFps, streaming.FpsPayload{
		CaptureFrame: r.CaptureFrame,
		Fps:          r.Fps,
	})
}

func (b *Backend) RecordSessionPerf(p *core.SessionPerf) error {
	return b.sendEnvelope(streaming.TypeSessionPerf, p)
}

// startPayload converts a session back into the wire format announced by
// capture clients, with the offsets table made explicit.
func startPayload(s *core.Session) streaming.StartSessionPayload {
	offsets := make(map[string][3]float64, len(s.Offsets))
	for id, v := range s.Offsets {
		offsets[strconv.Itoa(id)] = [3]float64{v.X, v.Y, v.Z}
	}
	return streaming.StartSessionPayload{
		Name:            s.Name,
		DetectorName:    s.DetectorName,
		DetectorVersion: s.DetectorVersion,
		MarkerSizeMm:    s.MarkerSizeMm,
		FrameWidth:      s.FrameWidth,
		FrameHeight:     s.FrameHeight,
		Offsets:         offsets,
		FusionPolicy:    s.FusionPolicy,
		ApplyOffsets:    s.ApplyOffsets,
	}
}
