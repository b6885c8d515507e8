package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctralie/aruco2-fast/pkg/core"
	"github.com/ctralie/aruco2-fast/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and sends acks for start_session/end_session.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			// Ack start_session and end_session.
			if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
				ack := streaming.AckMessage{Type: "ack", For: env.Type}
				data, _ := json.Marshal(ack)
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSession() *core.Session {
	return &core.Session{
		Name:         "desk-test",
		DetectorName: "js-aruco2",
		MarkerSizeMm: 53.0,
		FrameWidth:   640,
		FrameHeight:  480,
		Offsets: map[int]r3.Vector{
			0: {},
			1: {Y: core.DefaultMarkerHeightMm},
		},
		FusionPolicy: core.FusionAverageAll,
	}
}

func TestStartAndEndSession(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "test"})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.EndSession())

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeStartSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeEndSession, msgs[len(msgs)-1].Type)

	var sp streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &sp))
	assert.Equal(t, "desk-test", sp.Name)
	assert.Equal(t, 53.0, sp.MarkerSizeMm)
	require.Contains(t, sp.Offsets, "1")
	assert.Equal(t, core.DefaultMarkerHeightMm, sp.Offsets["1"][1])
}

func TestFireAndForgetMessages(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSession()))

	require.NoError(t, b.RecordDetection(&core.MarkerDetection{MarkerID: 0, CaptureFrame: 1}))
	require.NoError(t, b.RecordFusedPose(&core.FusedPose{CaptureFrame: 1, Rotation: core.Identity(), MarkerCount: 1}))
	require.NoError(t, b.RecordFrame(&core.FrameState{CaptureFrame: 1, Width: 640, Height: 480}))
	require.NoError(t, b.RecordFps(&core.FpsReport{CaptureFrame: 1, Fps: 29.5}))
	require.NoError(t, b.RecordSessionPerf(&core.SessionPerf{FramesProcessed: 1}))

	require.NoError(t, b.EndSession())

	// Give a moment for all messages to arrive at server.
	time.Sleep(50 * time.Millisecond)

	types := make(map[string]int)
	for _, m := range ml.all() {
		types[m.Type]++
	}

	assert.Equal(t, 1, types[streaming.TypeStartSession])
	assert.Equal(t, 1, types[streaming.TypeEndSession])
	assert.Equal(t, 1, types[streaming.TypeAddDetection])
	assert.Equal(t, 1, types[streaming.TypeFusedPose])
	assert.Equal(t, 1, types[streaming.TypeFrame])
	assert.Equal(t, 1, types[streaming.TypeFps])
	assert.Equal(t, 1, types[streaming.TypeSessionPerf])
}

func TestFusedPosePayloadInvertsZ(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	b := New(Config{URL: wsURL(srv), Secret: "s"})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordFusedPose(&core.FusedPose{
		CaptureFrame: 7,
		Rotation:     core.Identity(),
		Translation:  r3.Vector{X: 10, Y: 20, Z: 300},
		MarkerCount:  2,
	}))
	require.NoError(t, b.EndSession())
	time.Sleep(50 * time.Millisecond)

	for _, m := range ml.all() {
		if m.Type != streaming.TypeFusedPose {
			continue
		}
		var fp streaming.FusedPosePayload
		require.NoError(t, json.Unmarshal(m.Payload, &fp))
		assert.Equal(t, uint(7), fp.CaptureFrame)
		assert.Equal(t, [3]float64{10, 20, -300}, fp.Translation)
		assert.Equal(t, [3]float64{0, 0, 0}, fp.Euler)
		assert.Equal(t, 2, fp.MarkerCount)
		return
	}
	t.Fatal("no fused_pose message received")
}

func TestEnvelopeSerialization(t *testing.T) {
	raw, err := json.Marshal(streaming.FpsPayload{CaptureFrame: 42, Fps: 24.0})
	require.NoError(t, err)

	env := streaming.Envelope{Type: streaming.TypeFps, Payload: raw}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeFps, decoded.Type)

	var fp streaming.FpsPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &fp))
	assert.Equal(t, uint(42), fp.CaptureFrame)
	assert.Equal(t, 24.0, fp.Fps)
}
