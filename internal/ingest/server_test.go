package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/internal/dispatcher"
	"github.com/ctralie/aruco2-fast/pkg/streaming"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// commandLog records every dispatched command with its args.
type commandLog struct {
	mu     sync.Mutex
	events []dispatcher.Event
}

func (c *commandLog) record(e dispatcher.Event) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil, nil
}

func (c *commandLog) all() []dispatcher.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]dispatcher.Event, len(c.events))
	copy(cp, c.events)
	return cp
}

func newTestIngest(t *testing.T) (*httptest.Server, *commandLog) {
	t.Helper()

	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)

	cl := &commandLog{}
	for _, cmd := range []string{":NEW:SESSION:", ":END:SESSION:", ":NEW:FRAME:", ":FPS:"} {
		d.Register(cmd, cl.record)
	}

	s := New(config.IngestConfig{WriteTimeout: 5 * time.Second}, d, nil)
	srv := httptest.NewServer(http.HandlerFunc(s.handleWS))
	t.Cleanup(srv.Close)
	return srv, cl
}

func dialTest(t *testing.T, srv *httptest.Server) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *ws.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, data))
}

func readAck(t *testing.T, conn *ws.Conn) streaming.AckMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ack streaming.AckMessage
	require.NoError(t, json.Unmarshal(msg, &ack))
	return ack
}

func TestSessionLifecycleAcked(t *testing.T) {
	srv, cl := newTestIngest(t)
	conn := dialTest(t, srv)

	sendEnvelope(t, conn, streaming.TypeStartSession, streaming.StartSessionPayload{
		Name:         "desk",
		MarkerSizeMm: 53,
		MarkerIDs:    []int{0, 1},
	})
	ack := readAck(t, conn)
	assert.Equal(t, "ack", ack.Type)
	assert.Equal(t, streaming.TypeStartSession, ack.For)

	sendEnvelope(t, conn, streaming.TypeEndSession, nil)
	ack = readAck(t, conn)
	assert.Equal(t, streaming.TypeEndSession, ack.For)

	events := cl.all()
	require.Len(t, events, 2)
	assert.Equal(t, ":NEW:SESSION:", events[0].Command)
	require.Len(t, events[0].Args, 1)
	assert.Contains(t, events[0].Args[0], `"desk"`)
	assert.Equal(t, ":END:SESSION:", events[1].Command)
}

func TestFrameEnvelopeSplitsArgs(t *testing.T) {
	srv, cl := newTestIngest(t)
	conn := dialTest(t, srv)

	sendEnvelope(t, conn, streaming.TypeFrame, streaming.FramePayload{
		CaptureFrame: 12,
		Width:        640,
		Height:       480,
		Detections: []streaming.FrameDetection{
			{ID: 0, Corners: [4][2]float64{{280, 200}, {360, 200}, {360, 280}, {280, 280}}},
		},
	})
	sendEnvelope(t, conn, streaming.TypeFps, streaming.FpsPayload{CaptureFrame: 12, Fps: 30})

	// Fire-and-forget messages get no ack; poll the command log.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(cl.all()) < 2 {
		time.Sleep(5 * time.Millisecond)
	}

	events := cl.all()
	require.Len(t, events, 2)

	frame := events[0]
	assert.Equal(t, ":NEW:FRAME:", frame.Command)
	require.Len(t, frame.Args, 4)
	assert.Equal(t, "12", frame.Args[0])
	assert.Equal(t, "640", frame.Args[1])
	assert.Equal(t, "480", frame.Args[2])

	var dets []streaming.FrameDetection
	require.NoError(t, json.Unmarshal([]byte(frame.Args[3]), &dets))
	require.Len(t, dets, 1)
	assert.Equal(t, 0, dets[0].ID)

	fps := events[1]
	assert.Equal(t, ":FPS:", fps.Command)
	assert.Equal(t, []string{"12", "30"}, fps.Args)
}

func TestSecretRejectsBadClients(t *testing.T) {
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)

	s := New(config.IngestConfig{Secret: "hunter2", WriteTimeout: 5 * time.Second}, d, nil)
	srv := httptest.NewServer(http.HandlerFunc(s.handleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := ws.DefaultDialer.Dial(url+"?secret=hunter2", nil)
	require.NoError(t, err)
	conn.Close()
}

func TestMalformedEnvelopeIgnored(t *testing.T) {
	srv, cl := newTestIngest(t)
	conn := dialTest(t, srv)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	sendEnvelope(t, conn, "bogus_type", nil)

	// The connection must survive both and still handle valid traffic.
	sendEnvelope(t, conn, streaming.TypeStartSession, streaming.StartSessionPayload{
		Name: "after-garbage", MarkerSizeMm: 53, MarkerIDs: []int{0},
	})
	ack := readAck(t, conn)
	assert.Equal(t, streaming.TypeStartSession, ack.For)

	events := cl.all()
	require.Len(t, events, 1)
	assert.Equal(t, ":NEW:SESSION:", events[0].Command)
}
