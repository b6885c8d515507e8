package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/ctralie/aruco2-fast/internal/cache"
	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/internal/dispatcher"
	"github.com/ctralie/aruco2-fast/internal/logging"
	"github.com/ctralie/aruco2-fast/internal/parser"
	"github.com/ctralie/aruco2-fast/internal/session"
	"github.com/ctralie/aruco2-fast/internal/solver"
	"github.com/ctralie/aruco2-fast/pkg/core"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	detections     []*core.MarkerDetection
	poses          []*core.FusedPose
	frames         []*core.FrameState
	fpsReports     []*core.FpsReport
	perfs          []*core.SessionPerf
	sessionStarted bool
	sessionEnded   bool
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s.ID = 1
	b.sessionStarted = true
	return nil
}

func (b *mockBackend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionEnded = true
	return nil
}

func (b *mockBackend) RecordDetection(d *core.MarkerDetection) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detections = append(b.detections, d)
	return nil
}

func (b *mockBackend) RecordFusedPose(p *core.FusedPose) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poses = append(b.poses, p)
	return nil
}

func (b *mockBackend) RecordFrame(f *core.FrameState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, f)
	return nil
}

func (b *mockBackend) RecordFps(r *core.FpsReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fpsReports = append(b.fpsReports, r)
	return nil
}

func (b *mockBackend) RecordSessionPerf(p *core.SessionPerf) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.perfs = append(b.perfs, p)
	return nil
}

func (b *mockBackend) poseCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.poses)
}

func (b *mockBackend) frameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// identitySolver returns the identity pose regardless of input.
var identitySolver = solver.Func(func(corners [4]core.Point2, markerSizeMm float64) (core.SinglePose, error) {
	return core.SinglePose{
		Rotation:    core.Identity(),
		Translation: r3.Vector{Z: 500},
	}, nil
})

func newTestManager(t *testing.T) (*Manager, *mockBackend, *dispatcher.Dispatcher) {
	t.Helper()

	logManager := &logging.SlogManager{}
	backend := &mockBackend{}

	m := NewManager(Dependencies{
		OffsetCache:   cache.NewOffsetCache(),
		PoseCache:     cache.NewPoseCache(),
		LogManager:    logManager,
		ParserService: parser.NewParser(logManager.Logger(), "test"),
		SessionCtx:    session.NewContext(),
		Solver:        identitySolver,
	}, backend)

	d, err := dispatcher.New(&mockLogger{})
	if err != nil {
		t.Fatalf("dispatcher.New failed: %v", err)
	}
	m.RegisterHandlers(d)
	return m, backend, d
}

// waitFor polls cond until it holds or the deadline passes. Buffered
// handlers process asynchronously, so record counts need a grace period.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

const sessionJSON = `{"name":"desk","detectorName":"js-aruco2","markerSizeMm":53,` +
	`"frameWidth":640,"frameHeight":480,"markerIds":[0,1]}`

// squareJSON is a well-formed marker detection centered in a 640x480 frame.
const squareJSON = `[{"id":0,"corners":[[280,200],[360,200],[360,280],[280,280]]}]`

func startSession(t *testing.T, d *dispatcher.Dispatcher) {
	t.Helper()
	if _, err := d.Dispatch(dispatcher.Event{
		Command: ":NEW:SESSION:",
		Args:    []string{sessionJSON},
	}); err != nil {
		t.Fatalf("session start failed: %v", err)
	}
}

func TestHandleNewSession(t *testing.T) {
	m, backend, d := newTestManager(t)

	startSession(t, d)

	if !backend.sessionStarted {
		t.Error("backend session not started")
	}
	if !m.deps.SessionCtx.Active() {
		t.Error("session context not active")
	}
	if m.currentFuser() == nil {
		t.Error("fuser not created")
	}
	if _, ok := m.deps.OffsetCache.Get(1); !ok {
		t.Error("offsets not loaded into cache")
	}
}

func TestHandleNewSessionInvalid(t *testing.T) {
	_, backend, d := newTestManager(t)

	// No offsets and no marker ids.
	_, err := d.Dispatch(dispatcher.Event{
		Command: ":NEW:SESSION:",
		Args:    []string{`{"name":"bad","markerSizeMm":53}`},
	})
	if err == nil {
		t.Fatal("expected error for session without markers")
	}
	if backend.sessionStarted {
		t.Error("backend session must not start on invalid config")
	}
}

func TestHandleNewSessionZeroMarkerSize(t *testing.T) {
	_, backend, d := newTestManager(t)

	_, err := d.Dispatch(dispatcher.Event{
		Command: ":NEW:SESSION:",
		Args:    []string{`{"name":"bad","markerIds":[0]}`},
	})
	if err == nil {
		t.Fatal("expected error for zero marker size")
	}
	if backend.sessionStarted {
		t.Error("backend session must not start on invalid config")
	}
}

func TestFusionDefaultsFromConfig(t *testing.T) {
	logManager := &logging.SlogManager{}
	backend := &mockBackend{}
	ctx := session.NewContext()

	m := NewManager(Dependencies{
		OffsetCache:   cache.NewOffsetCache(),
		PoseCache:     cache.NewPoseCache(),
		LogManager:    logManager,
		ParserService: parser.NewParser(logManager.Logger(), "test"),
		SessionCtx:    ctx,
		Solver:        identitySolver,
		FusionDefaults: config.FusionConfig{
			Policy:       core.FusionAverageAll,
			ApplyOffsets: true,
		},
	}, backend)

	d, err := dispatcher.New(&mockLogger{})
	if err != nil {
		t.Fatalf("dispatcher.New failed: %v", err)
	}
	m.RegisterHandlers(d)

	// Payload omits fusion keys: config defaults apply.
	startSession(t, d)
	s := ctx.Get()
	if s.FusionPolicy != core.FusionAverageAll {
		t.Errorf("expected config policy to apply, got %q", s.FusionPolicy)
	}
	if !s.ApplyOffsets {
		t.Error("expected config applyOffsets to apply")
	}

	// Explicit payload keys win over config.
	explicit := `{"name":"desk2","markerSizeMm":53,"markerIds":[0],` +
		`"fusionPolicy":"first-only","applyOffsets":false}`
	if _, err := d.Dispatch(dispatcher.Event{
		Command: ":NEW:SESSION:",
		Args:    []string{explicit},
	}); err != nil {
		t.Fatalf("session start failed: %v", err)
	}
	s = ctx.Get()
	if s.FusionPolicy != core.FusionFirstOnly {
		t.Errorf("expected explicit policy to win, got %q", s.FusionPolicy)
	}
	if s.ApplyOffsets {
		t.Error("expected explicit applyOffsets to win")
	}
}

func TestHandleNewFrame(t *testing.T) {
	m, backend, d := newTestManager(t)
	startSession(t, d)

	_, err := d.Dispatch(dispatcher.Event{
		Command: ":NEW:FRAME:",
		Args:    []string{"1", "640", "480", squareJSON},
	})
	if err != nil {
		t.Fatalf("frame dispatch failed: %v", err)
	}

	// Buffered handler: wait for the frame record to land.
	waitFor(t, func() bool { return backend.frameCount() == 1 })

	if backend.poseCount() != 1 {
		t.Fatalf("expected 1 fused pose, got %d", backend.poseCount())
	}

	backend.mu.Lock()
	pose := backend.poses[0]
	frame := backend.frames[0]
	backend.mu.Unlock()

	if pose.CaptureFrame != 1 {
		t.Errorf("pose frame = %d, want 1", pose.CaptureFrame)
	}
	if pose.SessionID != 1 {
		t.Errorf("pose session = %d, want 1", pose.SessionID)
	}
	if pose.MarkerCount != 1 {
		t.Errorf("pose marker count = %d, want 1", pose.MarkerCount)
	}
	if frame.FusedCount != 1 {
		t.Errorf("frame fused count = %d, want 1", frame.FusedCount)
	}
	if frame.DetectionCount != 1 {
		t.Errorf("frame detection count = %d, want 1", frame.DetectionCount)
	}

	stats := m.GetStats()
	if stats.FramesProcessed != 1 || stats.PosesFused != 1 || stats.DetectionsSeen != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHandleNewFramePopulatesPoseCache(t *testing.T) {
	m, backend, d := newTestManager(t)
	startSession(t, d)

	if _, ok := m.deps.PoseCache.GetPose(); ok {
		t.Fatal("pose cache must start empty after session start")
	}

	_, err := d.Dispatch(dispatcher.Event{
		Command: ":NEW:FRAME:",
		Args:    []string{"5", "640", "480", squareJSON},
	})
	if err != nil {
		t.Fatalf("frame dispatch failed: %v", err)
	}

	waitFor(t, func() bool { return backend.frameCount() == 1 })

	pose, ok := m.deps.PoseCache.GetPose()
	if !ok {
		t.Fatal("fused pose not cached")
	}
	if pose.CaptureFrame != 5 || pose.SessionID != 1 {
		t.Errorf("cached pose frame=%d session=%d, want 5/1", pose.CaptureFrame, pose.SessionID)
	}

	frame, ok := m.deps.PoseCache.GetFrame()
	if !ok {
		t.Fatal("frame state not cached")
	}
	if frame.CaptureFrame != 5 {
		t.Errorf("cached frame = %d, want 5", frame.CaptureFrame)
	}
}

func TestHandleNewFrameNoEligibleMarkers(t *testing.T) {
	_, backend, d := newTestManager(t)
	startSession(t, d)

	// Marker 99 has no configured offset: frame recorded, no pose.
	detections := `[{"id":99,"corners":[[280,200],[360,200],[360,280],[280,280]]}]`
	_, err := d.Dispatch(dispatcher.Event{
		Command: ":NEW:FRAME:",
		Args:    []string{"2", "640", "480", detections},
	})
	if err != nil {
		t.Fatalf("frame dispatch failed: %v", err)
	}

	waitFor(t, func() bool { return backend.frameCount() == 1 })

	if backend.poseCount() != 0 {
		t.Errorf("expected no fused pose, got %d", backend.poseCount())
	}
	backend.mu.Lock()
	frame := backend.frames[0]
	backend.mu.Unlock()
	if frame.FusedCount != 0 {
		t.Errorf("frame fused count = %d, want 0", frame.FusedCount)
	}
}

func TestHandleNewFrameWithoutSession(t *testing.T) {
	_, backend, d := newTestManager(t)

	_, _ = d.Dispatch(dispatcher.Event{
		Command: ":NEW:FRAME:",
		Args:    []string{"1", "640", "480", squareJSON},
	})

	// Buffered handlers swallow the error; the frame must simply not land.
	time.Sleep(50 * time.Millisecond)
	if backend.frameCount() != 0 {
		t.Error("frame recorded without active session")
	}
}

func TestHandleFps(t *testing.T) {
	m, backend, d := newTestManager(t)
	startSession(t, d)

	_, err := d.Dispatch(dispatcher.Event{
		Command: ":FPS:",
		Args:    []string{"10", "29.7"},
	})
	if err != nil {
		t.Fatalf("fps dispatch failed: %v", err)
	}

	waitFor(t, func() bool {
		backend.mu.Lock()
		defer backend.mu.Unlock()
		return len(backend.fpsReports) == 1
	})

	backend.mu.Lock()
	report := backend.fpsReports[0]
	backend.mu.Unlock()
	if report.Fps != 29.7 {
		t.Errorf("fps = %f, want 29.7", report.Fps)
	}
	if got := m.GetStats().CaptureFps; got != 29.7 {
		t.Errorf("stats fps = %f, want 29.7", got)
	}
}

func TestHandleEndSession(t *testing.T) {
	m, backend, d := newTestManager(t)
	startSession(t, d)

	_, err := d.Dispatch(dispatcher.Event{Command: ":END:SESSION:"})
	if err != nil {
		t.Fatalf("end session failed: %v", err)
	}

	if !backend.sessionEnded {
		t.Error("backend session not ended")
	}
	if m.deps.SessionCtx.Active() {
		t.Error("session context still active")
	}
	if m.currentFuser() != nil {
		t.Error("fuser not retired")
	}

	// A second end is an error.
	if _, err := d.Dispatch(dispatcher.Event{Command: ":END:SESSION:"}); err == nil {
		t.Error("expected error ending session twice")
	}
}
