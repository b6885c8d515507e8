package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ctralie/aruco2-fast/internal/dispatcher"
	"github.com/ctralie/aruco2-fast/internal/fuser"
	"github.com/ctralie/aruco2-fast/pkg/core"
)

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session lifecycle - sync (frames must not race the offsets table)
	d.Register(":NEW:SESSION:", m.handleNewSession, dispatcher.Logged())
	d.Register(":END:SESSION:", m.handleEndSession, dispatcher.Logged())

	// High-volume frame stream - buffered
	d.Register(":NEW:FRAME:", m.handleNewFrame, dispatcher.Buffered(10000), dispatcher.Logged())

	// Telemetry - buffered
	d.Register(":FPS:", m.handleFps, dispatcher.Buffered(1000), dispatcher.Logged())
}

// handleNewSession parses the session config, builds the fuser for it and
// opens the storage backend's session.
func (m *Manager) handleNewSession(e dispatcher.Event) (any, error) {
	s, err := m.deps.ParserService.ParseSessionStart(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	m.applyFusionDefaults(&s, e.Args)

	// The offsets table lives in the cache for the rest of the session; the
	// fuser reads it from there rather than holding its own copy of the
	// parsed session.
	m.deps.OffsetCache.Load(s.Offsets)

	cfg := fuser.Config{
		Offsets:      m.deps.OffsetCache.Snapshot(),
		MarkerSizeMm: s.MarkerSizeMm,
		Policy:       s.FusionPolicy,
		ApplyOffsets: s.ApplyOffsets,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	if err := m.backend.StartSession(&s); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	// Publish session state only after the backend accepted it, so the
	// parser stamps SessionID with the backend-assigned id.
	m.deps.SessionCtx.Set(&s)
	if setter, ok := m.deps.ParserService.(interface{ SetSession(*core.Session) }); ok {
		setter.SetSession(&s)
	}
	m.setFuser(fuser.New(cfg, m.deps.Solver, m.deps.LogManager.Logger()))
	m.resetCounters()
	m.deps.PoseCache.Reset()

	m.deps.LogManager.Logger().Info("Session started",
		"name", s.Name,
		"markers", len(s.Offsets),
		"policy", s.FusionPolicy,
	)

	return nil, nil
}

// applyFusionDefaults fills fusion settings from tracker config for keys the
// capture client omitted. The raw payload is probed again because the parsed
// session cannot distinguish an omitted key from an explicit default.
func (m *Manager) applyFusionDefaults(s *core.Session, args []string) {
	if len(args) < 1 {
		return
	}
	var probe struct {
		FusionPolicy *string `json:"fusionPolicy"`
		ApplyOffsets *bool   `json:"applyOffsets"`
	}
	if err := json.Unmarshal([]byte(args[0]), &probe); err != nil {
		return
	}
	if probe.FusionPolicy == nil && m.deps.FusionDefaults.Policy != "" {
		s.FusionPolicy = m.deps.FusionDefaults.Policy
	}
	if probe.ApplyOffsets == nil {
		s.ApplyOffsets = m.deps.FusionDefaults.ApplyOffsets
	}
}

// handleNewFrame runs the full frame pipeline: parse, record detections,
// fuse, record the pose and the frame bookkeeping record.
func (m *Manager) handleNewFrame(e dispatcher.Event) (any, error) {
	if !m.deps.SessionCtx.Active() {
		return nil, ErrNoActiveSession
	}
	f := m.currentFuser()
	if f == nil {
		return nil, ErrNoActiveSession
	}

	frame, detections, err := m.deps.ParserService.ParseFrame(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to process frame: %w", err)
	}

	m.framesProcessed.Inc()
	for i := range detections {
		m.detectionsSeen.Inc()
		if err := m.backend.RecordDetection(&detections[i]); err != nil {
			m.deps.LogManager.Logger().Error("Error recording detection",
				"markerId", detections[i].MarkerID, "error", err)
		}
	}

	// Frames may override the session capture dimensions.
	width, height := frame.Width, frame.Height
	if width == 0 || height == 0 {
		s := m.deps.SessionCtx.Get()
		width, height = s.FrameWidth, s.FrameHeight
	}

	start := time.Now()
	pose, ok := f.Fuse(detections, width, height)
	elapsed := time.Since(start)
	m.recordFuseDuration(elapsed)

	frame.FuseDurationUs = elapsed.Microseconds()
	if ok {
		pose.SessionID = frame.SessionID
		pose.CaptureFrame = frame.CaptureFrame
		pose.Time = frame.Time
		frame.FusedCount = pose.MarkerCount

		m.posesFused.Inc()
		m.deps.PoseCache.SetPose(pose)
		if err := m.backend.RecordFusedPose(&pose); err != nil {
			return nil, fmt.Errorf("failed to record fused pose: %w", err)
		}
	}
	// When no marker fused, the previous pose stays authoritative; the
	// frame record still goes out with FusedCount 0.

	m.deps.PoseCache.SetFrame(frame)
	if err := m.backend.RecordFrame(&frame); err != nil {
		return nil, fmt.Errorf("failed to record frame: %w", err)
	}

	return nil, nil
}

// handleFps records a capture-side frame-rate report.
func (m *Manager) handleFps(e dispatcher.Event) (any, error) {
	report, err := m.deps.ParserService.ParseFps(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to process fps report: %w", err)
	}

	m.recordFps(report.Fps)
	if err := m.backend.RecordFps(&report); err != nil {
		return nil, fmt.Errorf("failed to record fps report: %w", err)
	}
	return nil, nil
}

// handleEndSession closes the backend session and retires the fuser. The
// session stays readable in the context for end-of-session bookkeeping.
func (m *Manager) handleEndSession(e dispatcher.Event) (any, error) {
	if !m.deps.SessionCtx.Active() {
		return nil, ErrNoActiveSession
	}

	m.deps.SessionCtx.End()
	m.setFuser(nil)

	if err := m.backend.EndSession(); err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	m.deps.LogManager.Logger().Info("Session ended",
		"name", m.deps.SessionCtx.Get().Name,
		"frames", m.framesProcessed.Value(),
		"poses", m.posesFused.Value(),
	)

	if m.deps.OnSessionEnd != nil {
		m.deps.OnSessionEnd()
	}
	return nil, nil
}
