package worker

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ctralie/aruco2-fast/internal/cache"
	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/internal/fuser"
	"github.com/ctralie/aruco2-fast/internal/logging"
	"github.com/ctralie/aruco2-fast/internal/parser"
	"github.com/ctralie/aruco2-fast/internal/session"
	"github.com/ctralie/aruco2-fast/internal/solver"
	"github.com/ctralie/aruco2-fast/internal/storage"
)

// ErrNoActiveSession is returned when frame data arrives before start_session
var ErrNoActiveSession = fmt.Errorf("no active session")

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	OffsetCache   *cache.OffsetCache
	PoseCache     *cache.PoseCache
	LogManager    *logging.SlogManager
	ParserService parser.Service
	SessionCtx    *session.Context
	Solver        solver.Solver

	// FusionDefaults supplies the tracker-side fusion settings used when
	// the capture client leaves them at their wire defaults.
	FusionDefaults config.FusionConfig

	// OnSessionEnd runs after the backend finished a session, e.g. to
	// upload the exported file. Optional.
	OnSessionEnd func()
}

// Manager owns the frame pipeline: it parses dispatched commands, runs the
// fuser and feeds the active storage backend.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	mu    sync.RWMutex
	fuser *fuser.Fuser

	framesProcessed cache.SafeCounter
	posesFused      cache.SafeCounter
	detectionsSeen  cache.SafeCounter
	lastFpsBits     atomic.Uint64
	lastFuseUs      atomic.Int64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Stats is a point-in-time snapshot of pipeline counters for the monitor.
type Stats struct {
	FramesProcessed    uint
	PosesFused         uint
	DetectionsSeen     uint
	CaptureFps         float64
	LastFuseDurationUs int64
}

// GetStats returns the current pipeline counters.
func (m *Manager) GetStats() Stats {
	return Stats{
		FramesProcessed:    uint(m.framesProcessed.Value()),
		PosesFused:         uint(m.posesFused.Value()),
		DetectionsSeen:     uint(m.detectionsSeen.Value()),
		CaptureFps:         math.Float64frombits(m.lastFpsBits.Load()),
		LastFuseDurationUs: m.lastFuseUs.Load(),
	}
}

// QueueLengthsProvider is an optional interface that backends can implement
// to expose pending write queue sizes for monitoring.
type QueueLengthsProvider interface {
	QueueLengths() (detections, poses, frames int)
}

// QueueLengths returns the backend's pending write queue sizes.
// Returns zeros if the backend doesn't batch writes.
func (m *Manager) QueueLengths() (detections, poses, frames int) {
	if p, ok := m.backend.(QueueLengthsProvider); ok {
		return p.QueueLengths()
	}
	return 0, 0, 0
}

// WriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type WriteDurationProvider interface {
	LastWriteDurationMs() float32
}

// LastWriteDurationMs returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) LastWriteDurationMs() float32 {
	if p, ok := m.backend.(WriteDurationProvider); ok {
		return p.LastWriteDurationMs()
	}
	return 0
}

func (m *Manager) currentFuser() *fuser.Fuser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fuser
}

func (m *Manager) setFuser(f *fuser.Fuser) {
	m.mu.Lock()
	m.fuser = f
	m.mu.Unlock()
}

func (m *Manager) resetCounters() {
	m.framesProcessed.Set(0)
	m.posesFused.Set(0)
	m.detectionsSeen.Set(0)
	m.lastFpsBits.Store(0)
	m.lastFuseUs.Store(0)
}

func (m *Manager) recordFps(fps float64) {
	m.lastFpsBits.Store(math.Float64bits(fps))
}

func (m *Manager) recordFuseDuration(d time.Duration) {
	m.lastFuseUs.Store(d.Microseconds())
}
