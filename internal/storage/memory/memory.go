// internal/storage/memory/memory.go
package memory

import (
	"sync"
	"time"

	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/pkg/core"
)

// MarkerTrack groups all detections of one marker id across the session
type MarkerTrack struct {
	MarkerID   int
	Detections []core.MarkerDetection
}

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	markers map[int]*MarkerTrack // keyed by marker id
	poses   []core.FusedPose
	frames  []core.FrameState
	fps     []core.FpsReport
	perfs   []core.SessionPerf

	endTime        time.Time
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		markers: make(map[int]*MarkerTrack),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s

	// Reset all collections
	b.markers = make(map[int]*MarkerTrack)
	b.poses = nil
	b.frames = nil
	b.fps = nil
	b.perfs = nil
	b.lastExportPath = ""

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endTime = time.Now()
	return b.exportJSON()
}

// RecordDetection records a raw marker detection
func (b *Backend) RecordDetection(d *core.MarkerDetection) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	track, ok := b.markers[d.MarkerID]
	if !ok {
		track = &MarkerTrack{MarkerID: d.MarkerID}
		b.markers[d.MarkerID] = track
	}
	track.Detections = append(track.Detections, *d)
	return nil
}

// RecordFusedPose records a fused camera pose
func (b *Backend) RecordFusedPose(p *core.FusedPose) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poses = append(b.poses, *p)
	return nil
}

// RecordFrame records per-frame bookkeeping state
func (b *Backend) RecordFrame(f *core.FrameState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, *f)
	return nil
}

// RecordFps records a capture fps report
func (b *Backend) RecordFps(r *core.FpsReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fps = append(b.fps, *r)
	return nil
}

// RecordSessionPerf records a performance snapshot
func (b *Backend) RecordSessionPerf(p *core.SessionPerf) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.perfs = append(b.perfs, *p)
	return nil
}

// GetMarkerTrack looks up the detection track for a marker id
func (b *Backend) GetMarkerTrack(markerID int) (*MarkerTrack, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	track, ok := b.markers[markerID]
	return track, ok
}

// PoseCount returns the number of fused poses recorded so far
func (b *Backend) PoseCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.poses)
}
