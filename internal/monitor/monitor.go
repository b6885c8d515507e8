package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ctralie/aruco2-fast/internal/cache"
	"github.com/ctralie/aruco2-fast/internal/influx"
	"github.com/ctralie/aruco2-fast/internal/logging"
	"github.com/ctralie/aruco2-fast/internal/session"
	"github.com/ctralie/aruco2-fast/internal/storage"
	"github.com/ctralie/aruco2-fast/internal/worker"
	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager    *logging.SlogManager
	SessionCtx    *session.Context
	WorkerManager *worker.Manager
	Backend       storage.Backend

	// PoseCache supplies the last fused pose and frame for the status file.
	PoseCache *cache.PoseCache

	// Influx receives a tracker_performance point per snapshot. Optional.
	Influx *influx.Manager

	// StatusDir is where status.txt is written; empty disables the file.
	StatusDir string

	// Interval between snapshots; defaults to 1s.
	Interval time.Duration
}

// Service periodically snapshots pipeline health and records it to the
// status file and the storage backend.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot builds the current service-health record.
func (s *Service) Snapshot() core.SessionPerf {
	stats := s.deps.WorkerManager.GetStats()
	detQ, poseQ, frameQ := s.deps.WorkerManager.QueueLengths()

	return core.SessionPerf{
		Time:                time.Now(),
		SessionID:           s.deps.SessionCtx.Get().ID,
		FramesProcessed:     stats.FramesProcessed,
		PosesFused:          stats.PosesFused,
		DetectionsSeen:      stats.DetectionsSeen,
		QueueDetections:     uint16(detQ),
		QueuePoses:          uint16(poseQ),
		QueueFrames:         uint16(frameQ),
		LastWriteDurationMs: s.deps.WorkerManager.LastWriteDurationMs(),
		LastFuseDurationUs:  stats.LastFuseDurationUs,
		CaptureFps:          stats.CaptureFps,
	}
}

// StatusReport is the status.txt document: pipeline counters plus the most
// recent fused pose and frame state out of the cache.
type StatusReport struct {
	Perf      core.SessionPerf `json:"perf"`
	LastPose  *core.FusedPose  `json:"lastPose,omitempty"`
	LastFrame *core.FrameState `json:"lastFrame,omitempty"`
}

// Status composes the perf snapshot with the cached pose and frame.
func (s *Service) Status() StatusReport {
	report := StatusReport{Perf: s.Snapshot()}
	if s.deps.PoseCache != nil {
		if p, ok := s.deps.PoseCache.GetPose(); ok {
			report.LastPose = &p
		}
		if f, ok := s.deps.PoseCache.GetFrame(); ok {
			report.LastFrame = &f
		}
	}
	return report
}

// writeStatusFile rewrites status.txt with the latest report.
func writeStatusFile(f *os.File, report StatusReport) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = f.Write(append(data, '\n'))
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine")

		var statusFile *os.File
		if s.deps.StatusDir != "" {
			var err error
			statusFile, err = os.Create(filepath.Join(s.deps.StatusDir, "status.txt"))
			if err != nil {
				logger.Error("Error creating status file", "error", err)
			} else {
				defer statusFile.Close()
			}
		}

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				if !s.deps.SessionCtx.Active() {
					continue
				}

				report := s.Status()
				perf := report.Perf

				if statusFile != nil {
					writeStatusFile(statusFile, report)
				}

				if err := s.deps.Backend.RecordSessionPerf(&perf); err != nil {
					logger.Error("Error recording session perf", "error", err)
				}

				if s.deps.Influx != nil {
					point := influx.PerfPoint(s.deps.SessionCtx.Get().Name, perf)
					if err := s.deps.Influx.WritePoint(context.Background(), influx.BucketTrackerPerformance, point); err != nil {
						logger.Error("Error writing perf point to InfluxDB", "error", err)
					}
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
