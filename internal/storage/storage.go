// internal/storage/storage.go
package storage

import "github.com/ctralie/aruco2-fast/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Per-frame recording
	RecordDetection(d *core.MarkerDetection) error
	RecordFusedPose(p *core.FusedPose) error
	RecordFrame(f *core.FrameState) error

	// Telemetry
	RecordFps(r *core.FpsReport) error
	RecordSessionPerf(p *core.SessionPerf) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the viewer frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
