// internal/storage/memory/export_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/pkg/core"
)

func TestBuildExport(t *testing.T) {
	b := New(config.MemoryConfig{})

	s := testSession()
	s.TrackerVersion = "1.2.0"
	s.DetectorVersion = "2.1.0"
	_ = b.StartSession(s)

	_ = b.RecordDetection(&core.MarkerDetection{
		MarkerID:     0,
		CaptureFrame: 3,
		Corners: [4]core.Point2{
			{X: 100, Y: 100}, {X: 150, Y: 100},
			{X: 150, Y: 150}, {X: 100, Y: 150},
		},
	})
	_ = b.RecordDetection(&core.MarkerDetection{MarkerID: 1, CaptureFrame: 5})
	_ = b.RecordFusedPose(&core.FusedPose{
		CaptureFrame: 3,
		Rotation:     core.Identity(),
		Translation:  r3.Vector{X: 1, Y: 2, Z: 3},
		MarkerCount:  2,
	})
	_ = b.RecordFrame(&core.FrameState{
		CaptureFrame:   3,
		Width:          640,
		Height:         480,
		DetectionCount: 2,
		FusedCount:     2,
		FuseDurationUs: 120,
	})
	_ = b.RecordFps(&core.FpsReport{CaptureFrame: 4, Fps: 30.0})

	export := b.buildExport()

	if export.SessionName != "Desk Session" {
		t.Errorf("unexpected session name %q", export.SessionName)
	}
	if export.TrackerVersion != "1.2.0" {
		t.Errorf("unexpected tracker version %q", export.TrackerVersion)
	}
	if export.StartTime != "2026-03-02T10:30:00Z" {
		t.Errorf("unexpected start time %q", export.StartTime)
	}
	if export.FusionPolicy != core.FusionFirstOnly {
		t.Errorf("unexpected fusion policy %q", export.FusionPolicy)
	}

	// EndFrame follows the highest capture frame seen anywhere.
	if export.EndFrame != 5 {
		t.Errorf("expected EndFrame=5, got %d", export.EndFrame)
	}

	if len(export.Markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(export.Markers))
	}
	for _, m := range export.Markers {
		if m.ID == 1 && m.Offset[1] != core.DefaultMarkerHeightMm {
			t.Errorf("marker 1 offset not carried: %v", m.Offset)
		}
	}

	if len(export.Poses) != 1 {
		t.Fatalf("expected 1 pose row, got %d", len(export.Poses))
	}
	pose := export.Poses[0]
	if len(pose) != 4 {
		t.Fatalf("pose row has %d fields, want 4", len(pose))
	}
	if pose[3] != 2 {
		t.Errorf("expected markerCount=2, got %v", pose[3])
	}

	if len(export.Frames) != 1 || len(export.FpsReports) != 1 {
		t.Errorf("expected 1 frame and 1 fps row, got %d and %d",
			len(export.Frames), len(export.FpsReports))
	}
}

func TestExportJSONFile(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: false})

	_ = b.StartSession(testSession())
	_ = b.RecordFusedPose(&core.FusedPose{CaptureFrame: 1, Rotation: core.Identity()})

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if path == "" {
		t.Fatal("no export path recorded")
	}
	if filepath.Dir(path) != dir {
		t.Errorf("export written outside output dir: %s", path)
	}
	// Spaces in the session name must be sanitized out.
	if strings.Contains(filepath.Base(path), " ") {
		t.Errorf("filename contains spaces: %s", path)
	}
	if !strings.HasSuffix(path, ".json") {
		t.Errorf("expected .json suffix, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}

	var export SessionExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(export.Poses) != 1 {
		t.Errorf("expected 1 pose in export, got %d", len(export.Poses))
	}
}

func TestExportGzipFile(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})

	_ = b.StartSession(testSession())
	_ = b.RecordDetection(&core.MarkerDetection{MarkerID: 0, CaptureFrame: 1})

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if !strings.HasSuffix(path, ".json.gz") {
		t.Fatalf("expected .json.gz suffix, got %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening export: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("export is not valid gzip: %v", err)
	}
	defer gz.Close()

	var export SessionExport
	if err := json.NewDecoder(gz).Decode(&export); err != nil {
		t.Fatalf("decompressed export is not valid JSON: %v", err)
	}
	if len(export.Markers) != 1 {
		t.Errorf("expected 1 marker in export, got %d", len(export.Markers))
	}
}
