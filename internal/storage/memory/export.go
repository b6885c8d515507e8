// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// SessionExport is the root JSON structure consumed by the viewer frontend.
type SessionExport struct {
	TrackerVersion  string       `json:"trackerVersion"`
	DetectorName    string       `json:"detectorName"`
	DetectorVersion string       `json:"detectorVersion"`
	SessionName     string       `json:"sessionName"`
	StartTime       string       `json:"startTime"`
	EndFrame        uint         `json:"endFrame"`
	MarkerSizeMm    float64      `json:"markerSizeMm"`
	FrameWidth      float64      `json:"frameWidth"`
	FrameHeight     float64      `json:"frameHeight"`
	FusionPolicy    string       `json:"fusionPolicy"`
	Markers         []MarkerJSON `json:"markers"`
	Poses           [][]any      `json:"poses"`
	Frames          [][]any      `json:"frames"`
	FpsReports      [][]any      `json:"fpsReports"`
}

// MarkerJSON represents one marker's detection track
type MarkerJSON struct {
	ID         int        `json:"id"`
	Offset     [3]float64 `json:"offset"`
	Detections [][]any    `json:"detections"`
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	if b.session == nil {
		return fmt.Errorf("no session to export")
	}

	export := b.buildExport()

	// Build filename
	sessionName := strings.ReplaceAll(b.session.Name, " ", "_")
	sessionName = strings.ReplaceAll(sessionName, ":", "_")
	timestamp := b.session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", sessionName, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", sessionName, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write file
	if b.cfg.CompressOutput {
		if err := b.writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := b.writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		TrackerVersion:  b.session.TrackerVersion,
		DetectorName:    b.session.DetectorName,
		DetectorVersion: b.session.DetectorVersion,
		SessionName:     b.session.Name,
		StartTime:       b.session.StartTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
		MarkerSizeMm:    b.session.MarkerSizeMm,
		FrameWidth:      b.session.FrameWidth,
		FrameHeight:     b.session.FrameHeight,
		FusionPolicy:    b.session.FusionPolicy,
		Markers:         make([]MarkerJSON, 0, len(b.markers)),
		Poses:           make([][]any, 0, len(b.poses)),
		Frames:          make([][]any, 0, len(b.frames)),
		FpsReports:      make([][]any, 0, len(b.fps)),
	}

	var maxFrame uint = 0

	// Convert marker tracks
	// Detection format: [frameNum, [[x,y] x4]]
	for _, track := range b.markers {
		offset := b.session.Offsets[track.MarkerID]
		mj := MarkerJSON{
			ID:         track.MarkerID,
			Offset:     [3]float64{offset.X, offset.Y, offset.Z},
			Detections: make([][]any, 0, len(track.Detections)),
		}

		for _, det := range track.Detections {
			corners := make([][]float64, 0, 4)
			for _, c := range det.Corners {
				corners = append(corners, []float64{c.X, c.Y})
			}
			mj.Detections = append(mj.Detections, []any{
				det.CaptureFrame,
				corners,
			})
			if det.CaptureFrame > maxFrame {
				maxFrame = det.CaptureFrame
			}
		}

		export.Markers = append(export.Markers, mj)
	}

	// Convert fused poses
	// Format: [frameNum, rotation 3x3, [tx,ty,tz], markerCount]
	for _, pose := range b.poses {
		export.Poses = append(export.Poses, []any{
			pose.CaptureFrame,
			pose.Rotation,
			[]float64{pose.Translation.X, pose.Translation.Y, pose.Translation.Z},
			pose.MarkerCount,
		})
		if pose.CaptureFrame > maxFrame {
			maxFrame = pose.CaptureFrame
		}
	}

	// Convert frame records
	// Format: [frameNum, width, height, detectionCount, fusedCount, fuseDurationUs]
	for _, frame := range b.frames {
		export.Frames = append(export.Frames, []any{
			frame.CaptureFrame,
			frame.Width,
			frame.Height,
			frame.DetectionCount,
			frame.FusedCount,
			frame.FuseDurationUs,
		})
		if frame.CaptureFrame > maxFrame {
			maxFrame = frame.CaptureFrame
		}
	}

	// Convert fps reports
	// Format: [frameNum, fps]
	for _, report := range b.fps {
		export.FpsReports = append(export.FpsReports, []any{
			report.CaptureFrame,
			report.Fps,
		})
	}

	export.EndFrame = maxFrame
	return export
}

func (b *Backend) writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

// GetExportedFilePath returns the path of the last exported file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns upload metadata for the last exported session.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta := core.UploadMetadata{}
	if b.session == nil {
		return meta
	}
	meta.SessionName = b.session.Name
	meta.DetectorName = b.session.DetectorName
	if !b.endTime.IsZero() {
		meta.DurationSeconds = b.endTime.Sub(b.session.StartTime).Seconds()
	}
	return meta
}
