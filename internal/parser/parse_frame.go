package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ctralie/aruco2-fast/pkg/core"
	"github.com/ctralie/aruco2-fast/pkg/streaming"
)

// ParseFrame parses one frame's data into its bookkeeping state plus the
// detections found in it.
// Expected args: [captureFrame, width, height, detectionsJSON] where
// detectionsJSON is an array of {id, corners:[[x,y]x4]} objects.
//
// Detections with malformed or negative ids are dropped with a warning
// rather than failing the whole frame; an unparseable frame header is an
// error.
func (p *Parser) ParseFrame(data []string) (core.FrameState, []core.MarkerDetection, error) {
	var frame core.FrameState

	if len(data) < 4 {
		return frame, nil, fmt.Errorf("frame data needs 4 args, got %d", len(data))
	}

	capframe, err := parseUintFromFloat(data[0])
	if err != nil {
		return frame, nil, fmt.Errorf("error parsing capture frame: %w", err)
	}
	frame.CaptureFrame = uint(capframe)

	width, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return frame, nil, fmt.Errorf("error parsing frame width: %w", err)
	}
	frame.Width = width

	height, err := strconv.ParseFloat(data[2], 64)
	if err != nil {
		return frame, nil, fmt.Errorf("error parsing frame height: %w", err)
	}
	frame.Height = height

	var wire []streaming.FrameDetection
	if err := json.Unmarshal([]byte(data[3]), &wire); err != nil {
		return frame, nil, fmt.Errorf("error parsing detections JSON: %w", err)
	}

	now := time.Now()
	sessionID := p.getSessionID()
	frame.SessionID = sessionID
	frame.Time = now
	frame.DetectionCount = len(wire)

	detections := make([]core.MarkerDetection, 0, len(wire))
	for i, d := range wire {
		if d.ID < 0 {
			p.logger.Warn("Dropping detection with negative marker id", "index", i, "id", d.ID)
			continue
		}
		det := core.MarkerDetection{
			SessionID:    sessionID,
			MarkerID:     d.ID,
			CaptureFrame: frame.CaptureFrame,
			Time:         now,
		}
		for c := 0; c < 4; c++ {
			det.Corners[c] = core.Point2{X: d.Corners[c][0], Y: d.Corners[c][1]}
		}
		detections = append(detections, det)
	}

	return frame, detections, nil
}

// ParseFps parses a capture-side frame-rate report.
// Expected args: [captureFrame, fps].
func (p *Parser) ParseFps(data []string) (core.FpsReport, error) {
	var report core.FpsReport

	if len(data) < 2 {
		return report, fmt.Errorf("fps data needs 2 args, got %d", len(data))
	}

	capframe, err := parseUintFromFloat(data[0])
	if err != nil {
		return report, fmt.Errorf("error parsing capture frame: %w", err)
	}
	report.CaptureFrame = uint(capframe)

	fps, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return report, fmt.Errorf("error parsing fps: %w", err)
	}
	report.Fps = fps

	report.SessionID = p.getSessionID()
	report.Time = time.Now()
	return report, nil
}
