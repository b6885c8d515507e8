// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/ctralie/aruco2-fast/internal/model"
	"github.com/ctralie/aruco2-fast/pkg/core"
)

// centerPoint computes the quad centroid as a geom.Point
func centerPoint(corners [4]core.Point2) geom.Point {
	var cx, cy float64
	for _, c := range corners {
		cx += c.X
		cy += c.Y
	}
	coords := geom.Coordinates{XY: geom.XY{X: cx / 4, Y: cy / 4}}
	return geom.NewPoint(coords)
}

// cornersToJSON converts the corner array to datatypes.JSON for DB storage.
func cornersToJSON(corners [4]core.Point2) datatypes.JSON {
	raw := [4][2]float64{}
	for i, c := range corners {
		raw[i] = [2]float64{c.X, c.Y}
	}
	data, _ := json.Marshal(raw)
	return datatypes.JSON(data)
}

// rotationToJSON converts a rotation matrix to datatypes.JSON (row-major 3x3).
func rotationToJSON(r core.Matrix3) datatypes.JSON {
	data, _ := json.Marshal(r)
	return datatypes.JSON(data)
}

// offsetsToJSON converts the offsets table to datatypes.JSON (id -> [x,y,z]).
func offsetsToJSON(s core.Session) datatypes.JSON {
	raw := make(map[int][3]float64, len(s.Offsets))
	for id, v := range s.Offsets {
		raw[id] = [3]float64{v.X, v.Y, v.Z}
	}
	data, _ := json.Marshal(raw)
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session, tag string) model.Session {
	return model.Session{
		SessionName:     s.Name,
		StartTime:       s.StartTime,
		DetectorName:    s.DetectorName,
		DetectorVersion: s.DetectorVersion,
		TrackerVersion:  s.TrackerVersion,
		MarkerSizeMm:    s.MarkerSizeMm,
		FrameWidth:      s.FrameWidth,
		FrameHeight:     s.FrameHeight,
		Offsets:         offsetsToJSON(s),
		FusionPolicy:    s.FusionPolicy,
		ApplyOffsets:    s.ApplyOffsets,
		Tag:             tag,
	}
}

// CoreToDetection converts a core.MarkerDetection to a GORM model.Detection.
func CoreToDetection(d core.MarkerDetection) model.Detection {
	return model.Detection{
		SessionID:    d.SessionID,
		Time:         d.Time,
		CaptureFrame: d.CaptureFrame,
		MarkerID:     d.MarkerID,
		Corners:      cornersToJSON(d.Corners),
		Center:       centerPoint(d.Corners),
	}
}

// CoreToFusedPose converts a core.FusedPose to a GORM model.FusedPose.
func CoreToFusedPose(p core.FusedPose) model.FusedPose {
	return model.FusedPose{
		SessionID:    p.SessionID,
		Time:         p.Time,
		CaptureFrame: p.CaptureFrame,
		Rotation:     rotationToJSON(p.Rotation),
		TranslationX: p.Translation.X,
		TranslationY: p.Translation.Y,
		TranslationZ: p.Translation.Z,
		MarkerCount:  p.MarkerCount,
	}
}

// CoreToFrameRecord converts a core.FrameState to a GORM model.FrameRecord.
func CoreToFrameRecord(f core.FrameState) model.FrameRecord {
	return model.FrameRecord{
		SessionID:      f.SessionID,
		Time:           f.Time,
		CaptureFrame:   f.CaptureFrame,
		Width:          f.Width,
		Height:         f.Height,
		DetectionCount: f.DetectionCount,
		FusedCount:     f.FusedCount,
		FuseDurationUs: f.FuseDurationUs,
	}
}

// CoreToFpsEvent converts a core.FpsReport to a GORM model.FpsEvent.
func CoreToFpsEvent(r core.FpsReport) model.FpsEvent {
	return model.FpsEvent{
		SessionID:    r.SessionID,
		Time:         r.Time,
		CaptureFrame: r.CaptureFrame,
		Fps:          r.Fps,
	}
}

// CoreToSessionPerformance converts a core.SessionPerf to a GORM model.SessionPerformance.
func CoreToSessionPerformance(p core.SessionPerf) model.SessionPerformance {
	return model.SessionPerformance{
		Time:      p.Time,
		SessionID: p.SessionID,
		QueueLengths: model.QueueLengths{
			Detections: p.QueueDetections,
			Poses:      p.QueuePoses,
			Frames:     p.QueueFrames,
		},
		FramesProcessed:     p.FramesProcessed,
		PosesFused:          p.PosesFused,
		DetectionsSeen:      p.DetectionsSeen,
		LastWriteDurationMs: p.LastWriteDurationMs,
		LastFuseDurationUs:  p.LastFuseDurationUs,
		CaptureFps:          p.CaptureFps,
	}
}
