package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&TrackerInfo{},
	&Session{},
	&Detection{},
	&FusedPose{},
	&FrameRecord{},
	&FpsEvent{},
	&SessionPerformance{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// TrackerInfo contains information about the tracker instance
type TrackerInfo struct {
	gorm.Model
	InstanceName string `json:"instanceName" gorm:"size:127"`
	Description  string `json:"description" gorm:"size:255"`
	Website      string `json:"websiteURL" gorm:"size:255"`
}

func (*TrackerInfo) TableName() string {
	return "tracker_infos"
}

// SessionPerformance is the model for tracker performance metrics
type SessionPerformance struct {
	Time                time.Time    `json:"time" gorm:"type:timestamptz;index:idx_time"`
	SessionID           uint         `json:"sessionId" gorm:"index:idx_sessionperformance_session_id"`
	Session             Session      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	QueueLengths        QueueLengths `json:"queueLengths" gorm:"embedded;embeddedPrefix:queue_"`
	FramesProcessed     uint         `json:"framesProcessed"`
	PosesFused          uint         `json:"posesFused"`
	DetectionsSeen      uint         `json:"detectionsSeen"`
	LastWriteDurationMs float32      `json:"lastWriteDurationMs"`
	LastFuseDurationUs  int64        `json:"lastFuseDurationUs"`
	CaptureFps          float64      `json:"captureFps"`
}

func (*SessionPerformance) TableName() string {
	return "session_performances"
}

// QueueLengths is the model for the pending write queue lengths
type QueueLengths struct {
	Detections uint16 `json:"detections"`
	Poses      uint16 `json:"poses"`
	Frames     uint16 `json:"frames"`
}

////////////////////////
// TRACKING MODELS
////////////////////////

// Session is the main model for a tracking session
type Session struct {
	gorm.Model
	SessionName     string         `json:"sessionName" gorm:"size:200"`
	StartTime       time.Time      `json:"sessionStart" gorm:"type:timestamptz;index:idx_session_start"`
	DetectorName    string         `json:"detectorName" gorm:"size:64"`
	DetectorVersion string         `json:"detectorVersion" gorm:"size:64"`
	TrackerVersion  string         `json:"trackerVersion" gorm:"size:64"`
	MarkerSizeMm    float64        `json:"markerSizeMm"`
	FrameWidth      float64        `json:"frameWidth"`
	FrameHeight     float64        `json:"frameHeight"`
	Offsets         datatypes.JSON `json:"offsets" gorm:"type:jsonb;default:'{}'"` // marker id -> [x,y,z] in mm
	FusionPolicy    string         `json:"fusionPolicy" gorm:"size:32"`
	ApplyOffsets    bool           `json:"applyOffsets" gorm:"default:false"`
	Tag             string         `json:"tag" gorm:"size:127"`

	Detections          []Detection
	FusedPoses          []FusedPose
	FrameRecords        []FrameRecord
	FpsEvents           []FpsEvent
	SessionPerformances []SessionPerformance
}

func (*Session) TableName() string {
	return "sessions"
}

// Detection is one raw marker detection reported by the capture client.
// Corners are stored in image-pixel space exactly as received; Center is the
// quad centroid, useful for coverage queries.
type Detection struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	SessionID    uint           `json:"sessionId" gorm:"index:idx_detection_session_id"`
	Session      Session        `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time         time.Time      `json:"time" gorm:"type:timestamptz"`
	CaptureFrame uint           `json:"captureFrame" gorm:"index:idx_detection_capture_frame"`
	MarkerID     int            `json:"markerId" gorm:"index:idx_detection_marker_id"`
	Corners      datatypes.JSON `json:"corners" gorm:"type:jsonb"` // [[x,y] x4] image pixels
	Center       geom.Point     `json:"center"`
}

func (*Detection) TableName() string {
	return "detections"
}

// FusedPose is one fused camera pose produced for a frame
type FusedPose struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	SessionID    uint           `json:"sessionId" gorm:"index:idx_fusedpose_session_id"`
	Session      Session        `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time         time.Time      `json:"time" gorm:"type:timestamptz"`
	CaptureFrame uint           `json:"captureFrame" gorm:"index:idx_fusedpose_capture_frame"`
	Rotation     datatypes.JSON `json:"rotation" gorm:"type:jsonb"` // 3x3 row-major
	TranslationX float64        `json:"translationX"`               // mm, camera frame
	TranslationY float64        `json:"translationY"`
	TranslationZ float64        `json:"translationZ"`
	MarkerCount  int            `json:"markerCount"`
}

func (*FusedPose) TableName() string {
	return "fused_poses"
}

// FrameRecord is the per-frame bookkeeping row
type FrameRecord struct {
	ID             uint      `json:"id" gorm:"primarykey"`
	SessionID      uint      `json:"sessionId" gorm:"index:idx_framerecord_session_id"`
	Session        Session   `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time           time.Time `json:"time" gorm:"type:timestamptz"`
	CaptureFrame   uint      `json:"captureFrame" gorm:"index:idx_framerecord_capture_frame"`
	Width          float64   `json:"width"`
	Height         float64   `json:"height"`
	DetectionCount int       `json:"detectionCount"`
	FusedCount     int       `json:"fusedCount"`
	FuseDurationUs int64     `json:"fuseDurationUs"`
}

func (*FrameRecord) TableName() string {
	return "frame_records"
}

// FpsEvent is a capture-side frame rate report
type FpsEvent struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	SessionID    uint      `json:"sessionId" gorm:"index:idx_fpsevent_session_id"`
	Session      Session   `gorm:"foreignkey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Time         time.Time `json:"time" gorm:"type:timestamptz"`
	CaptureFrame uint      `json:"captureFrame"`
	Fps          float64   `json:"fps"`
}

func (*FpsEvent) TableName() string {
	return "fps_events"
}

// GetOrInsert looks up a session by name and start time, inserting it if
// missing. The db record wins when found.
func (s *Session) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing Session
	err = db.Where("session_name = ? AND start_time = ?", s.SessionName, s.StartTime).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// insert
			err = db.Create(s).Error
			return true, err
		}
		return false, err
	}
	// overwrite with db record if found
	*s = existing
	return false, nil
}
