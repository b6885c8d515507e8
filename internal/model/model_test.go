package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"TrackerInfo", &TrackerInfo{}, "tracker_infos"},
		{"Session", &Session{}, "sessions"},
		{"Detection", &Detection{}, "detections"},
		{"FusedPose", &FusedPose{}, "fused_poses"},
		{"FrameRecord", &FrameRecord{}, "frame_records"},
		{"FpsEvent", &FpsEvent{}, "fps_events"},
		{"SessionPerformance", &SessionPerformance{}, "session_performances"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModels_ContainsAllTables(t *testing.T) {
	assert.Len(t, DatabaseModels, 7)
}
