package parser

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

func TestParseSessionStart(t *testing.T) {
	p := NewParser(nil, "1.2.0")

	tests := []struct {
		name    string
		input   []string
		check   func(t *testing.T, s core.Session)
		wantErr bool
	}{
		{
			name: "explicit offsets",
			input: []string{
				`{"name":"desk-test","detectorName":"js-aruco2","detectorVersion":"2.1.0","markerSizeMm":50,"frameWidth":640,"frameHeight":480,"offsets":{"0":[0,0,0],"1":[0,279.4,0]}}`,
			},
			check: func(t *testing.T, s core.Session) {
				assert.Equal(t, "desk-test", s.Name)
				assert.Equal(t, "js-aruco2", s.DetectorName)
				assert.Equal(t, "2.1.0", s.DetectorVersion)
				assert.Equal(t, "1.2.0", s.TrackerVersion)
				assert.Equal(t, 50.0, s.MarkerSizeMm)
				require.Len(t, s.Offsets, 2)
				assert.Equal(t, r3.Vector{X: 0, Y: 279.4, Z: 0}, s.Offsets[1])
			},
		},
		{
			name: "derived offsets from marker ids",
			input: []string{
				`{"name":"stack","markerSizeMm":50,"markerIds":[0,1,2],"markerHeightMm":279.4}`,
			},
			check: func(t *testing.T, s core.Session) {
				require.Len(t, s.Offsets, 3)
				assert.Equal(t, r3.Vector{}, s.Offsets[0])
				assert.InDelta(t, 558.8, s.Offsets[2].Y, 1e-9)
			},
		},
		{
			name: "derived offsets default height",
			input: []string{
				`{"name":"stack","markerSizeMm":50,"markerIds":[0,1]}`,
			},
			check: func(t *testing.T, s core.Session) {
				assert.InDelta(t, core.DefaultMarkerHeightMm, s.Offsets[1].Y, 1e-9)
			},
		},
		{
			name: "invalid offset keys ignored",
			input: []string{
				`{"name":"x","markerSizeMm":50,"offsets":{"0":[0,0,0],"bad":[1,1,1],"-2":[2,2,2]}}`,
			},
			check: func(t *testing.T, s core.Session) {
				require.Len(t, s.Offsets, 1)
				_, ok := s.Offsets[0]
				assert.True(t, ok)
			},
		},
		{
			name: "fusion policy defaults to first-only",
			input: []string{
				`{"name":"x","markerSizeMm":50,"markerIds":[0]}`,
			},
			check: func(t *testing.T, s core.Session) {
				assert.Equal(t, core.FusionFirstOnly, s.FusionPolicy)
				assert.False(t, s.ApplyOffsets)
			},
		},
		{
			name: "fusion policy and apply offsets pass through",
			input: []string{
				`{"name":"x","markerSizeMm":50,"markerIds":[0],"fusionPolicy":"average-all","applyOffsets":true}`,
			},
			check: func(t *testing.T, s core.Session) {
				assert.Equal(t, core.FusionAverageAll, s.FusionPolicy)
				assert.True(t, s.ApplyOffsets)
			},
		},
		{
			name:    "no args",
			input:   []string{},
			wantErr: true,
		},
		{
			name:    "bad JSON",
			input:   []string{`{"name":`},
			wantErr: true,
		},
		{
			name:    "missing name",
			input:   []string{`{"markerSizeMm":50,"markerIds":[0]}`},
			wantErr: true,
		},
		{
			name:    "no offsets and no marker ids",
			input:   []string{`{"name":"x","markerSizeMm":50}`},
			wantErr: true,
		},
		{
			name:    "all offset keys invalid",
			input:   []string{`{"name":"x","markerSizeMm":50,"offsets":{"bad":[0,0,0]}}`},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := p.ParseSessionStart(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, session)
		})
	}
}

func TestParseUintFromFloat(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{"32", 32, false},
		{"32.00", 32, false},
		{"0", 0, false},
		{"-1", 0, true},
		{"3.5", 0, true},
		{"frame", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseUintFromFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
