package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/geo/r3"

	"github.com/ctralie/aruco2-fast/pkg/core"
	"github.com/ctralie/aruco2-fast/pkg/streaming"
)

// ParseSessionStart parses session configuration from raw args.
// Expected args: [sessionJSON] carrying a streaming.StartSessionPayload.
//
// Offsets resolve in two steps: explicit id->[x,y,z] entries win; when only
// a marker id list is given, page-stack defaults are derived from
// markerHeightMm.
func (p *Parser) ParseSessionStart(data []string) (core.Session, error) {
	var session core.Session

	if len(data) < 1 {
		return session, fmt.Errorf("session data needs 1 arg, got %d", len(data))
	}

	var payload streaming.StartSessionPayload
	if err := json.Unmarshal([]byte(data[0]), &payload); err != nil {
		return session, fmt.Errorf("error unmarshalling session data: %w", err)
	}

	if payload.Name == "" {
		return session, fmt.Errorf("session name is required")
	}

	session.Name = payload.Name
	session.DetectorName = payload.DetectorName
	session.DetectorVersion = payload.DetectorVersion
	session.TrackerVersion = p.trackerVersion
	session.StartTime = time.Now()
	session.MarkerSizeMm = payload.MarkerSizeMm
	session.FrameWidth = payload.FrameWidth
	session.FrameHeight = payload.FrameHeight

	switch {
	case len(payload.Offsets) > 0:
		offsets := make(map[int]r3.Vector, len(payload.Offsets))
		for idStr, v := range payload.Offsets {
			id, err := strconv.Atoi(idStr)
			if err != nil || id < 0 {
				p.logger.Warn("Ignoring offset with invalid marker id", "id", idStr)
				continue
			}
			offsets[id] = r3.Vector{X: v[0], Y: v[1], Z: v[2]}
		}
		if len(offsets) == 0 {
			return session, fmt.Errorf("offsets table has no valid entries")
		}
		session.Offsets = offsets
	case len(payload.MarkerIDs) > 0:
		session.Offsets = core.DeriveOffsets(payload.MarkerIDs, payload.MarkerHeightMm)
	default:
		return session, fmt.Errorf("session config needs offsets or markerIds")
	}

	session.FusionPolicy = payload.FusionPolicy
	if session.FusionPolicy == "" {
		session.FusionPolicy = core.FusionFirstOnly
	}
	session.ApplyOffsets = payload.ApplyOffsets

	return session, nil
}
