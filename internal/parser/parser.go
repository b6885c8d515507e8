package parser

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Service is the parsing contract consumed by the worker layer.
type Service interface {
	ParseSessionStart(data []string) (core.Session, error)
	ParseFrame(data []string) (core.FrameState, []core.MarkerDetection, error)
	ParseFps(data []string) (core.FpsReport, error)
}

// Parser provides pure []string -> model struct conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger  *slog.Logger
	session atomic.Pointer[core.Session]

	// Static config set at creation time
	trackerVersion string
}

// NewParser creates a new parser with only a logger dependency.
func NewParser(logger *slog.Logger, trackerVersion string) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:         logger,
		trackerVersion: trackerVersion,
	}
}

// SetSession sets the current session for SessionID lookups.
func (p *Parser) SetSession(s *core.Session) {
	p.session.Store(s)
}

func (p *Parser) getSessionID() uint {
	s := p.session.Load()
	if s == nil {
		return 0
	}
	return s.ID
}

// parseUintFromFloat parses a string that may be an integer ("32") or float
// ("32.00") into uint64. Capture clients count frames in floating point, so
// frame numbers may arrive either way.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}
