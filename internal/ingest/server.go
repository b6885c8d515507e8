// Package ingest runs the WebSocket server that capture clients connect to.
// Each incoming envelope is translated into a dispatcher command; session
// lifecycle messages are acknowledged so clients can gate recording on them.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/internal/dispatcher"
	"github.com/ctralie/aruco2-fast/pkg/streaming"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // capture clients run on arbitrary origins
	},
}

// Server accepts capture-client WebSocket connections and feeds the
// dispatcher.
type Server struct {
	cfg    config.IngestConfig
	disp   *dispatcher.Dispatcher
	logger *slog.Logger

	srv *http.Server

	mu    sync.Mutex
	conns map[*ws.Conn]struct{}
}

// New creates an ingest server. Commands are dispatched on the provided
// dispatcher, which must have handlers registered before Start.
func New(cfg config.IngestConfig, disp *dispatcher.Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		disp:   disp,
		logger: logger,
		conns:  make(map[*ws.Conn]struct{}),
	}
}

// Start begins listening. It blocks until the server stops; pass the error
// through except for a clean shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", s.handleWS)

	s.srv = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("Ingest server listening", "addr", s.cfg.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and closes all live connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = make(map[*ws.Conn]struct{})
	s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Secret != "" && r.URL.Query().Get("secret") != s.cfg.Secret {
		s.logger.Warn("Rejecting client with bad secret", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Capture client connected", "remote", r.RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		s.logger.Info("Capture client disconnected", "remote", r.RemoteAddr)
	}()

	// Serialize writes: acks and close frames share the connection.
	var writeMu sync.Mutex

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.logger.Warn("WebSocket read error", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.logger.Warn("Dropping malformed envelope", "remote", r.RemoteAddr, "error", err)
			continue
		}

		if err := s.dispatchEnvelope(env); err != nil {
			s.logger.Error("Envelope dispatch failed", "type", env.Type, "error", err)
			continue
		}

		// Session lifecycle messages get an ack so clients can gate on them.
		if env.Type == streaming.TypeStartSession || env.Type == streaming.TypeEndSession {
			ack, _ := json.Marshal(streaming.AckMessage{Type: "ack", For: env.Type})
			writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := conn.WriteMessage(ws.TextMessage, ack)
			writeMu.Unlock()
			if err != nil {
				s.logger.Warn("Failed to write ack", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

// dispatchEnvelope maps one wire envelope onto a dispatcher command.
func (s *Server) dispatchEnvelope(env streaming.Envelope) error {
	switch env.Type {
	case streaming.TypeStartSession:
		_, err := s.disp.Dispatch(dispatcher.Event{
			Command: ":NEW:SESSION:",
			Args:    []string{string(env.Payload)},
		})
		return err

	case streaming.TypeEndSession:
		_, err := s.disp.Dispatch(dispatcher.Event{Command: ":END:SESSION:"})
		return err

	case streaming.TypeFrame:
		var p streaming.FramePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("frame payload: %w", err)
		}
		detections, err := json.Marshal(p.Detections)
		if err != nil {
			return fmt.Errorf("frame detections: %w", err)
		}
		_, err = s.disp.Dispatch(dispatcher.Event{
			Command: ":NEW:FRAME:",
			Args: []string{
				strconv.FormatUint(uint64(p.CaptureFrame), 10),
				strconv.FormatFloat(p.Width, 'f', -1, 64),
				strconv.FormatFloat(p.Height, 'f', -1, 64),
				string(detections),
			},
		})
		return err

	case streaming.TypeFps:
		var p streaming.FpsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("fps payload: %w", err)
		}
		_, err := s.disp.Dispatch(dispatcher.Event{
			Command: ":FPS:",
			Args: []string{
				strconv.FormatUint(uint64(p.CaptureFrame), 10),
				strconv.FormatFloat(p.Fps, 'f', -1, 64),
			},
		})
		return err

	default:
		return fmt.Errorf("unknown envelope type %q", env.Type)
	}
}
