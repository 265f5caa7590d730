// Package server provides the HTTP control surface: a generic
// command dispatcher (POST /api/control) and a websocket event stream
// (GET /ws) fanning out transcript/state/level events to connected
// watchers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/murmurhq/murmur/internal/config"
	"github.com/murmurhq/murmur/internal/pipeline"
	"github.com/murmurhq/murmur/internal/trace"
)

// Rate limiting constants for the websocket connection.
const (
	RateLimitWindow   = time.Second
	RateLimitMessages = 20
)

// ControlRequest is the POST /api/control request body.
type ControlRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// ControlResponse is the POST /api/control response body.
type ControlResponse struct {
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// EventMessage is a websocket-broadcast event.
type EventMessage struct {
	Type  string  `json:"type"`
	Text  string  `json:"text,omitempty"`
	State string  `json:"state,omitempty"`
	Level float64 `json:"level,omitempty"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// ModelLister is satisfied by whatever directory-backed model catalog the
// daemon wires in; kept minimal so Server doesn't need to know about
// filesystem layout.
type ModelLister func() ([]string, error)

// HealthNotifier lets the control surface push a health-status
// recomputation after a runtime model swap. healthsvc.Server satisfies
// this; kept as a narrow interface so server does not need to import
// healthsvc's gRPC dependencies.
type HealthNotifier interface {
	RefreshStatus()
}

// Server is the control surface: HTTP command dispatch plus a websocket
// event fanout fed by a Pipeline's event channel.
type Server struct {
	pipe         *pipeline.Pipeline
	settings     *config.Settings
	settingsPath string
	settingsMu   sync.Mutex
	listModels   ModelLister
	health       HealthNotifier

	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a Server bound to a Pipeline and a mutable Settings pointer;
// settingsPath is where the "reload" command re-reads Settings from.
func New(pipe *pipeline.Pipeline, settings *config.Settings, settingsPath string, listModels ModelLister) *Server {
	s := &Server{
		pipe:         pipe,
		settings:     settings,
		settingsPath: settingsPath,
		listModels:   listModels,
		conns:        make(map[*websocket.Conn]struct{}),
		rateLimits:   make(map[*websocket.Conn]*rateLimiter),
	}
	go s.broadcastEvents()
	return s
}

// SetHealthNotifier wires a health surface so cmdModel can push a status
// recomputation after a runtime model swap. Optional: nil is a no-op.
func (s *Server) SetHealthNotifier(h HealthNotifier) {
	s.health = h
}

// Handler returns the HTTP handler: /ws and /api/control, trace+CORS
// wrapped.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("POST /api/control", s.handleControl)
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Watchers are read-only: drain inbound frames only to detect
	// disconnect and to apply rate limiting to noisy clients.
	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}
		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()
		if rl != nil && !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
		}
	}
}

func (s *Server) broadcastEvents() {
	for evt := range s.pipe.Events() {
		msg := eventMessage(evt)
		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn) {
				_ = wsjson.Write(context.Background(), c, msg)
			}(conn)
		}
		s.mu.RUnlock()
	}
}

func eventMessage(evt pipeline.Event) EventMessage {
	switch evt.Kind {
	case pipeline.EventTranscript:
		return EventMessage{Type: "transcript", Text: evt.Text}
	case pipeline.EventLevel:
		return EventMessage{Type: "level", Level: evt.Level}
	default:
		return EventMessage{Type: "state", State: evt.State}
	}
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeControl(w, ControlResponse{OK: false, Error: "invalid request body"})
		return
	}

	log := trace.Logger(r.Context())
	log.Info("control command", "command", req.Command, "args", req.Args)

	result, err := s.dispatch(req.Command, req.Args)
	if err != nil {
		writeControl(w, ControlResponse{OK: false, Error: err.Error()})
		return
	}
	writeControl(w, ControlResponse{OK: true, Result: result})
}

func writeControl(w http.ResponseWriter, resp ControlResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// dispatch implements the status/stop/models/model/continuous/mic-warm/
// reload command set.
func (s *Server) dispatch(command string, args []string) (interface{}, error) {
	switch command {
	case "status":
		return s.cmdStatus(), nil
	case "stop":
		return s.cmdStop(args)
	case "models":
		if s.listModels == nil {
			return []string{}, nil
		}
		return s.listModels()
	case "model":
		return s.cmdModel(args)
	case "continuous":
		return s.cmdContinuous(args)
	case "mic-warm":
		return s.cmdMicWarm(args)
	case "reload":
		return s.cmdReload()
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

func (s *Server) cmdStatus() map[string]interface{} {
	return map[string]interface{}{
		"recording":    s.pipe.IsRecording(),
		"transcribing": s.pipe.IsTranscribing(),
		"model":        s.pipe.CurrentModelName(),
		"audio_level":  s.pipe.AudioLevel(),
	}
}

func (s *Server) cmdStop(args []string) (interface{}, error) {
	isSend := len(args) > 0 && args[0] == "send"
	result, err := s.pipe.StopRecordingAndTranscribe(isSend)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return map[string]interface{}{"transcribed": false}, nil
	}
	return map[string]interface{}{"transcribed": true}, nil
}

func (s *Server) cmdModel(args []string) (interface{}, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("model command requires a name argument")
	}
	name := args[0]
	s.settingsMu.Lock()
	settings := s.settings
	s.settingsMu.Unlock()
	if err := s.pipe.LoadModel(name, settings.TranscriberSettings()); err != nil {
		return nil, err
	}
	if s.health != nil {
		s.health.RefreshStatus()
	}
	return map[string]string{"model": s.pipe.CurrentModelName()}, nil
}

func (s *Server) cmdContinuous(args []string) (interface{}, error) {
	on, err := parseOnOff(args)
	if err != nil {
		return nil, err
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	if on {
		s.settings.TranscriptionMode = "continuous"
	} else {
		s.settings.TranscriptionMode = "buffered"
	}
	s.pipe.SetConfig(s.settings.PipelineConfig())
	return map[string]string{"transcription_mode": s.settings.TranscriptionMode}, nil
}

func (s *Server) cmdMicWarm(args []string) (interface{}, error) {
	on, err := parseOnOff(args)
	if err != nil {
		return nil, err
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.settings.KeepMicWarm = on
	s.pipe.SetConfig(s.settings.PipelineConfig())
	return map[string]bool{"keep_mic_warm": on}, nil
}

func (s *Server) cmdReload() (interface{}, error) {
	settings, err := config.LoadSettings(s.settingsPath)
	if err != nil {
		return nil, err
	}
	s.settingsMu.Lock()
	*s.settings = settings
	s.settingsMu.Unlock()

	s.pipe.SetConfig(settings.PipelineConfig())
	s.pipe.ApplyVadSettings(settings.VadConfig())
	return map[string]bool{"reloaded": true}, nil
}

func parseOnOff(args []string) (bool, error) {
	if len(args) == 0 {
		return false, fmt.Errorf("expected on|off argument")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		if b, err := strconv.ParseBool(args[0]); err == nil {
			return b, nil
		}
		return false, fmt.Errorf("expected on|off, got %q", args[0])
	}
}
