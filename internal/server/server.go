// Package server exposes the control panel HTTP surface: synthesis, audio
// retrieval, settings, metrics, logs, status and the live WebSocket stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unicorn-commander/tts-panel/internal/audio"
	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/engine"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

const (
	audioFilePrefix = "real_speech_"
	audioFileSuffix = ".wav"

	metricsRecentLimit = 20

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ErrBadAudioName rejects audio filenames that could escape the audio
// directory.
var ErrBadAudioName = errors.New("invalid audio filename")

// Config holds the HTTP surface configuration.
type Config struct {
	Addr     string
	AudioDir string
	Mode     string
}

// Server wires the engine, settings and stream hub behind the HTTP mux.
type Server struct {
	cfg      Config
	engine   *engine.Engine
	settings *SettingsStore
	hub      *Hub
	log      *weblog.Log
	http     *http.Server
	started  time.Time
}

// New creates the server. Run starts it; Shutdown stops it.
func New(cfg Config, eng *engine.Engine, settings *SettingsStore, hub *Hub, log *weblog.Log) *Server {
	srv := &Server{
		cfg:      cfg,
		engine:   eng,
		settings: settings,
		hub:      hub,
		log:      log,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /synthesize", srv.handleSynthesize)
	mux.HandleFunc("GET /audio/{filename}", srv.handleAudio)
	mux.HandleFunc("GET /settings", srv.handleGetSettings)
	mux.HandleFunc("POST /settings", srv.handlePostSettings)
	mux.HandleFunc("GET /metrics", srv.handleMetrics)
	mux.HandleFunc("GET /logs", srv.handleLogs)
	mux.HandleFunc("GET /status", srv.handleStatus)
	mux.HandleFunc("GET /system", srv.handleSystem)
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.Handle("GET /ws", hub)

	srv.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("HTTP surface listening on %s", s.cfg.Addr)

	err := s.http.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

// Shutdown drains in-flight requests and closes the stream hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("http shutdown failed: %w", err)
	}

	return nil
}

type synthesizeRequest struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice"`
	Speed  float64 `json:"speed"`
	Method string  `json:"method"`
}

type synthesizeMetrics struct {
	GenerationTime string `json:"generation_time"`
	AudioLength    string `json:"audio_length"`
	RTF            string `json:"rtf"`
	MethodUsed     string `json:"method_used"`
	Voice          string `json:"voice"`
	SampleRate     int    `json:"sample_rate"`
}

type synthesizeResponse struct {
	Success  bool              `json:"success"`
	Filename string            `json:"filename"`
	AudioURL string            `json:"audio_url"`
	Degraded bool              `json:"degraded,omitempty"`
	Metrics  synthesizeMetrics `json:"metrics"`
	Message  string            `json:"message"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))

		return
	}

	settings := s.settings.Get()

	if len(req.Text) > settings.MaxTextLength {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf(
			"text length %d exceeds limit %d", len(req.Text), settings.MaxTextLength,
		))

		return
	}

	if req.Method == "" {
		req.Method = settings.PreferredMethod
	}

	if req.Speed == 0 {
		req.Speed = settings.Speed
	}

	result, record, err := s.engine.Synthesize(r.Context(), core.SynthesisRequest{
		Text:   req.Text,
		Voice:  req.Voice,
		Speed:  req.Speed,
		Method: req.Method,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if engine.IsClientInputError(err) {
			status = http.StatusBadRequest
		}

		s.writeError(w, status, err)

		return
	}

	filename, err := s.persistAudio(result)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	s.writeJSON(w, http.StatusOK, synthesizeResponse{
		Success:  true,
		Filename: filename,
		AudioURL: "/audio/" + filename,
		Degraded: result.Degraded,
		Metrics: synthesizeMetrics{
			GenerationTime: fmt.Sprintf("%.2f", record.GenerationTime),
			AudioLength:    fmt.Sprintf("%.2f", record.AudioDuration),
			RTF:            fmt.Sprintf("%.3f", record.RTF),
			MethodUsed:     string(result.Backend),
			Voice:          req.Voice,
			SampleRate:     result.SampleRate,
		},
		Message: "Speech generated successfully",
	})
}

func (s *Server) persistAudio(result *core.SynthesisResult) (string, error) {
	wavBytes, err := audio.EncodeWAV(result.Audio, result.SampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode audio: %w", err)
	}

	mkErr := os.MkdirAll(s.cfg.AudioDir, 0o750)
	if mkErr != nil {
		return "", fmt.Errorf("failed to create audio directory: %w", mkErr)
	}

	filename := audioFilePrefix + uuid.NewString()[:8] + audioFileSuffix

	writeErr := os.WriteFile(filepath.Join(s.cfg.AudioDir, filename), wavBytes, 0o600)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	return filename, nil
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	err := validateAudioName(filename)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	path := filepath.Join(s.cfg.AudioDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, fmt.Errorf("audio file %q not found", filename))

			return
		}

		s.writeError(w, http.StatusInternalServerError, err)

		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// validateAudioName accepts only names this server generates.
func validateAudioName(filename string) error {
	if filename == "" ||
		filename != filepath.Base(filename) ||
		strings.ContainsAny(filename, "/\\") ||
		strings.Contains(filename, "..") ||
		!strings.HasPrefix(filename, audioFilePrefix) ||
		!strings.HasSuffix(filename, audioFileSuffix) {
		return fmt.Errorf("%w: %q", ErrBadAudioName, filename)
	}

	return nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var update map[string]any

	err := json.NewDecoder(r.Body).Decode(&update)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))

		return
	}

	next, err := s.settings.Apply(update)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)

		return
	}

	s.log.SetLevel(next.LogLevel)
	s.log.Info("Settings updated: %d key(s)", len(update))
	s.writeJSON(w, http.StatusOK, next)
}

type metricsResponse struct {
	Recent  []core.MetricRecord   `json:"recent"`
	Summary engine.MetricsSummary `json:"summary"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	ring := s.engine.Metrics()

	s.writeJSON(w, http.StatusOK, metricsResponse{
		Recent:  ring.Recent(metricsRecentLimit),
		Summary: ring.Summary(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"logs": s.log.Buffer().History(),
	})
}

type statusResponse struct {
	Capability    core.Capability `json:"capability"`
	Voices        []string        `json:"voices"`
	ExecutionMode string          `json:"execution_mode"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Clients       int             `json:"ws_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, statusResponse{
		Capability:    s.engine.Capability(r.Context()),
		Voices:        s.engine.Voices(),
		ExecutionMode: s.cfg.Mode,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Clients:       s.hub.ClientCount(),
	})
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, collectSystemInfo(r.Context(), s.log))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		s.log.Warn("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed (%d): %v", status, err)
	} else {
		s.log.Warn("Request rejected (%d): %v", status, err)
	}

	s.writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}
