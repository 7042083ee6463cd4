package tspd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/search"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/config"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

type HTTPServer struct {
	mux      *http.ServeMux
	store    *RunStore
	hub      *StreamHub
	Executor *RunExecutor

	engine   config.EngineConfig
	playback config.PlaybackConfig
	upgrader websocket.Upgrader
}

func NewHTTPServer(store *RunStore, executor *RunExecutor, hub *StreamHub, cfg *config.Config) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    store,
		hub:      hub,
		Executor: executor,
		engine:   cfg.Engine,
		playback: cfg.Playback,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/v1/runs/", s.handleRunByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"runs":      s.store.Len(),
	}); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// handleRuns handles /v1/runs endpoint
func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRunByID handles /v1/runs/{id} and related endpoints
func (s *HTTPServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	// Parse path: /v1/runs/{id}, /v1/runs/{id}:stop or a /v1/runs/{id}/... view
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	// Check for :stop suffix
	if strings.HasSuffix(path, ":stop") {
		runID := strings.TrimSuffix(path, ":stop")
		if r.Method == http.MethodPost {
			s.handleStopRun(w, r, runID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	// Check for :restart suffix
	if strings.HasSuffix(path, ":restart") {
		runID := strings.TrimSuffix(path, ":restart")
		if r.Method == http.MethodPost {
			s.handleRestartRun(w, r, runID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	// Check for /snapshot/stream suffix (SSE) before the plain /snapshot view
	if strings.HasSuffix(path, "/snapshot/stream") {
		runID := strings.TrimSuffix(path, "/snapshot/stream")
		if r.Method == http.MethodGet {
			s.handleSnapshotStream(w, r, runID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	// Check for /snapshot suffix
	if strings.HasSuffix(path, "/snapshot") {
		runID := strings.TrimSuffix(path, "/snapshot")
		if r.Method == http.MethodGet {
			s.handleGetSnapshot(w, r, runID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	// Check for /watch suffix (websocket)
	if strings.HasSuffix(path, "/watch") {
		runID := strings.TrimSuffix(path, "/watch")
		if r.Method == http.MethodGet {
			s.handleWatchRun(w, r, runID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	// Otherwise it's GET /v1/runs/{id}
	if r.Method == http.MethodGet {
		s.handleGetRun(w, r, path)
	} else {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createRunRequest struct {
	RunID    string          `json:"run_id,omitempty"`
	Params   *runParamsInput `json:"params,omitempty"`
	Playback *playbackInput  `json:"playback,omitempty"`
}

// runParamsInput uses pointers so an absent field inherits the daemon
// default while an explicit zero keeps its meaning (a zero seed asks for
// a time-based one, zero candidates freezes the tour).
type runParamsInput struct {
	Cities         *int   `json:"cities"`
	Candidates     *int   `json:"candidates_per_step"`
	StuckThreshold *int   `json:"stuck_threshold"`
	Seed           *int64 `json:"seed"`
}

type playbackInput struct {
	StepIntervalMs int    `json:"step_interval_ms"`
	MaxIterations  int64  `json:"max_iterations"`
	CallbackURL    string `json:"callback_url"`
	CallbackSecret string `json:"callback_secret"`
}

func (s *HTTPServer) resolveParams(in *runParamsInput) search.Params {
	p := search.Params{
		Cities:         s.engine.Cities,
		Candidates:     s.engine.Candidates,
		StuckThreshold: s.engine.StuckThreshold,
		Seed:           s.engine.Seed,
	}
	if in == nil {
		return p
	}
	if in.Cities != nil {
		p.Cities = *in.Cities
	}
	if in.Candidates != nil {
		p.Candidates = *in.Candidates
	}
	if in.StuckThreshold != nil {
		p.StuckThreshold = *in.StuckThreshold
	}
	if in.Seed != nil {
		p.Seed = *in.Seed
		if p.Seed == 0 {
			p.Seed = time.Now().UnixNano()
		}
	}
	return p
}

func (s *HTTPServer) resolvePlayback(in *playbackInput) (config.PlaybackConfig, error) {
	pb := s.playback
	if in == nil {
		return pb, nil
	}
	if in.StepIntervalMs < 0 {
		return pb, errors.New("step_interval_ms cannot be negative")
	}
	if in.StepIntervalMs > 0 {
		pb.StepIntervalMs = in.StepIntervalMs
	}
	if in.MaxIterations < 0 {
		return pb, errors.New("max_iterations cannot be negative")
	}
	if in.MaxIterations > 0 {
		pb.MaxIterations = in.MaxIterations
	}
	if in.CallbackURL != "" {
		pb.CallbackURL = in.CallbackURL
	}
	if in.CallbackSecret != "" {
		pb.CallbackSecret = in.CallbackSecret
	}
	if pb.CallbackURL != "" {
		if err := validateCallbackURL(pb.CallbackURL); err != nil {
			return pb, err
		}
	}
	return pb, nil
}

// handleCreateRun handles POST /v1/runs. New runs start stepping
// immediately on their playback interval.
func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	params := s.resolveParams(req.Params)
	playback, err := s.resolvePlayback(req.Playback)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.Create(req.RunID, params, playback)
	if err != nil {
		var paramErr *search.InvalidParamError
		switch {
		case errors.As(err, &paramErr):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRunIDInvalid):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRunExists):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	started, err := s.Executor.Start(rec.ID())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("run created (HTTP)", "run_id", rec.ID(), "cities", params.Cities)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"run":      started,
		"cities":   rec.Cities(),
		"snapshot": rec.Snapshot(),
	})
}

// handleListRuns handles GET /v1/runs with pagination and filtering
func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			// Cap at reasonable maximum
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var statusFilter RunStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		statusFilter = parseRunStatus(statusStr)
		if statusFilter == "" {
			s.writeError(w, http.StatusBadRequest, "unknown status filter: "+statusStr)
			return
		}
	}

	recs := s.store.List(limit, offset, statusFilter)
	runs := make([]Run, 0, len(recs))
	for _, rec := range recs {
		runs = append(runs, rec.Info())
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs": runs,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(runs),
		},
	})
}

// parseRunStatus parses a status query value. Unknown names map to the
// empty status.
func parseRunStatus(statusStr string) RunStatus {
	switch strings.ToLower(statusStr) {
	case "pending":
		return RunStatusPending
	case "running":
		return RunStatusRunning
	case "stopped":
		return RunStatusStopped
	case "completed":
		return RunStatusCompleted
	case "failed":
		return RunStatusFailed
	default:
		return ""
	}
}

// handleGetRun handles GET /v1/runs/{id}
func (s *HTTPServer) handleGetRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"run":    rec.Info(),
		"cities": rec.Cities(),
	})
}

// handleGetSnapshot handles GET /v1/runs/{id}/snapshot
func (s *HTTPServer) handleGetSnapshot(w http.ResponseWriter, _ *http.Request, runID string) {
	snap, err := s.Executor.Snapshot(runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"snapshot": snap,
	})
}

// handleStopRun handles POST /v1/runs/{id}:stop
func (s *HTTPServer) handleStopRun(w http.ResponseWriter, _ *http.Request, runID string) {
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	logger.Info("run stopped (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": updated,
	})
}

// handleRestartRun handles POST /v1/runs/{id}:restart
func (s *HTTPServer) handleRestartRun(w http.ResponseWriter, _ *http.Request, runID string) {
	snap, err := s.Executor.Restart(runID)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	logger.Info("run restarted (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"snapshot": snap,
	})
}

// handleSnapshotStream handles GET /v1/runs/{id}/snapshot/stream (SSE)
func (s *HTTPServer) handleSnapshotStream(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sub := s.hub.Subscribe(runID)
	defer sub.Close()
	logger.Debug("snapshot stream opened", "run_id", runID, "client_id", sub.ID())

	// Current state first so late subscribers can render immediately.
	s.sendSSEEvent(w, "snapshot", rec.Snapshot())
	flusher.Flush()

	if info := rec.Info(); info.Status.IsTerminal() {
		s.sendSSEEvent(w, "complete", map[string]any{"status": info.Status})
		flusher.Flush()
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return
		case snap, open := <-sub.C:
			if !open {
				s.sendSSEEvent(w, "complete", map[string]any{"status": rec.Info().Status})
				flusher.Flush()
				return
			}
			s.sendSSEEvent(w, "snapshot", snap)
			flusher.Flush()
		}
	}
}

// handleWatchRun handles GET /v1/runs/{id}/watch (websocket)
func (s *HTTPServer) handleWatchRun(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		logger.Warn("websocket upgrade failed", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(runID)
	defer sub.Close()
	logger.Debug("watch stream opened", "run_id", runID, "client_id", sub.ID())

	// Reader goroutine: consumes control frames and detects client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeSnapshot := func(snap search.Snapshot) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(map[string]any{
			"type":     "snapshot",
			"snapshot": snap,
		})
	}
	writeComplete := func() {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(map[string]any{
			"type":   "complete",
			"status": rec.Info().Status,
		}); err != nil {
			return
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}

	if err := writeSnapshot(rec.Snapshot()); err != nil {
		return
	}
	if rec.Info().Status.IsTerminal() {
		writeComplete()
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case snap, open := <-sub.C:
			if !open {
				writeComplete()
				return
			}
			if err := writeSnapshot(snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendSSEEvent sends a Server-Sent Event
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}

	// Write event in SSE format.
	// Errors are logged but not returned as SSE streams are best-effort.
	if _, err := w.Write([]byte("event: " + eventType + "\n")); err != nil {
		logger.Error("failed to write SSE event header", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: " + string(jsonData) + "\n\n")); err != nil {
		logger.Error("failed to write SSE event data", "error", err)
		return
	}
}

// Helper functions

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

// writeRunError maps executor errors onto HTTP status codes
func (s *HTTPServer) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRunIDMissing):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRunTerminal):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
