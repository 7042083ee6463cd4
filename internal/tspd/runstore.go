package tspd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/search"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/tour"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/config"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

var (
	// ErrRunExists is returned when creating a run under an ID already in use.
	ErrRunExists = errors.New("run already exists")
	// ErrRunIDInvalid is returned for run IDs that cannot appear in a URL path.
	ErrRunIDInvalid = errors.New("run ID cannot contain '/' or ':'")
)

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusStopped, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// Run is the externally visible state of one search run
type Run struct {
	ID              string        `json:"id"`
	Status          RunStatus     `json:"status"`
	Params          search.Params `json:"params"`
	CreatedAtUnixMs int64         `json:"created_at_unix_ms"`
	StartedAtUnixMs int64         `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64         `json:"ended_at_unix_ms,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// RunRecord pairs run metadata with the live controller driving its
// search. The controller itself is single-threaded; every access goes
// through the record mutex so the executor loop and HTTP readers never
// touch it at the same time.
type RunRecord struct {
	mu         sync.Mutex
	run        Run
	playback   config.PlaybackConfig
	controller *search.Controller
}

// ID returns the run's identifier
func (r *RunRecord) ID() string {
	return r.run.ID
}

// Info returns a copy of the run's externally visible state
func (r *RunRecord) Info() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run
}

// Playback returns the playback settings resolved for this run
func (r *RunRecord) Playback() config.PlaybackConfig {
	return r.playback
}

// Cities returns the city layout of the run's search
func (r *RunRecord) Cities() []tour.Point {
	return r.controller.Cities().Points()
}

// Step advances the run's search by one batch
func (r *RunRecord) Step() search.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controller.Step()
}

// Snapshot reads the run's search state without advancing it
func (r *RunRecord) Snapshot() search.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controller.Snapshot()
}

// RestartSearch resets the run's search state and returns the fresh snapshot
func (r *RunRecord) RestartSearch() search.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controller.Restart()
	return r.controller.Snapshot()
}

func (r *RunRecord) setStatus(status RunStatus, errMsg string) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.run.Status.IsTerminal() {
		return Run{}, fmt.Errorf("%w: %s is %s", ErrRunTerminal, r.run.ID, r.run.Status)
	}

	r.run.Status = status
	if errMsg != "" {
		r.run.Error = errMsg
	}

	switch status {
	case RunStatusRunning:
		if r.run.StartedAtUnixMs == 0 {
			r.run.StartedAtUnixMs = nowUnixMs()
		}
	case RunStatusStopped, RunStatusCompleted, RunStatusFailed:
		r.run.EndedAtUnixMs = nowUnixMs()
	}
	return r.run, nil
}

// RunStore holds every run hosted by the daemon
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*RunRecord),
	}
}

func nowUnixMs() int64 {
	return time.Now().UTC().UnixMilli()
}

// Create registers a new pending run. An empty runID gets a generated one.
// The search controller is built here, so parameter validation fails the
// creation rather than a later start.
func (s *RunStore) Create(runID string, params search.Params, playback config.PlaybackConfig) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if strings.ContainsAny(runID, "/:") {
		return nil, fmt.Errorf("%w: %q", ErrRunIDInvalid, runID)
	}
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	ctrl, err := search.New(params)
	if err != nil {
		return nil, err
	}

	rec := &RunRecord{
		run: Run{
			ID:              runID,
			Status:          RunStatusPending,
			Params:          ctrl.Params(),
			CreatedAtUnixMs: nowUnixMs(),
		},
		playback:   playback,
		controller: ctrl,
	}
	s.runs[runID] = rec
	return rec, nil
}

// Get looks up a run record by ID
func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	return rec, ok
}

// List returns up to limit runs, newest first, skipping the first offset
// matches. An empty status matches every run.
func (s *RunStore) List(limit, offset int, status RunStatus) []*RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	out := make([]*RunRecord, 0, utils.Min(limit, len(s.runs)))
	for _, rec := range s.runs {
		if status != "" && rec.Info().Status != status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Info(), out[j].Info()
		if a.CreatedAtUnixMs != b.CreatedAtUnixMs {
			return a.CreatedAtUnixMs > b.CreatedAtUnixMs
		}
		return a.ID < b.ID
	})
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SetStatus transitions a run and returns the updated state. A non-empty
// errMsg is recorded on the run.
func (s *RunStore) SetStatus(runID string, status RunStatus, errMsg string) (Run, error) {
	s.mu.RLock()
	rec, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec.setStatus(status, errMsg)
}

// Len returns the number of runs in the store
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}
