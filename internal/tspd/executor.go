package tspd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/search"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/logger"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	store    *RunStore
	hub      *StreamHub
	notifier *Notifier

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunTerminal  = errors.New("run is terminal")
	ErrRunIDMissing = errors.New("run_id is required")
)

func NewRunExecutor(store *RunStore, hub *StreamHub, notifier *Notifier) *RunExecutor {
	return &RunExecutor{
		store:    store,
		hub:      hub,
		notifier: notifier,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start begins stepping a run asynchronously on its playback interval.
// Returns the updated run state (running) or an error. Starting a run
// that is already running is a no-op.
func (e *RunExecutor) Start(runID string) (Run, error) {
	if runID == "" {
		return Run{}, ErrRunIDMissing
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	info := rec.Info()
	switch {
	case info.Status == RunStatusRunning:
		return info, nil
	case info.Status.IsTerminal():
		return Run{}, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	updated, err := e.store.SetStatus(runID, RunStatusRunning, "")
	if err != nil {
		return Run{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	// Replace any existing cancel func (shouldn't happen for non-running, but safe).
	if old, exists := e.cancels[runID]; exists {
		old()
	}
	e.cancels[runID] = cancel
	e.mu.Unlock()

	go e.drive(ctx, rec)
	return updated, nil
}

// Stop requests cancellation for a run and marks it stopped. The callback,
// if configured, fires with the final search state.
func (e *RunExecutor) Stop(runID string) (Run, error) {
	if runID == "" {
		return Run{}, ErrRunIDMissing
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Info().Status.IsTerminal() {
		return Run{}, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	e.mu.Lock()
	cancel, found := e.cancels[runID]
	e.mu.Unlock()
	if found {
		cancel()
	}

	updated, err := e.store.SetStatus(runID, RunStatusStopped, "")
	if err != nil {
		return Run{}, err
	}

	snap := rec.Snapshot()
	e.hub.CloseRun(runID)
	e.notify(rec, updated, snap)
	logger.Info("run stopped", "run_id", runID,
		"iterations", snap.Iteration,
		"best_distance", snap.BestDistance)
	return updated, nil
}

// Restart resets a run's search to a fresh random tour: the distance
// history, stuck counter and optima registry all start over. The run
// keeps its city set and its running/pending status.
func (e *RunExecutor) Restart(runID string) (search.Snapshot, error) {
	if runID == "" {
		return search.Snapshot{}, ErrRunIDMissing
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		return search.Snapshot{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Info().Status.IsTerminal() {
		return search.Snapshot{}, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	snap := rec.RestartSearch()
	e.hub.Broadcast(runID, snap)
	logger.Info("run restarted", "run_id", runID)
	return snap, nil
}

// Snapshot returns the run's current search state without advancing it.
func (e *RunExecutor) Snapshot(runID string) (search.Snapshot, error) {
	if runID == "" {
		return search.Snapshot{}, ErrRunIDMissing
	}

	rec, ok := e.store.Get(runID)
	if !ok {
		return search.Snapshot{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec.Snapshot(), nil
}

// StopAll stops every run with an active loop. Used during shutdown.
func (e *RunExecutor) StopAll() {
	e.mu.Lock()
	ids := make([]string, 0, len(e.cancels))
	for id := range e.cancels {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if _, err := e.Stop(id); err != nil && !errors.Is(err, ErrRunTerminal) {
			logger.Warn("failed to stop run during shutdown", "run_id", id, "error", err)
		}
	}
}

func (e *RunExecutor) cleanup(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		// Ensure cancel is called and remove.
		cancel()
		delete(e.cancels, runID)
	}
	e.mu.Unlock()
	e.hub.CloseRun(runID)
}

func (e *RunExecutor) drive(ctx context.Context, rec *RunRecord) {
	runID := rec.ID()
	defer e.cleanup(runID)

	playback := rec.Playback()
	ticker := time.NewTicker(playback.StepInterval())
	defer ticker.Stop()

	logger.Info("run loop started", "run_id", runID,
		"step_interval_ms", playback.StepIntervalMs,
		"max_iterations", playback.MaxIterations)

	for {
		select {
		case <-ctx.Done():
			logger.Info("run loop cancelled", "run_id", runID)
			return
		case <-ticker.C:
			snap := rec.Step()
			e.hub.Broadcast(runID, snap)

			if playback.MaxIterations > 0 && snap.Iteration >= playback.MaxIterations {
				updated, err := e.store.SetStatus(runID, RunStatusCompleted, "")
				if err != nil {
					// Lost the race with a concurrent Stop; that path already notified.
					logger.Error("failed to set completed status", "run_id", runID, "error", err)
					return
				}
				logger.Info("run completed", "run_id", runID,
					"iterations", snap.Iteration,
					"best_distance", snap.BestDistance,
					"mean_distance", utils.Mean(snap.History),
					"optima_found", snap.OptimaFound)
				e.notify(rec, updated, snap)
				return
			}
		}
	}
}

func (e *RunExecutor) notify(rec *RunRecord, run Run, snap search.Snapshot) {
	playback := rec.Playback()
	if playback.CallbackURL == "" || e.notifier == nil {
		return
	}
	e.notifier.Notify(playback.CallbackURL, playback.CallbackSecret, run, snap)
}
