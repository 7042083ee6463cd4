//go:build integration
// +build integration

package integration_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/tspd"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/config"
)

func newDaemon(t *testing.T) (*tspd.HTTPServer, *tspd.RunStore, *tspd.RunExecutor) {
	t.Helper()
	cfg := config.Default()
	cfg.Playback.StepIntervalMs = 1

	store := tspd.NewRunStore()
	hub := tspd.NewStreamHub()
	executor := tspd.NewRunExecutor(store, hub, tspd.NewNotifier())
	t.Cleanup(executor.StopAll)
	return tspd.NewHTTPServer(store, executor, hub, cfg), store, executor
}

func postJSON(t *testing.T, srv *tspd.HTTPServer, path string, body map[string]any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json response: %v: %s", err, rr.Body.String())
		}
	}
	return rr, decoded
}

func getJSON(t *testing.T, srv *tspd.HTTPServer, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler().ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json response: %v: %s", err, rr.Body.String())
		}
	}
	return rr, decoded
}

func waitForRunStatus(t *testing.T, store *tspd.RunStore, runID string, want tspd.RunStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, ok := store.Get(runID)
		if ok && rec.Info().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, ok := store.Get(runID)
	if !ok {
		t.Fatalf("run %s not found", runID)
	}
	t.Fatalf("expected status %v, got %v", want, rec.Info().Status)
}

// TestIntegration_HTTPEndpoints_FullLifecycle drives one run through
// create, poll, completion, snapshot, list, and restart rejection.
func TestIntegration_HTTPEndpoints_FullLifecycle(t *testing.T) {
	srv, store, _ := newDaemon(t)

	rr, body := postJSON(t, srv, "/v1/runs", map[string]any{
		"run_id": "lifecycle-run",
		"params": map[string]any{
			"cities":              12,
			"candidates_per_step": 4,
			"stuck_threshold":     6,
			"seed":                7,
		},
		"playback": map[string]any{
			"step_interval_ms": 1,
			"max_iterations":   20,
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	run, ok := body["run"].(map[string]any)
	if !ok {
		t.Fatalf("expected run object in create response")
	}
	if run["id"].(string) != "lifecycle-run" {
		t.Fatalf("expected run id lifecycle-run, got %v", run["id"])
	}
	if run["status"].(string) != "running" {
		t.Fatalf("expected created run to be running, got %v", run["status"])
	}
	cities, ok := body["cities"].([]any)
	if !ok || len(cities) != 12 {
		t.Fatalf("expected 12 cities in create response, got %v", body["cities"])
	}

	waitForRunStatus(t, store, "lifecycle-run", tspd.RunStatusCompleted)

	rr, body = getJSON(t, srv, "/v1/runs/lifecycle-run")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	run = body["run"].(map[string]any)
	if run["status"].(string) != "completed" {
		t.Fatalf("expected completed, got %v", run["status"])
	}
	if _, ok := run["ended_at_unix_ms"]; !ok {
		t.Fatalf("expected ended_at_unix_ms on a completed run")
	}

	rr, body = getJSON(t, srv, "/v1/runs/lifecycle-run/snapshot")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	snap := body["snapshot"].(map[string]any)
	if got := int64(snap["iteration"].(float64)); got != 20 {
		t.Fatalf("expected 20 iterations at completion, got %d", got)
	}
	if tourLen := len(snap["tour"].([]any)); tourLen != 12 {
		t.Fatalf("expected tour over 12 cities, got %d", tourLen)
	}
	if _, ok := snap["best_distance"]; !ok {
		t.Fatalf("expected best_distance in snapshot")
	}

	rr, body = getJSON(t, srv, "/v1/runs")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	runs := body["runs"].([]any)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run in list, got %d", len(runs))
	}

	// A completed run cannot be restarted in place.
	rr, _ = postJSON(t, srv, "/v1/runs/lifecycle-run:restart", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409 restarting a completed run, got %d", rr.Code)
	}
}

// TestIntegration_HTTPEndpoints_StopAndRestart exercises the control
// endpoints against a run with no iteration cap.
func TestIntegration_HTTPEndpoints_StopAndRestart(t *testing.T) {
	srv, store, _ := newDaemon(t)

	rr, body := postJSON(t, srv, "/v1/runs", map[string]any{
		"run_id": "control-run",
		"params": map[string]any{
			"cities":              10,
			"candidates_per_step": 3,
			"stuck_threshold":     5,
			"seed":                3,
		},
		"playback": map[string]any{"step_interval_ms": 1},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	// Let the loop take a few steps, then restart in place.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body = getJSON(t, srv, "/v1/runs/control-run/snapshot")
		snap := body["snapshot"].(map[string]any)
		if snap["iteration"].(float64) >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	rr, body = postJSON(t, srv, "/v1/runs/control-run:restart", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	snap := body["snapshot"].(map[string]any)
	if got := snap["iteration"].(float64); got != 0 {
		t.Fatalf("expected iteration 0 after restart, got %v", got)
	}
	if hist := len(snap["history"].([]any)); hist != 1 {
		t.Fatalf("expected history reset to 1 entry, got %d", hist)
	}

	rr, body = postJSON(t, srv, "/v1/runs/control-run:stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	run := body["run"].(map[string]any)
	if run["status"].(string) != "stopped" {
		t.Fatalf("expected stopped, got %v", run["status"])
	}
	waitForRunStatus(t, store, "control-run", tspd.RunStatusStopped)

	// Second stop is a conflict, not a repeat.
	rr, _ = postJSON(t, srv, "/v1/runs/control-run:stop", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409 on double stop, got %d", rr.Code)
	}
}

// TestIntegration_HTTPEndpoints_ListRuns tests pagination and status filters
func TestIntegration_HTTPEndpoints_ListRuns(t *testing.T) {
	srv, store, executor := newDaemon(t)

	for _, id := range []string{"list-a", "list-b", "list-c", "list-d"} {
		rr, _ := postJSON(t, srv, "/v1/runs", map[string]any{
			"run_id": id,
			"params": map[string]any{
				"cities":              8,
				"candidates_per_step": 2,
				"stuck_threshold":     4,
				"seed":                11,
			},
			"playback": map[string]any{"step_interval_ms": 1},
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("create %s: expected status 201, got %d", id, rr.Code)
		}
	}

	if _, err := executor.Stop("list-a"); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	waitForRunStatus(t, store, "list-a", tspd.RunStatusStopped)

	rr, body := getJSON(t, srv, "/v1/runs")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if runs := body["runs"].([]any); len(runs) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(runs))
	}

	rr, body = getJSON(t, srv, "/v1/runs?limit=2&offset=1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if runs := body["runs"].([]any); len(runs) != 2 {
		t.Fatalf("expected 2 runs with limit=2, got %d", len(runs))
	}
	pagination := body["pagination"].(map[string]any)
	if got := pagination["limit"].(float64); got != 2 {
		t.Fatalf("expected echoed limit 2, got %v", got)
	}

	rr, body = getJSON(t, srv, "/v1/runs?status=stopped")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	runs := body["runs"].([]any)
	if len(runs) != 1 {
		t.Fatalf("expected 1 stopped run, got %d", len(runs))
	}
	if got := runs[0].(map[string]any)["id"].(string); got != "list-a" {
		t.Fatalf("expected list-a, got %v", got)
	}

	rr, _ = getJSON(t, srv, "/v1/runs?status=paused")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for unknown filter, got %d", rr.Code)
	}
}

// TestIntegration_HTTPEndpoints_SnapshotStream consumes the SSE feed of a
// short run over a real HTTP connection until the completion event.
func TestIntegration_HTTPEndpoints_SnapshotStream(t *testing.T) {
	srv, _, _ := newDaemon(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	rr, _ := postJSON(t, srv, "/v1/runs", map[string]any{
		"run_id": "stream-run",
		"params": map[string]any{
			"cities":              8,
			"candidates_per_step": 2,
			"stuck_threshold":     4,
			"seed":                5,
		},
		"playback": map[string]any{
			"step_interval_ms": 5,
			"max_iterations":   30,
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(ts.URL + "/v1/runs/stream-run/snapshot/stream")
	if err != nil {
		t.Fatalf("stream request error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	snapshots, complete := 0, false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: snapshot"):
			snapshots++
		case strings.HasPrefix(line, "event: complete"):
			complete = true
		}
		if complete {
			break
		}
	}
	if !complete {
		t.Fatalf("stream ended without a complete event: %v", scanner.Err())
	}
	if snapshots == 0 {
		t.Fatalf("expected at least one snapshot event before completion")
	}
}

// TestIntegration_HTTPEndpoints_CallbackDelivery verifies that a run
// created with a callback URL notifies it on completion.
func TestIntegration_HTTPEndpoints_CallbackDelivery(t *testing.T) {
	srv, store, _ := newDaemon(t)

	payloads := make(chan map[string]any, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			select {
			case payloads <- payload:
			default:
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	// The loopback-IP form of hook.URL would be refused; use localhost.
	hookURL, err := url.Parse(hook.URL)
	if err != nil {
		t.Fatalf("parse hook URL: %v", err)
	}
	callback := "http://localhost:" + hookURL.Port() + "/hooks/{run_id}"

	rr, _ := postJSON(t, srv, "/v1/runs", map[string]any{
		"run_id": "callback-run",
		"params": map[string]any{
			"cities":              8,
			"candidates_per_step": 2,
			"stuck_threshold":     4,
			"seed":                9,
		},
		"playback": map[string]any{
			"step_interval_ms": 1,
			"max_iterations":   5,
			"callback_url":     callback,
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	waitForRunStatus(t, store, "callback-run", tspd.RunStatusCompleted)

	select {
	case payload := <-payloads:
		if got := payload["run_id"].(string); got != "callback-run" {
			t.Fatalf("expected run_id callback-run, got %v", got)
		}
		if got := payload["status"].(string); got != "completed" {
			t.Fatalf("expected status completed, got %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("callback not delivered")
	}
}

// TestIntegration_ConfigLoadSmoke loads the checked-in daemon config
func TestIntegration_ConfigLoadSmoke(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "config", "config.yaml")

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig(%s) failed: %v", cfgPath, err)
	}
	if cfg.Engine.Cities < 2 {
		t.Fatalf("expected config to define at least 2 cities, got %d", cfg.Engine.Cities)
	}
	if cfg.Playback.StepIntervalMs <= 0 {
		t.Fatalf("expected a positive step interval, got %d", cfg.Playback.StepIntervalMs)
	}
	if cfg.Server.HTTPAddr == "" {
		t.Fatalf("expected a listen address")
	}
}
