package tspd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/search"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/logger"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

var (
	ErrInvalidURL       = errors.New("invalid callback URL")
	ErrMetadataEndpoint = errors.New("callback URL targets a metadata endpoint")
	ErrInternalHost     = errors.New("callback URL targets an internal host")
)

// validateCallbackURL rejects URLs that could reach cloud metadata services
// or other internal-only hosts. The localhost hostname stays allowed so
// development callbacks keep working.
func validateCallbackURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing hostname", ErrInvalidURL)
	}

	lower := strings.ToLower(host)
	if lower == "metadata.google.internal" || lower == "metadata" {
		return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
	}
	if lower == "localhost" {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.Equal(net.IPv4(169, 254, 169, 254)) {
			return fmt.Errorf("%w: %s", ErrMetadataEndpoint, host)
		}
		if ip.IsUnspecified() || isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrInternalHost, host)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// NotificationPayload represents the JSON payload sent to the callback URL
type NotificationPayload struct {
	RunID           string        `json:"run_id"`
	Status          RunStatus     `json:"status"`
	SearchStatus    search.Status `json:"search_status"`
	Iterations      int64         `json:"iterations"`
	BestDistance    float64       `json:"best_distance"`
	CurrentDistance float64       `json:"current_distance"`
	OptimaFound     int           `json:"optima_found"`
	ImprovementPct  float64       `json:"improvement_pct"`
	CreatedAtUnixMs int64         `json:"created_at_unix_ms"`
	StartedAtUnixMs int64         `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs   int64         `json:"ended_at_unix_ms,omitempty"`
	Error           string        `json:"error,omitempty"`
	Timestamp       int64         `json:"timestamp"` // When notification was sent
}

// Notifier delivers run-completion callbacks to a configured URL
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewNotifier creates a notifier with default timeout and retry policy
func NewNotifier() *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(1*time.Second, 30*time.Second, 2.0, false),
	}
}

// WithBackoff overrides the retry backoff strategy
func (n *Notifier) WithBackoff(strategy utils.BackoffStrategy) *Notifier {
	n.backoff = strategy
	return n
}

// WithMaxRetries overrides the number of retries after the first attempt
func (n *Notifier) WithMaxRetries(retries int) *Notifier {
	if retries >= 0 {
		n.maxRetries = retries
	}
	return n
}

// WithHTTPClient overrides the HTTP client used for deliveries
func (n *Notifier) WithHTTPClient(client *http.Client) *Notifier {
	if client != nil {
		n.httpClient = client
	}
	return n
}

// Notify sends a notification to the callback URL asynchronously.
// This method returns immediately and performs the delivery in a goroutine.
func (n *Notifier) Notify(callbackURL string, callbackSecret string, run Run, snap search.Snapshot) {
	if callbackURL == "" {
		return
	}
	if err := validateCallbackURL(callbackURL); err != nil {
		logger.Warn("refusing callback delivery", "run_id", run.ID, "error", err)
		return
	}

	// Replace {run_id} template in callback URL if present
	finalURL := strings.ReplaceAll(callbackURL, "{run_id}", run.ID)

	payload := NotificationPayload{
		RunID:           run.ID,
		Status:          run.Status,
		SearchStatus:    snap.Status,
		Iterations:      snap.Iteration,
		BestDistance:    snap.BestDistance,
		CurrentDistance: snap.CurrentDistance,
		OptimaFound:     snap.OptimaFound,
		ImprovementPct:  snap.ImprovementPct,
		CreatedAtUnixMs: run.CreatedAtUnixMs,
		StartedAtUnixMs: run.StartedAtUnixMs,
		EndedAtUnixMs:   run.EndedAtUnixMs,
		Error:           run.Error,
		Timestamp:       time.Now().UTC().UnixMilli(),
	}

	go n.send(finalURL, callbackSecret, payload)
}

// send performs the actual HTTP POST with retry logic
func (n *Notifier) send(callbackURL string, callbackSecret string, payload NotificationPayload) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(payloadJSON))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "tspd/1.0")
		if callbackSecret != "" {
			req.Header.Set("X-TSP-Callback-Secret", callbackSecret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		responseBody := string(bodyBytes)
		if len(responseBody) > 200 {
			responseBody = responseBody[:200] + "..."
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent successfully",
				"run_id", payload.RunID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", responseBody,
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"status", payload.Status,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}
