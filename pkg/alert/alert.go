// Package alert delivers operator-visible alerts. Alerts flag
// conditions a human must look at (an abandoned transcript write); they
// never affect session processing.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Alert is one operator notification.
type Alert struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	SessionID string         `json:"session_id,omitempty"`
	At        time.Time      `json:"at"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Sink records alerts. Emit must be safe for concurrent use and must
// never block session processing for long.
type Sink interface {
	Emit(ctx context.Context, a Alert)
}

// LogSink writes alerts to the structured log at error level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(_ context.Context, a Alert) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("operator alert",
		"code", a.Code,
		"message", a.Message,
		"session_id", a.SessionID,
		"fields", a.Fields,
	)
}

// WebhookSink posts alerts as JSON to an operator webhook, falling back
// to the log when delivery fails.
type WebhookSink struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Timeout    time.Duration
}

func (s WebhookSink) Emit(ctx context.Context, a Alert) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	LogSink{Logger: logger}.Emit(ctx, a)

	if s.URL == "" {
		return
	}
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	body, err := json.Marshal(a)
	if err != nil {
		logger.Warn("alert encode failed", "code", a.Code, "error", err)
		return
	}

	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(postCtx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		logger.Warn("alert request failed", "code", a.Code, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("alert delivery failed", "code", a.Code, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Warn("alert delivery rejected", "code", a.Code, "status", resp.StatusCode)
	}
}
