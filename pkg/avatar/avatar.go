// Package avatar pushes composed agent utterances to the rendering
// layer that animates the web persona. Delivery is fire-and-forget: a
// slow or absent renderer must never stall a session's turn loop.
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Utterance is one line for the renderer to speak.
type Utterance struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Webhook posts utterances to the renderer endpoint. Each Say spawns
// one bounded delivery; failures are logged and dropped.
type Webhook struct {
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Timeout    time.Duration
	Now        func() time.Time

	wg sync.WaitGroup
}

func (w *Webhook) Say(sessionID, text string) {
	if w.URL == "" || text == "" {
		return
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}
	u := Utterance{SessionID: sessionID, Text: text, At: now().UTC()}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliver(u)
	}()
}

// Wait blocks until all in-flight deliveries finish. Called during
// shutdown so queued lines are not cut off.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

func (w *Webhook) deliver(u Utterance) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	body, err := json.Marshal(u)
	if err != nil {
		logger.Warn("avatar encode failed", "session_id", u.SessionID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		logger.Warn("avatar request failed", "session_id", u.SessionID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("avatar delivery failed", "session_id", u.SessionID, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Warn("avatar delivery rejected", "session_id", u.SessionID, "status", resp.StatusCode)
	}
}

// Discard is an AvatarSink that drops every line. Used when no renderer
// endpoint is configured.
type Discard struct{}

func (Discard) Say(string, string) {}
