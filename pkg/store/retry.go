package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/frontdesk-ai/frontdesk/pkg/alert"
	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// RetryConfig bounds the append retry loop.
type RetryConfig struct {
	// MaxAttempts is the total attempt ceiling including the first try.
	MaxAttempts uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

// Retrying wraps a Store with bounded backoff on transient append
// failures. Reads pass through untouched: a failed query is the
// caller's to re-issue. When the attempt budget is exhausted the
// wrapper emits exactly one operator alert and returns the final error.
type Retrying struct {
	inner  Store
	cfg    RetryConfig
	alerts alert.Sink
	logger *slog.Logger
}

// NewRetrying wraps inner with the given retry budget.
func NewRetrying(inner Store, cfg RetryConfig, alerts alert.Sink, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if alerts == nil {
		alerts = alert.LogSink{Logger: logger}
	}
	return &Retrying{inner: inner, cfg: cfg.withDefaults(), alerts: alerts, logger: logger}
}

// Append retries transient failures with fibonacci backoff up to the
// configured attempt ceiling. Conflicts and invalid records are
// returned immediately; they do not burn the budget.
func (r *Retrying) Append(ctx context.Context, rec types.TranscriptRecord) (CommitToken, error) {
	var (
		tok     CommitToken
		attempt uint64
	)

	backoff := retry.NewFibonacci(r.cfg.BaseBackoff)
	backoff = retry.WithCappedDuration(r.cfg.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(r.cfg.MaxAttempts-1, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		t, err := r.inner.Append(ctx, rec)
		if err == nil {
			tok = t
			return nil
		}

		var coreErr *core.Error
		if errors.As(err, &coreErr) && coreErr.IsRetryable() {
			r.logger.Warn("transcript append failed, will retry",
				"session_id", rec.SessionID,
				"attempt", attempt,
				"max_attempts", r.cfg.MaxAttempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return tok, nil
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr.Type == core.ErrStoreUnavailable {
		r.alerts.Emit(ctx, alert.Alert{
			Code:      "transcript_write_abandoned",
			Message:   "transcript append exhausted its retry budget",
			SessionID: rec.SessionID,
			At:        time.Now().UTC(),
			Fields: map[string]any{
				"attempts": attempt,
				"error":    err.Error(),
			},
		})
	}
	return CommitToken{}, err
}

// Query passes through to the wrapped store.
func (r *Retrying) Query(ctx context.Context, q types.HistoryQuery) (Page, error) {
	return r.inner.Query(ctx, q)
}
