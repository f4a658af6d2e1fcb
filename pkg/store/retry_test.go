package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/alert"
	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// flakyStore fails Append a configured number of times before
// delegating to an in-memory store.
type flakyStore struct {
	inner    *Memory
	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyStore) Append(ctx context.Context, rec types.TranscriptRecord) (CommitToken, error) {
	f.mu.Lock()
	f.attempts++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		return CommitToken{}, core.NewStoreUnavailableError(errors.New("backend offline"))
	}
	return f.inner.Append(ctx, rec)
}

func (f *flakyStore) Query(ctx context.Context, q types.HistoryQuery) (Page, error) {
	return f.inner.Query(ctx, q)
}

type captureSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureSink) Emit(_ context.Context, a alert.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 4, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestRetrying_SucceedsAfterTransientFailures(t *testing.T) {
	flaky := &flakyStore{inner: NewMemory(), failures: 2}
	sink := &captureSink{}
	r := NewRetrying(flaky, testRetryConfig(), sink, quietLogger())

	tok, err := r.Append(context.Background(), record("s_1", "Alex", "invoice"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if tok.Seq == 0 {
		t.Error("expected a commit token")
	}
	if flaky.attempts != 3 {
		t.Errorf("attempts = %d, want 3", flaky.attempts)
	}
	if flaky.inner.Len() != 1 {
		t.Errorf("stored %d records, want exactly 1", flaky.inner.Len())
	}
	if sink.count() != 0 {
		t.Errorf("emitted %d alerts, want 0", sink.count())
	}
}

func TestRetrying_ExhaustionAlertsExactlyOnce(t *testing.T) {
	flaky := &flakyStore{inner: NewMemory(), failures: 100}
	sink := &captureSink{}
	r := NewRetrying(flaky, testRetryConfig(), sink, quietLogger())

	_, err := r.Append(context.Background(), record("s_1", "Alex", "invoice"))
	if err == nil {
		t.Fatal("expected error after exhausted budget")
	}

	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrStoreUnavailable {
		t.Fatalf("error = %v, want store_unavailable", err)
	}
	if flaky.attempts != 4 {
		t.Errorf("attempts = %d, want the configured ceiling of 4", flaky.attempts)
	}
	if sink.count() != 1 {
		t.Fatalf("emitted %d alerts, want exactly 1", sink.count())
	}
	if sink.alerts[0].Code != "transcript_write_abandoned" {
		t.Errorf("alert code = %q", sink.alerts[0].Code)
	}
	if sink.alerts[0].SessionID != "s_1" {
		t.Errorf("alert session = %q, want s_1", sink.alerts[0].SessionID)
	}
}

func TestRetrying_NonRetryableFailsFast(t *testing.T) {
	sink := &captureSink{}
	r := NewRetrying(NewMemory(), testRetryConfig(), sink, quietLogger())

	_, err := r.Append(context.Background(), types.TranscriptRecord{})
	if err == nil {
		t.Fatal("expected invalid request error")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrInvalidRequest {
		t.Fatalf("error = %v, want invalid_request", err)
	}
	if sink.count() != 0 {
		t.Errorf("invalid records must not alert, got %d", sink.count())
	}
}

func TestRetrying_DuplicateAppendIsSuccess(t *testing.T) {
	mem := NewMemory()
	r := NewRetrying(mem, testRetryConfig(), &captureSink{}, quietLogger())
	ctx := context.Background()

	first, err := r.Append(ctx, record("s_1", "Alex", "invoice"))
	if err != nil {
		t.Fatalf("first Append: %v", err)
	}
	second, err := r.Append(ctx, record("s_1", "Alex", "invoice"))
	if err != nil {
		t.Fatalf("duplicate Append: %v", err)
	}
	if second.Seq != first.Seq {
		t.Errorf("duplicate returned seq %d, want %d", second.Seq, first.Seq)
	}
	if mem.Len() != 1 {
		t.Errorf("Len = %d, want 1", mem.Len())
	}
}
