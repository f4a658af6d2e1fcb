package screening

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/policy"
	"github.com/frontdesk-ai/frontdesk/pkg/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestMachine(st store.Store) *Machine {
	return New(Config{
		SessionID:      "s_test",
		Caller:         types.CallerInfo{Number: "+15550100"},
		Policy:         policy.NewReceptionist("James"),
		Store:          st,
		Logger:         quietLogger(),
		MaxCallerTurns: 8,
	})
}

func TestMachine_QualifiedCall(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := newTestMachine(mem)

	if m.State() != types.StateGreeting {
		t.Fatalf("initial state = %v, want greeting", m.State())
	}
	if greeting := m.Greeting(); greeting.Role != types.RoleAgent || greeting.Text == "" {
		t.Fatalf("greeting turn = %+v", greeting)
	}

	reply, err := m.Advance(ctx, "Hi, I'm Alex, calling about invoice 402")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if reply.Role != types.RoleAgent {
		t.Errorf("reply role = %v", reply.Role)
	}
	if m.State() != types.StateTerminalSaved {
		t.Fatalf("state = %v, want terminal_saved", m.State())
	}
	if m.Disposition() != types.DispositionQualified {
		t.Errorf("disposition = %v, want qualified", m.Disposition())
	}

	page, err := mem.Query(ctx, types.HistoryQuery{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Records) != 1 {
		t.Fatalf("stored %d records, want exactly 1", len(page.Records))
	}
	rec := page.Records[0]
	if rec.Caller.Name != "Alex" {
		t.Errorf("caller name = %q, want Alex", rec.Caller.Name)
	}
	if !strings.Contains(rec.Reason, "invoice 402") {
		t.Errorf("reason = %q, want it to contain invoice 402", rec.Reason)
	}
	if rec.Disposition != types.DispositionQualified {
		t.Errorf("disposition = %v", rec.Disposition)
	}
	if rec.Caller.Number != "+15550100" {
		t.Errorf("caller number = %q", rec.Caller.Number)
	}
}

func TestMachine_MultiTurnCollection(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := newTestMachine(mem)

	if _, err := m.Advance(ctx, "Hello?"); err != nil {
		t.Fatalf("Advance 1: %v", err)
	}
	if m.State() != types.StateCollectingIntent {
		t.Fatalf("state = %v, want collecting_intent", m.State())
	}

	if _, err := m.Advance(ctx, "This is Dana"); err != nil {
		t.Fatalf("Advance 2: %v", err)
	}
	if m.State() != types.StateCollectingIntent {
		t.Fatalf("state = %v, want collecting_intent while reason missing", m.State())
	}

	if _, err := m.Advance(ctx, "The shipment is delayed until Friday"); err != nil {
		t.Fatalf("Advance 3: %v", err)
	}
	if m.State() != types.StateTerminalSaved {
		t.Fatalf("state = %v, want terminal_saved", m.State())
	}

	page, _ := mem.Query(ctx, types.HistoryQuery{})
	if len(page.Records) != 1 {
		t.Fatalf("stored %d records", len(page.Records))
	}
	if page.Records[0].Caller.Name != "Dana" {
		t.Errorf("caller = %q", page.Records[0].Caller.Name)
	}
}

func TestMachine_TurnOrderingPreserved(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(store.NewMemory())

	utterances := []string{"Hello?", "This is Dana", "the shipment is delayed"}
	for _, u := range utterances {
		if _, err := m.Advance(ctx, u); err != nil {
			t.Fatalf("Advance(%q): %v", u, err)
		}
	}

	turns := m.Turns()
	var callerTexts []string
	for i, turn := range turns {
		if i > 0 && turn.At.Before(turns[i-1].At) {
			t.Errorf("turn %d timestamp went backwards", i)
		}
		if turn.Role == types.RoleCaller {
			callerTexts = append(callerTexts, turn.Text)
		}
	}
	if len(callerTexts) != len(utterances) {
		t.Fatalf("recorded %d caller turns, want %d", len(callerTexts), len(utterances))
	}
	for i := range utterances {
		if callerTexts[i] != utterances[i] {
			t.Errorf("caller turn %d = %q, want %q", i, callerTexts[i], utterances[i])
		}
	}
}

func TestMachine_SpamCall(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := newTestMachine(mem)

	reply, err := m.Advance(ctx, "Hi, we're calling about your car warranty renewal")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if !strings.Contains(reply.Text, "remove this number") {
		t.Errorf("reply = %q, want the removal script", reply.Text)
	}
	if m.State() != types.StateTerminalSaved {
		t.Fatalf("state = %v", m.State())
	}
	if m.Disposition() != types.DispositionNotQualified {
		t.Errorf("disposition = %v, want not_qualified", m.Disposition())
	}
	if mem.Len() != 1 {
		t.Errorf("stored %d records, want 1", mem.Len())
	}
}

func TestMachine_EscalatedCall(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := newTestMachine(mem)

	if _, err := m.Advance(ctx, "I'm Dana, calling about an urgent server outage"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if m.Disposition() != types.DispositionEscalated {
		t.Errorf("disposition = %v, want escalated", m.Disposition())
	}

	page, _ := mem.Query(ctx, types.HistoryQuery{})
	if len(page.Records) != 1 || page.Records[0].Disposition != types.DispositionEscalated {
		t.Fatalf("records = %+v", page.Records)
	}
}

func TestMachine_TerminalRejectsFurtherTurns(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(store.NewMemory())

	if _, err := m.Advance(ctx, "I'm Alex, calling about invoice 402"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	_, err := m.Advance(ctx, "one more thing")
	if err == nil {
		t.Fatal("expected session terminal error")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrSessionTerminal {
		t.Errorf("error = %v, want session_terminal", err)
	}
}

func TestMachine_DisconnectProducesIncompleteRecord(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := newTestMachine(mem)

	if _, err := m.Advance(ctx, "Hi, this is Sam"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	m.Disconnect(ctx)
	if !m.State().Terminal() {
		t.Fatalf("state = %v, want terminal", m.State())
	}

	page, _ := mem.Query(ctx, types.HistoryQuery{})
	if len(page.Records) != 1 {
		t.Fatalf("stored %d records, want 1 partial record", len(page.Records))
	}
	if page.Records[0].Disposition != types.DispositionIncomplete {
		t.Errorf("disposition = %v, want incomplete", page.Records[0].Disposition)
	}

	// A second disconnect must not write a second record.
	m.Disconnect(ctx)
	if mem.Len() != 1 {
		t.Errorf("Len = %d after double disconnect, want 1", mem.Len())
	}
}

func TestMachine_DisconnectBeforeAnyCallerTurn(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := newTestMachine(mem)

	m.Disconnect(ctx)
	if m.State() != types.StateTerminalAbandoned {
		t.Errorf("state = %v, want terminal_abandoned", m.State())
	}
	if mem.Len() != 0 {
		t.Errorf("stored %d records, want none for a silent caller", mem.Len())
	}
}

func TestMachine_StoreOutageDuringClosing(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{inner: store.NewMemory(), failures: 2}
	retrying := store.NewRetrying(flaky, store.RetryConfig{
		MaxAttempts: 4,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, nil, quietLogger())

	m := New(Config{
		SessionID: "s_flaky",
		Policy:    policy.NewReceptionist("James"),
		Store:     retrying,
		Logger:    quietLogger(),
	})

	if _, err := m.Advance(ctx, "I'm Alex, calling about invoice 402"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if m.State() != types.StateTerminalSaved {
		t.Fatalf("state = %v, want terminal_saved after retried append", m.State())
	}
	if flaky.inner.Len() != 1 {
		t.Errorf("stored %d records, want exactly 1", flaky.inner.Len())
	}
}

func TestMachine_StoreExhaustionAbandons(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{inner: store.NewMemory(), failures: 100}
	retrying := store.NewRetrying(flaky, store.RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, nil, quietLogger())

	m := New(Config{
		SessionID: "s_down",
		Policy:    policy.NewReceptionist("James"),
		Store:     retrying,
		Logger:    quietLogger(),
	})

	if _, err := m.Advance(ctx, "I'm Alex, calling about invoice 402"); err != nil {
		t.Fatalf("Advance should not fail the call itself: %v", err)
	}
	if m.State() != types.StateTerminalAbandoned {
		t.Fatalf("state = %v, want terminal_abandoned after exhausted retries", m.State())
	}
	if flaky.inner.Len() != 0 {
		t.Errorf("stored %d records, want none", flaky.inner.Len())
	}
}

func TestMachine_PolicyTimeoutFallsBack(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	m := New(Config{
		SessionID:      "s_slow",
		Policy:         stallPolicy{},
		Store:          mem,
		Logger:         quietLogger(),
		DecisionBudget: 5 * time.Millisecond,
	})

	reply, err := m.Advance(ctx, "hello?")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if reply.Text == "" {
		t.Error("fallback must still say goodbye")
	}
	if !m.State().Terminal() {
		t.Errorf("state = %v, want terminal after degraded close", m.State())
	}
	if m.Disposition() != types.DispositionIncomplete {
		t.Errorf("disposition = %v, want incomplete", m.Disposition())
	}
}

type stallPolicy struct{}

func (stallPolicy) Greeting() string { return "Hello." }

func (stallPolicy) Decide(policy.Input) policy.Decision {
	time.Sleep(200 * time.Millisecond)
	return policy.Decision{NextState: types.StateCollectingIntent}
}

// flakyStore fails Append a configured number of times before
// delegating to the in-memory store.
type flakyStore struct {
	inner    *store.Memory
	failures int
}

func (f *flakyStore) Append(ctx context.Context, rec types.TranscriptRecord) (store.CommitToken, error) {
	if f.failures > 0 {
		f.failures--
		return store.CommitToken{}, core.NewStoreUnavailableError(errors.New("backend offline"))
	}
	return f.inner.Append(ctx, rec)
}

func (f *flakyStore) Query(ctx context.Context, q types.HistoryQuery) (store.Page, error) {
	return f.inner.Query(ctx, q)
}
