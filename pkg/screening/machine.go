// Package screening drives the phone persona through one call:
// greeting, intent capture, qualification, and close, finishing with
// exactly one transcript record for every call that reaches a terminal
// state. The machine is advanced by discrete turns, never by implicit
// control flow, so cancellation and timeout stay well-defined.
package screening

import (
	"context"
	"log/slog"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/policy"
	"github.com/frontdesk-ai/frontdesk/pkg/store"
)

// Config carries the machine's collaborators and budgets.
type Config struct {
	SessionID string
	Caller    types.CallerInfo
	Policy    policy.Policy
	Store     store.Store
	Logger    *slog.Logger
	Now       func() time.Time

	// MaxCallerTurns bounds intent collection.
	MaxCallerTurns int
	// DecisionBudget bounds one policy pass.
	DecisionBudget time.Duration
}

// Machine is the per-call state machine. It is not safe for concurrent
// use; the orchestrator serializes access per session.
type Machine struct {
	id       string
	caller   types.CallerInfo
	pol      policy.Policy
	st       store.Store
	logger   *slog.Logger
	now      func() time.Time
	maxTurns int
	budget   time.Duration

	state       types.SessionState
	turns       []types.Turn
	captured    policy.Fields
	callerTurns int
	startedAt   time.Time
	endedAt     time.Time
	disposition types.Disposition
	finalized   bool
}

// New creates a machine in the greeting state and emits the opening
// agent turn.
func New(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxCallerTurns <= 0 {
		cfg.MaxCallerTurns = 8
	}

	m := &Machine{
		id:        cfg.SessionID,
		caller:    cfg.Caller,
		pol:       cfg.Policy,
		st:        cfg.Store,
		logger:    cfg.Logger,
		now:       cfg.Now,
		maxTurns:  cfg.MaxCallerTurns,
		budget:    cfg.DecisionBudget,
		state:     types.StateGreeting,
		startedAt: cfg.Now().UTC(),
	}
	m.appendTurn(types.RoleAgent, cfg.Policy.Greeting(), nil)
	return m
}

// State returns the machine's current state.
func (m *Machine) State() types.SessionState { return m.state }

// Disposition returns the final screening outcome; meaningful once the
// machine is terminal.
func (m *Machine) Disposition() types.Disposition { return m.disposition }

// Turns returns the ordered turn sequence recorded so far.
func (m *Machine) Turns() []types.Turn {
	out := make([]types.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Greeting returns the opening agent turn.
func (m *Machine) Greeting() types.Turn { return m.turns[0] }

// Advance feeds one caller utterance through the machine and returns
// the agent's reply turn. Once the machine is terminal every further
// call fails with a session terminal error.
func (m *Machine) Advance(ctx context.Context, utterance string) (types.Turn, error) {
	if m.state.Terminal() {
		return types.Turn{}, core.NewSessionTerminalError(m.id)
	}

	m.callerTurns++
	callerTurn := m.appendTurn(types.RoleCaller, utterance, nil)

	dec, err := m.decide(ctx, utterance)
	m.captured = m.captured.Merge(dec.Extracted)
	if !dec.Extracted.Empty() {
		m.turns[callerTurn].Fields = &types.TurnFields{
			CallerName:     dec.Extracted.CallerName,
			Reason:         dec.Extracted.Reason,
			CallbackNumber: dec.Extracted.CallbackNumber,
		}
	}
	if err != nil {
		m.logger.Warn("policy decision degraded",
			"session_id", m.id,
			"state", m.state,
			"error", err,
		)
	}
	m.state = dec.NextState

	// Qualification needs no further caller input; run it in the same
	// turn so the reply the caller hears is the closing line.
	if m.state == types.StateQualifying {
		var qErr error
		dec, qErr = m.decide(ctx, "")
		if qErr != nil {
			m.logger.Warn("qualification degraded", "session_id", m.id, "error", qErr)
		}
		m.state = dec.NextState
	}

	if m.state == types.StateEscalating {
		// Reserved for live hand-off; the record still closes here.
		m.state = types.StateClosing
	}

	reply := m.turns[m.appendTurn(types.RoleAgent, dec.Utterance, nil)]

	if m.state == types.StateClosing {
		m.finalize(ctx, dec.Disposition)
	}
	return reply, nil
}

// Disconnect handles the channel going away mid-call: pending turn
// processing stops and, if the caller said anything at all, the partial
// transcript is finalized as incomplete on a best-effort basis.
func (m *Machine) Disconnect(ctx context.Context) {
	if m.state.Terminal() {
		return
	}
	if m.callerTurns == 0 {
		// Nothing worth persisting; an abandoned record would carry
		// only our own greeting.
		m.state = types.StateTerminalAbandoned
		m.endedAt = m.now().UTC()
		return
	}
	m.finalize(ctx, types.DispositionIncomplete)
}

// finalize writes exactly one transcript record for this call. Retry
// and backoff live in the store wrapper; permanent failure abandons the
// persistence step only, never the call itself.
func (m *Machine) finalize(ctx context.Context, disposition types.Disposition) {
	if m.finalized {
		return
	}
	m.finalized = true

	if disposition == "" {
		disposition = types.DispositionIncomplete
	}
	m.disposition = disposition
	m.endedAt = m.now().UTC()

	caller := m.caller
	if m.captured.CallerName != "" {
		caller.Name = m.captured.CallerName
	}
	if caller.Number == "" {
		caller.Number = m.captured.CallbackNumber
	}

	rec := types.TranscriptRecord{
		SessionID:   m.id,
		StartedAt:   m.startedAt,
		EndedAt:     m.endedAt,
		Caller:      caller,
		Reason:      m.captured.Reason,
		Disposition: disposition,
		Turns:       m.Turns(),
	}

	tok, err := m.st.Append(ctx, rec)
	if err != nil {
		m.logger.Error("transcript write abandoned",
			"session_id", m.id,
			"disposition", disposition,
			"error", err,
		)
		m.state = types.StateTerminalAbandoned
		return
	}

	m.logger.Info("transcript committed",
		"session_id", m.id,
		"commit_seq", tok.Seq,
		"caller", caller.Name,
		"disposition", disposition,
		"turns", len(rec.Turns),
	)
	m.state = types.StateTerminalSaved
}

func (m *Machine) decide(ctx context.Context, utterance string) (policy.Decision, error) {
	in := policy.Input{
		Persona:        types.PersonaReceptionist,
		State:          m.state,
		Turns:          m.turns,
		Utterance:      utterance,
		Captured:       m.captured,
		TurnsRemaining: m.maxTurns - m.callerTurns,
		Now:            m.now().UTC(),
	}
	return policy.DecideWithin(ctx, m.pol, in, m.budget)
}

func (m *Machine) appendTurn(role types.Role, text string, fields *types.TurnFields) int {
	m.turns = append(m.turns, types.Turn{
		Role:   role,
		Text:   text,
		At:     m.now().UTC(),
		Fields: fields,
	})
	return len(m.turns) - 1
}
