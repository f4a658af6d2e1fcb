// Package webquery drives the web persona: free-form Q&A over the
// committed call history. Web sessions only ever read the store, so
// they cannot conflict with phone writers or with each other.
package webquery

import (
	"context"
	"log/slog"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/policy"
	"github.com/frontdesk-ai/frontdesk/pkg/store"
)

// AvatarSink receives composed agent utterances for rendering. Delivery
// is fire-and-forget; implementations must not block the session.
type AvatarSink interface {
	Say(sessionID, text string)
}

// Config carries the session's collaborators.
type Config struct {
	SessionID string
	Policy    policy.Policy
	Store     store.Store
	Avatar    AvatarSink
	Logger    *slog.Logger
	Now       func() time.Time

	// DecisionBudget bounds one policy pass.
	DecisionBudget time.Duration
}

// Session is one web conversation. Stateless across turns except for
// the running turn log used as answer-composition context. Not safe for
// concurrent use; the orchestrator serializes access per session.
type Session struct {
	id     string
	pol    policy.Policy
	st     store.Store
	avatar AvatarSink
	logger *slog.Logger
	now    func() time.Time
	budget time.Duration

	state types.SessionState
	turns []types.Turn
}

// New opens a web session and emits the welcome turn.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Session{
		id:     cfg.SessionID,
		pol:    cfg.Policy,
		st:     cfg.Store,
		avatar: cfg.Avatar,
		logger: cfg.Logger,
		now:    cfg.Now,
		budget: cfg.DecisionBudget,
		state:  types.StateActive,
	}
	greeting := s.appendTurn(types.RoleAgent, cfg.Policy.Greeting())
	s.say(greeting.Text)
	return s
}

// State returns the session state.
func (s *Session) State() types.SessionState { return s.state }

// Greeting returns the opening agent turn.
func (s *Session) Greeting() types.Turn { return s.turns[0] }

// Turns returns the turn log recorded so far.
func (s *Session) Turns() []types.Turn {
	out := make([]types.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Answer processes one user utterance: the policy may ask for a history
// query, in which case the store is consulted and the policy invoked a
// second time over the results. The composed answer is routed to the
// avatar as a side effect.
func (s *Session) Answer(ctx context.Context, utterance string) (types.Turn, error) {
	if s.state.Terminal() {
		return types.Turn{}, core.NewSessionTerminalError(s.id)
	}

	s.appendTurn(types.RoleUser, utterance)

	in := policy.Input{
		Persona:   types.PersonaChiefOfStaff,
		State:     s.state,
		Turns:     s.turns,
		Utterance: utterance,
		Now:       s.now().UTC(),
	}
	dec, err := policy.DecideWithin(ctx, s.pol, in, s.budget)
	if err != nil {
		s.logger.Warn("policy decision degraded", "session_id", s.id, "error", err)
	}

	if dec.NeedHistory != nil {
		records, qErr := s.fetchHistory(ctx, *dec.NeedHistory)
		if qErr != nil {
			s.logger.Warn("history query failed", "session_id", s.id, "error", qErr)
			reply := s.appendTurn(types.RoleAgent, "I couldn't reach the call log just now. Please try again in a moment.")
			s.say(reply.Text)
			return reply, nil
		}

		in.History = records
		in.HistoryLoaded = true
		dec, err = policy.DecideWithin(ctx, s.pol, in, s.budget)
		if err != nil {
			s.logger.Warn("policy decision degraded", "session_id", s.id, "error", err)
		}
	}

	reply := s.appendTurn(types.RoleAgent, dec.Utterance)
	s.say(reply.Text)
	return reply, nil
}

// Close ends the session. Web sessions write nothing, so close is pure
// bookkeeping.
func (s *Session) Close() {
	if s.state.Terminal() {
		return
	}
	s.state = types.StateClosed
}

// fetchHistory drains the query's result sequence, following cursors so
// the policy sees the full committed match set in commit order.
func (s *Session) fetchHistory(ctx context.Context, q types.HistoryQuery) ([]types.TranscriptRecord, error) {
	var records []types.TranscriptRecord
	for {
		page, err := s.st.Query(ctx, q)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.NextCursor == "" {
			return records, nil
		}
		q.Cursor = page.NextCursor
	}
}

func (s *Session) say(text string) {
	if s.avatar == nil || text == "" {
		return
	}
	s.avatar.Say(s.id, text)
}

func (s *Session) appendTurn(role types.Role, text string) types.Turn {
	turn := types.Turn{Role: role, Text: text, At: s.now().UTC()}
	s.turns = append(s.turns, turn)
	return turn
}
