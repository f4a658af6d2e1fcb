// Package orchestrator multiplexes concurrent sessions: it assigns one
// state-machine instance per inbound channel, routes turns to the
// owning session, and reclaims terminated sessions. Each session
// processes its own turns strictly in order while different sessions
// run independently; the shared transcript store is the only resource
// they contend on, and only phone sessions write to it.
package orchestrator

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
	"github.com/frontdesk-ai/frontdesk/pkg/policy"
	"github.com/frontdesk-ai/frontdesk/pkg/screening"
	"github.com/frontdesk-ai/frontdesk/pkg/store"
	"github.com/frontdesk-ai/frontdesk/pkg/webquery"
)

// Config carries the orchestrator's collaborators and budgets.
type Config struct {
	Store  store.Store
	Avatar webquery.AvatarSink
	Logger *slog.Logger
	Now    func() time.Time

	// Principal is the person both personas work for.
	Principal string

	MaxCallerTurns int
	DecisionBudget time.Duration
	IdleTimeout    time.Duration
}

// SessionInfo describes a freshly opened session.
type SessionInfo struct {
	SessionID string
	Channel   types.ChannelKind
	Persona   types.Persona
	Greeting  types.Turn
}

// AgentReply is the outcome of one submitted turn.
type AgentReply struct {
	SessionID string
	Turn      types.Turn
	State     types.SessionState
	// Done is set when the session reached a terminal state with this
	// turn and will accept no further input.
	Done bool
}

// entry is one tracked session. Its mutex serializes the session's own
// turns; the orchestrator-level mutex only guards the registry, so one
// session's pending store I/O never blocks another's turn processing.
type entry struct {
	mu       sync.Mutex
	channel  types.ChannelKind
	persona  types.Persona
	phone    *screening.Machine
	web      *webquery.Session
	openedAt time.Time
	lastSeen time.Time
}

func (e *entry) state() types.SessionState {
	if e.phone != nil {
		return e.phone.State()
	}
	return e.web.State()
}

// Orchestrator owns every live session in the process.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	recPolicy policy.Policy
	cosPolicy policy.Policy

	mu       sync.Mutex
	sessions map[string]*entry
	entropy  *ulid.MonotonicEntropy
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		cfg:       cfg,
		logger:    cfg.Logger,
		now:       cfg.Now,
		recPolicy: policy.NewReceptionist(cfg.Principal),
		cosPolicy: policy.NewChiefOfStaff(cfg.Principal),
		sessions:  make(map[string]*entry),
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// Open accepts a new inbound channel event and instantiates the
// matching persona and state machine. The returned session id is the
// handle for every subsequent turn.
func (o *Orchestrator) Open(_ context.Context, channel types.ChannelKind, caller types.CallerInfo) (SessionInfo, error) {
	if !channel.Valid() {
		return SessionInfo{}, core.NewInvalidRequestErrorWithParam("unknown channel kind", "channel")
	}

	persona := types.PersonaForChannel(channel)
	id := o.newSessionID(channel)
	now := o.now().UTC()

	e := &entry{
		channel:  channel,
		persona:  persona,
		openedAt: now,
		lastSeen: now,
	}

	var greeting types.Turn
	switch channel {
	case types.ChannelPhone:
		e.phone = screening.New(screening.Config{
			SessionID:      id,
			Caller:         caller,
			Policy:         o.recPolicy,
			Store:          o.cfg.Store,
			Logger:         o.logger,
			Now:            o.now,
			MaxCallerTurns: o.cfg.MaxCallerTurns,
			DecisionBudget: o.cfg.DecisionBudget,
		})
		greeting = e.phone.Greeting()
	case types.ChannelWeb:
		e.web = webquery.New(webquery.Config{
			SessionID:      id,
			Policy:         o.cosPolicy,
			Store:          o.cfg.Store,
			Avatar:         o.cfg.Avatar,
			Logger:         o.logger,
			Now:            o.now,
			DecisionBudget: o.cfg.DecisionBudget,
		})
		greeting = e.web.Greeting()
	}

	o.mu.Lock()
	o.sessions[id] = e
	o.mu.Unlock()

	o.logger.Info("session opened",
		"session_id", id,
		"channel", channel,
		"persona", persona,
	)
	return SessionInfo{SessionID: id, Channel: channel, Persona: persona, Greeting: greeting}, nil
}

// SubmitTurn routes one utterance to its session and returns the agent
// response. Unknown ids and terminal sessions are rejected without any
// state mutation.
func (o *Orchestrator) SubmitTurn(ctx context.Context, sessionID, utterance string) (AgentReply, error) {
	e, ok := o.lookup(sessionID)
	if !ok {
		return AgentReply{}, core.NewUnknownSessionError(sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state().Terminal() {
		return AgentReply{}, core.NewSessionTerminalError(sessionID)
	}
	e.lastSeen = o.now().UTC()

	var (
		turn types.Turn
		err  error
	)
	if e.phone != nil {
		turn, err = e.phone.Advance(ctx, utterance)
	} else {
		turn, err = e.web.Answer(ctx, utterance)
	}
	if err != nil {
		return AgentReply{}, err
	}

	// Terminal sessions stay registered until the channel closes, so a
	// straggler turn is rejected as terminal rather than unknown.
	state := e.state()
	return AgentReply{
		SessionID: sessionID,
		Turn:      turn,
		State:     state,
		Done:      state.Terminal(),
	}, nil
}

// Close ends a session explicitly: an orderly hangup or web disconnect.
// Phone sessions still attempt their final transcript write.
func (o *Orchestrator) Close(ctx context.Context, sessionID string) error {
	e, ok := o.lookup(sessionID)
	if !ok {
		return core.NewUnknownSessionError(sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state().Terminal() {
		if e.phone != nil {
			e.phone.Disconnect(ctx)
		} else {
			e.web.Close()
		}
	}
	o.reap(sessionID, "closed")
	return nil
}

// ReapIdle finalizes sessions whose channel has gone quiet past the
// idle timeout. Phone sessions get a best-effort incomplete finalize,
// matching a caller who stopped responding.
func (o *Orchestrator) ReapIdle(ctx context.Context) int {
	cutoff := o.now().UTC().Add(-o.cfg.IdleTimeout)

	o.mu.Lock()
	var stale []string
	for id, e := range o.sessions {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	o.mu.Unlock()

	reaped := 0
	for _, id := range stale {
		e, ok := o.lookup(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		// Re-check under the session lock; a turn may have landed.
		if e.lastSeen.Before(cutoff) {
			if !e.state().Terminal() {
				if e.phone != nil {
					e.phone.Disconnect(ctx)
				} else {
					e.web.Close()
				}
			}
			o.reap(id, "idle")
			reaped++
		}
		e.mu.Unlock()
	}
	return reaped
}

// Len returns the number of live sessions.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// Shutdown finalizes every live session, attempting the final
// transcript write for in-flight calls.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		_ = o.Close(ctx, id)
	}
}

func (o *Orchestrator) lookup(sessionID string) (*entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.sessions[sessionID]
	return e, ok
}

// reap removes the session from the registry. Callers hold the entry
// lock, so a duplicate state-machine instance for the id can never be
// observed: the id is either tracked exactly once or gone.
func (o *Orchestrator) reap(sessionID, reason string) {
	o.mu.Lock()
	_, present := o.sessions[sessionID]
	delete(o.sessions, sessionID)
	o.mu.Unlock()

	if present {
		o.logger.Info("session reclaimed", "session_id", sessionID, "reason", reason)
	}
}

func (o *Orchestrator) newSessionID(channel types.ChannelKind) string {
	o.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(o.now()), o.entropy)
	o.mu.Unlock()

	prefix := "call_"
	if channel == types.ChannelWeb {
		prefix = "web_"
	}
	return prefix + id.String()
}
