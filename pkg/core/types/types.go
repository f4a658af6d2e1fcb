// Package types defines the domain model shared by the orchestrator,
// the persona policies, and the transcript store.
package types

import (
	"strings"
	"time"
)

// ChannelKind identifies the inbound channel a session arrived on.
type ChannelKind string

const (
	ChannelPhone ChannelKind = "phone"
	ChannelWeb   ChannelKind = "web"
)

// Valid reports whether the channel kind is one the orchestrator serves.
func (c ChannelKind) Valid() bool {
	return c == ChannelPhone || c == ChannelWeb
}

// Persona is a named behavioral variant of the agent.
type Persona string

const (
	PersonaReceptionist Persona = "receptionist"
	PersonaChiefOfStaff Persona = "chief_of_staff"
)

// PersonaForChannel returns the persona serving a channel: the
// receptionist screens phone calls, the chief of staff serves the web
// dashboard.
func PersonaForChannel(c ChannelKind) Persona {
	if c == ChannelWeb {
		return PersonaChiefOfStaff
	}
	return PersonaReceptionist
}

// Role is the speaker of a turn.
type Role string

const (
	RoleCaller Role = "caller"
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
)

// SessionState is the current position of a session's state machine.
type SessionState string

const (
	// Phone screening states.
	StateGreeting          SessionState = "greeting"
	StateCollectingIntent  SessionState = "collecting_intent"
	StateQualifying        SessionState = "qualifying"
	StateEscalating        SessionState = "escalating"
	StateClosing           SessionState = "closing"
	StateTerminalSaved     SessionState = "terminal_saved"
	StateTerminalAbandoned SessionState = "terminal_abandoned"

	// Web query states.
	StateActive SessionState = "active"
	StateClosed SessionState = "closed"
)

// Terminal reports whether no further turns are accepted in this state.
func (s SessionState) Terminal() bool {
	switch s {
	case StateTerminalSaved, StateTerminalAbandoned, StateClosed:
		return true
	default:
		return false
	}
}

// Disposition is the screening outcome assigned to a finished call.
type Disposition string

const (
	DispositionQualified    Disposition = "qualified"
	DispositionNotQualified Disposition = "not_qualified"
	DispositionEscalated    Disposition = "escalated"
	DispositionIncomplete   Disposition = "incomplete"
)

// CallerInfo is metadata about the phone caller, as delivered by the
// telephony channel and enriched by screening.
type CallerInfo struct {
	Name   string `json:"name,omitempty"`
	Number string `json:"number,omitempty"`
}

// TurnFields holds structured fields the screening state machine
// extracted from a caller turn.
type TurnFields struct {
	CallerName     string `json:"caller_name,omitempty"`
	Reason         string `json:"reason,omitempty"`
	CallbackNumber string `json:"callback_number,omitempty"`
}

// Empty reports whether no field was extracted.
func (f TurnFields) Empty() bool {
	return f.CallerName == "" && f.Reason == "" && f.CallbackNumber == ""
}

// Turn is one utterance within a session. Turns are immutable once
// appended and form the ordered body of a session.
type Turn struct {
	Role   Role        `json:"role"`
	Text   string      `json:"text"`
	At     time.Time   `json:"at"`
	Fields *TurnFields `json:"fields,omitempty"`
}

// TranscriptRecord is the durable artifact derived from a finished
// phone session. It is written exactly once per session and never
// mutated; corrections require a new record.
type TranscriptRecord struct {
	SessionID   string      `json:"session_id"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     time.Time   `json:"ended_at"`
	CommittedAt time.Time   `json:"committed_at,omitempty"`
	Caller      CallerInfo  `json:"caller"`
	Reason      string      `json:"reason,omitempty"`
	Disposition Disposition `json:"disposition"`
	Turns       []Turn      `json:"turns"`
}

// Clone returns a deep copy so a committed record can be handed to
// readers without aliasing the writer's turn slice.
func (r TranscriptRecord) Clone() TranscriptRecord {
	out := r
	out.Turns = make([]Turn, len(r.Turns))
	copy(out.Turns, r.Turns)
	for i := range out.Turns {
		if out.Turns[i].Fields != nil {
			f := *out.Turns[i].Fields
			out.Turns[i].Fields = &f
		}
	}
	return out
}

// HistoryQuery is a read-only request for previously committed
// transcript records. All criteria are conjunctive; zero values match
// everything.
type HistoryQuery struct {
	From       time.Time `json:"from,omitempty"`
	To         time.Time `json:"to,omitempty"`
	CallerName string    `json:"caller_name,omitempty"`
	Contains   string    `json:"contains,omitempty"`
	Cursor     string    `json:"cursor,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// Matches reports whether a committed record satisfies the filter
// criteria (cursor and limit are pagination, not filters).
func (q HistoryQuery) Matches(r TranscriptRecord) bool {
	if !q.From.IsZero() && r.CommittedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && r.CommittedAt.After(q.To) {
		return false
	}
	if q.CallerName != "" && !strings.EqualFold(strings.TrimSpace(q.CallerName), strings.TrimSpace(r.Caller.Name)) {
		return false
	}
	if q.Contains != "" {
		needle := strings.ToLower(q.Contains)
		if !strings.Contains(strings.ToLower(r.Reason), needle) && !turnsContain(r.Turns, needle) {
			return false
		}
	}
	return true
}

func turnsContain(turns []Turn, lowered string) bool {
	for _, t := range turns {
		if strings.Contains(strings.ToLower(t.Text), lowered) {
			return true
		}
	}
	return false
}
