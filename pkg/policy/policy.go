// Package policy holds the persona decision logic: a pure mapping from
// (persona, conversation state, turn history) to the next state, the
// agent utterance, and any extracted fields or store directives. The
// two personas share one capability interface so the orchestrator never
// branches on persona identity.
package policy

import (
	"context"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/core"
	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// Fields is the structured information a policy extracts from caller
// utterances.
type Fields struct {
	CallerName     string
	Reason         string
	CallbackNumber string
}

// Merge fills empty fields from other without overwriting captured
// values.
func (f Fields) Merge(other Fields) Fields {
	if f.CallerName == "" {
		f.CallerName = other.CallerName
	}
	if f.Reason == "" {
		f.Reason = other.Reason
	}
	if f.CallbackNumber == "" {
		f.CallbackNumber = other.CallbackNumber
	}
	return f
}

// Empty reports whether nothing has been captured.
func (f Fields) Empty() bool {
	return f == Fields{}
}

// Input is everything a policy may consider. Policies must not consult
// anything outside it; the clock and queried history arrive here.
type Input struct {
	Persona        types.Persona
	State          types.SessionState
	Turns          []types.Turn
	Utterance      string
	Captured       Fields
	TurnsRemaining int
	Now            time.Time

	// History is populated on the second decision pass after the
	// session ran the query a previous decision asked for.
	History       []types.TranscriptRecord
	HistoryLoaded bool
}

// Decision is the outcome of one policy pass.
type Decision struct {
	NextState   types.SessionState
	Utterance   string
	Extracted   Fields
	Disposition types.Disposition
	Spam        bool

	// NeedHistory asks the session to run a transcript query and call
	// Decide again with the results.
	NeedHistory *types.HistoryQuery
}

// Policy is the persona capability interface.
type Policy interface {
	// Greeting is the opening agent utterance for a fresh session.
	Greeting() string
	// Decide maps the current conversation to the next action. It must
	// be side-effect free.
	Decide(in Input) Decision
}

// DecideWithin runs Decide under a deadline. On budget overrun it
// returns a generic closing decision together with a policy timeout
// error, so the session can end the turn gracefully while the overrun
// is surfaced.
func DecideWithin(ctx context.Context, p Policy, in Input, budget time.Duration) (Decision, error) {
	if budget <= 0 {
		return p.Decide(in), nil
	}

	done := make(chan Decision, 1)
	go func() {
		done <- p.Decide(in)
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case dec := <-done:
		return dec, nil
	case <-ctx.Done():
		return fallbackDecision(), core.NewPolicyTimeoutError("")
	case <-timer.C:
		return fallbackDecision(), core.NewPolicyTimeoutError("")
	}
}

func fallbackDecision() Decision {
	return Decision{
		NextState:   types.StateClosing,
		Utterance:   "Thank you for calling. I'll pass your message along. Goodbye.",
		Disposition: types.DispositionIncomplete,
	}
}
