package policy

import (
	"fmt"
	"strings"

	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

const emptyHistoryReply = "I don't see any recent calls yet."

var historyCues = []string{
	"call",
	"called",
	"voicemail",
	"message",
	"history",
	"debrief",
	"who rang",
}

// ChiefOfStaff serves the web dashboard: it reads committed call
// history back to the principal and never writes to the store.
type ChiefOfStaff struct {
	Principal string
	// MaxRecap bounds how many calls one answer recounts.
	MaxRecap int
}

// NewChiefOfStaff returns the web persona for the given principal.
func NewChiefOfStaff(principal string) *ChiefOfStaff {
	if strings.TrimSpace(principal) == "" {
		principal = "there"
	}
	return &ChiefOfStaff{Principal: principal, MaxRecap: 3}
}

func (p *ChiefOfStaff) Greeting() string {
	return fmt.Sprintf("Welcome back, %s. How can I help you today?", p.Principal)
}

// Decide implements Policy for the web persona. A history question is
// answered in two passes: the first returns a query directive, the
// second composes the answer over the records the session fetched.
func (p *ChiefOfStaff) Decide(in Input) Decision {
	utterance := strings.TrimSpace(in.Utterance)
	lowered := strings.ToLower(utterance)

	if in.HistoryLoaded {
		return Decision{
			NextState: types.StateActive,
			Utterance: p.compose(in.History, lowered),
		}
	}

	if wantsHistory(lowered) {
		q := &types.HistoryQuery{Limit: 20}
		if name := subjectName(utterance); name != "" {
			q.CallerName = name
		}
		return Decision{NextState: types.StateActive, NeedHistory: q}
	}

	return Decision{
		NextState: types.StateActive,
		Utterance: "I can help with your calls. Ask me about recent calls, voicemails, or a specific caller.",
	}
}

func (p *ChiefOfStaff) compose(records []types.TranscriptRecord, lowered string) string {
	if len(records) == 0 {
		return emptyHistoryReply
	}

	recap := p.MaxRecap
	if recap <= 0 {
		recap = 3
	}
	// Most recent first.
	var lines []string
	for i := len(records) - 1; i >= 0 && len(lines) < recap; i-- {
		lines = append(lines, describe(records[i]))
	}

	if len(records) == 1 {
		return fmt.Sprintf("You had one call. %s", lines[0])
	}
	return fmt.Sprintf("You had %d calls. Most recent: %s", len(records), strings.Join(lines, " Before that: "))
}

func describe(r types.TranscriptRecord) string {
	name := strings.TrimSpace(r.Caller.Name)
	if name == "" {
		name = "An unidentified caller"
	}
	reason := strings.TrimSpace(r.Reason)

	var sb strings.Builder
	if reason != "" {
		fmt.Fprintf(&sb, "%s called about %s", name, reason)
	} else {
		fmt.Fprintf(&sb, "%s called", name)
	}
	switch r.Disposition {
	case types.DispositionEscalated:
		sb.WriteString(" (flagged urgent)")
	case types.DispositionIncomplete:
		sb.WriteString(" (call was cut short)")
	case types.DispositionNotQualified:
		sb.WriteString(" (screened out)")
	}
	sb.WriteString(".")
	return sb.String()
}

func wantsHistory(lowered string) bool {
	for _, cue := range historyCues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

// subjectName extracts the person a question asks about, e.g.
// "Did Alex call recently?" or "any messages from Alex?".
func subjectName(utterance string) string {
	lowered := strings.ToLower(utterance)

	if idx := strings.Index(lowered, "did "); idx >= 0 {
		rest := utterance[idx+len("did "):]
		if name := takeName(rest); name != "" && !strings.EqualFold(name, "anyone") && !strings.EqualFold(name, "anybody") {
			return name
		}
	}
	if idx := strings.Index(lowered, "from "); idx >= 0 {
		if name := takeName(utterance[idx+len("from "):]); name != "" {
			return name
		}
	}
	return ""
}
