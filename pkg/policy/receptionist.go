package policy

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

// spamPhrases is the unsolicited-offer blocklist. A caller mentioning
// any of these is dismissed with the removal script and the call is
// marked not qualified.
var spamPhrases = []string{
	"car warranty",
	"extended warranty",
	"insurance offer",
	"debt relief",
	"credit card offer",
	"timeshare",
}

var goodbyePhrases = []string{
	"goodbye",
	"bye",
	"that's all",
	"that is all",
	"i'm done",
	"that's everything",
	"thank you",
	"thanks",
}

var urgentPhrases = []string{
	"urgent",
	"emergency",
	"right away",
	"asap",
}

const spamScript = "I'm not interested in unsolicited offers. Please remove this number from your calling list. Goodbye."

// Receptionist screens inbound phone calls: it collects the caller's
// name and message, dismisses unsolicited sales pitches, and decides
// the final disposition.
type Receptionist struct {
	// Principal is the person the receptionist answers for.
	Principal string
	// MaxCallerTurns bounds intent collection before the call is closed
	// as incomplete.
	MaxCallerTurns int
}

// NewReceptionist returns a receptionist for the given principal.
func NewReceptionist(principal string) *Receptionist {
	if strings.TrimSpace(principal) == "" {
		principal = "the office"
	}
	return &Receptionist{Principal: principal, MaxCallerTurns: 8}
}

func (p *Receptionist) Greeting() string {
	return fmt.Sprintf("Hello, this is %s's assistant. Who is calling?", p.Principal)
}

func (p *Receptionist) closeLine() string {
	return fmt.Sprintf("Thank you for calling. I'll make sure %s gets your message. Have a great day!", p.Principal)
}

func (p *Receptionist) escalateLine() string {
	return fmt.Sprintf("This sounds urgent. I'm flagging it for %s right away. Thank you for calling.", p.Principal)
}

// Decide implements Policy for the phone persona.
func (p *Receptionist) Decide(in Input) Decision {
	utterance := strings.TrimSpace(in.Utterance)
	lowered := strings.ToLower(utterance)

	if isSpam(lowered) {
		return Decision{
			NextState:   types.StateClosing,
			Utterance:   spamScript,
			Disposition: types.DispositionNotQualified,
			Spam:        true,
		}
	}

	switch in.State {
	case types.StateGreeting, types.StateCollectingIntent:
		extracted := extractFields(utterance, in.Captured)
		captured := in.Captured.Merge(extracted)

		if captured.CallerName != "" && captured.Reason != "" {
			return Decision{NextState: types.StateQualifying, Extracted: extracted}
		}
		if (isGoodbye(lowered) && extracted.Empty()) || in.TurnsRemaining <= 0 {
			return Decision{
				NextState:   types.StateClosing,
				Utterance:   p.closeLine(),
				Extracted:   extracted,
				Disposition: types.DispositionIncomplete,
			}
		}
		return Decision{
			NextState: types.StateCollectingIntent,
			Utterance: p.prompt(captured),
			Extracted: extracted,
		}

	case types.StateQualifying:
		if isUrgent(strings.ToLower(in.Captured.Reason)) {
			return Decision{
				NextState:   types.StateEscalating,
				Utterance:   p.escalateLine(),
				Disposition: types.DispositionEscalated,
			}
		}
		return Decision{
			NextState:   types.StateClosing,
			Utterance:   p.closeLine(),
			Disposition: types.DispositionQualified,
		}

	default:
		return Decision{
			NextState:   types.StateClosing,
			Utterance:   p.closeLine(),
			Disposition: types.DispositionIncomplete,
		}
	}
}

func (p *Receptionist) prompt(captured Fields) string {
	switch {
	case captured.CallerName == "" && captured.Reason == "":
		return "May I have your name, and what you're calling about?"
	case captured.CallerName == "":
		return "And may I have your name, please?"
	default:
		return fmt.Sprintf("Thanks, %s. What is this regarding?", captured.CallerName)
	}
}

func isSpam(lowered string) bool {
	for _, phrase := range spamPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

func isGoodbye(lowered string) bool {
	for _, phrase := range goodbyePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

func isUrgent(lowered string) bool {
	for _, phrase := range urgentPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

var namePrefixes = []string{
	"my name is ",
	"this is ",
	"i'm ",
	"i am ",
	"it's ",
}

var reasonPrefixes = []string{
	"calling about ",
	"calling to ",
	"calling because ",
	"about ",
	"regarding ",
	"because ",
}

// extractFields pulls a caller name, reason, and callback number out of
// one utterance. Extraction is deliberately shallow: it keys on lead-in
// phrases, not language understanding.
func extractFields(utterance string, captured Fields) Fields {
	var out Fields
	lowered := strings.ToLower(utterance)

	for _, prefix := range namePrefixes {
		idx := strings.Index(lowered, prefix)
		if idx < 0 {
			continue
		}
		rest := utterance[idx+len(prefix):]
		if name := takeName(rest); name != "" {
			out.CallerName = name
			break
		}
	}

	for _, prefix := range reasonPrefixes {
		idx := strings.Index(lowered, prefix)
		if idx < 0 {
			continue
		}
		reason := strings.TrimSpace(utterance[idx+len(prefix):])
		reason = strings.TrimRight(reason, ".!?")
		if reason != "" {
			out.Reason = reason
			break
		}
	}

	// A caller who already gave a name is leaving their message; treat
	// a plain utterance as the reason.
	if out.Reason == "" && out.CallerName == "" && captured.CallerName != "" && utterance != "" {
		if !isGoodbye(lowered) {
			out.Reason = strings.TrimRight(utterance, ".!?")
		}
	}

	if number := takeNumber(utterance); number != "" {
		out.CallbackNumber = number
	}
	return out
}

var nameStopWords = map[string]bool{
	"and":     true,
	"calling": true,
	"call":    true,
	"called":  true,
	"from":    true,
	"here":    true,
	"leave":   true,
	"again":   true,
}

// takeName keeps up to two leading capitalizable words, stopping at
// punctuation or a connective.
func takeName(rest string) string {
	rest = strings.TrimSpace(rest)
	var words []string
	for _, word := range strings.Fields(rest) {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && r != '-' && r != '\''
		})
		if trimmed == "" {
			break
		}
		if nameStopWords[strings.ToLower(trimmed)] {
			break
		}
		words = append(words, title(trimmed))
		if len(words) == 2 || strings.ContainsAny(word, ",.!?") {
			break
		}
	}
	return strings.Join(words, " ")
}

func title(word string) string {
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// takeNumber returns the first digit run of plausible phone length,
// ignoring separators.
func takeNumber(utterance string) string {
	var digits strings.Builder
	run := func() string {
		if n := digits.Len(); n >= 7 && n <= 15 {
			return digits.String()
		}
		return ""
	}
	for _, r := range utterance {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '-' || r == ' ' || r == '(' || r == ')' || r == '.':
			// separator inside a number, keep accumulating
		default:
			if n := run(); n != "" {
				return n
			}
			digits.Reset()
		}
	}
	return run()
}
