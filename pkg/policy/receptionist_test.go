package policy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/frontdesk-ai/frontdesk/pkg/core/types"
)

func TestReceptionist_Greeting(t *testing.T) {
	p := NewReceptionist("James")
	if got := p.Greeting(); !strings.Contains(got, "James") {
		t.Errorf("Greeting() = %q, want it to name the principal", got)
	}
}

func TestReceptionist_ExtractNameAndReason(t *testing.T) {
	p := NewReceptionist("James")

	dec := p.Decide(Input{
		Persona:        types.PersonaReceptionist,
		State:          types.StateGreeting,
		Utterance:      "Hi, I'm Alex, calling about invoice 402",
		TurnsRemaining: 7,
	})

	if dec.Extracted.CallerName != "Alex" {
		t.Errorf("CallerName = %q, want Alex", dec.Extracted.CallerName)
	}
	if !strings.Contains(dec.Extracted.Reason, "invoice 402") {
		t.Errorf("Reason = %q, want it to contain %q", dec.Extracted.Reason, "invoice 402")
	}
	if dec.NextState != types.StateQualifying {
		t.Errorf("NextState = %v, want qualifying once name and reason are captured", dec.NextState)
	}
}

func TestReceptionist_PromptsForMissingInfo(t *testing.T) {
	p := NewReceptionist("James")

	tests := []struct {
		name      string
		utterance string
		captured  Fields
		wantState types.SessionState
	}{
		{"nothing yet", "Hello?", Fields{}, types.StateCollectingIntent},
		{"name only", "This is Sam", Fields{}, types.StateCollectingIntent},
		{"reason arrives after name", "I wanted to reschedule Thursday", Fields{CallerName: "Sam"}, types.StateQualifying},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := p.Decide(Input{
				State:          types.StateCollectingIntent,
				Utterance:      tt.utterance,
				Captured:       tt.captured,
				TurnsRemaining: 5,
			})
			if dec.NextState != tt.wantState {
				t.Errorf("NextState = %v, want %v", dec.NextState, tt.wantState)
			}
			if dec.NextState == types.StateCollectingIntent && dec.Utterance == "" {
				t.Error("collecting state must prompt the caller")
			}
		})
	}
}

func TestReceptionist_SpamHangsUpImmediately(t *testing.T) {
	p := NewReceptionist("James")

	spam := []string{
		"I'm calling about your car warranty",
		"We have an exciting extended warranty offer",
		"This is about debt relief services",
		"A great timeshare opportunity",
	}
	for _, utterance := range spam {
		dec := p.Decide(Input{State: types.StateCollectingIntent, Utterance: utterance, TurnsRemaining: 5})
		if !dec.Spam {
			t.Errorf("%q should be flagged as spam", utterance)
		}
		if dec.NextState != types.StateClosing {
			t.Errorf("%q: NextState = %v, want closing", utterance, dec.NextState)
		}
		if dec.Disposition != types.DispositionNotQualified {
			t.Errorf("%q: Disposition = %v, want not_qualified", utterance, dec.Disposition)
		}
		if !strings.Contains(dec.Utterance, "remove this number") {
			t.Errorf("%q: spam close must use the removal script, got %q", utterance, dec.Utterance)
		}
	}
}

func TestReceptionist_QualifyingDisposition(t *testing.T) {
	p := NewReceptionist("James")

	dec := p.Decide(Input{
		State:    types.StateQualifying,
		Captured: Fields{CallerName: "Alex", Reason: "invoice 402"},
	})
	if dec.Disposition != types.DispositionQualified {
		t.Errorf("Disposition = %v, want qualified", dec.Disposition)
	}
	if dec.NextState != types.StateClosing {
		t.Errorf("NextState = %v, want closing", dec.NextState)
	}

	urgent := p.Decide(Input{
		State:    types.StateQualifying,
		Captured: Fields{CallerName: "Alex", Reason: "urgent server outage"},
	})
	if urgent.Disposition != types.DispositionEscalated {
		t.Errorf("Disposition = %v, want escalated", urgent.Disposition)
	}
	if urgent.NextState != types.StateEscalating {
		t.Errorf("NextState = %v, want escalating", urgent.NextState)
	}
}

func TestReceptionist_TurnBudgetExhaustedClosesIncomplete(t *testing.T) {
	p := NewReceptionist("James")

	dec := p.Decide(Input{
		State:          types.StateCollectingIntent,
		Utterance:      "um, hold on",
		TurnsRemaining: 0,
	})
	if dec.NextState != types.StateClosing {
		t.Errorf("NextState = %v, want closing", dec.NextState)
	}
	if dec.Disposition != types.DispositionIncomplete {
		t.Errorf("Disposition = %v, want incomplete", dec.Disposition)
	}
}

func TestReceptionist_GoodbyeClosesCall(t *testing.T) {
	p := NewReceptionist("James")

	dec := p.Decide(Input{
		State:          types.StateCollectingIntent,
		Utterance:      "okay, goodbye",
		Captured:       Fields{CallerName: "Sam"},
		TurnsRemaining: 4,
	})
	if dec.NextState != types.StateClosing {
		t.Errorf("NextState = %v, want closing on goodbye", dec.NextState)
	}
}

func TestExtractFields(t *testing.T) {
	tests := []struct {
		utterance  string
		captured   Fields
		wantName   string
		wantReason string
		wantNumber string
	}{
		{"Hi, I'm Alex, calling about invoice 402", Fields{}, "Alex", "invoice 402", ""},
		{"My name is Dana Whitfield", Fields{}, "Dana Whitfield", "", ""},
		{"This is Sam from accounting", Fields{}, "Sam", "", ""},
		{"You can reach me at 555-867-5309", Fields{CallerName: "Sam"}, "", "You can reach me at 555-867-5309", "5558675309"},
		{"regarding the Henderson contract", Fields{}, "", "the Henderson contract", ""},
		{"Please tell him the shipment is delayed", Fields{CallerName: "Dana"}, "", "Please tell him the shipment is delayed", ""},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			got := extractFields(tt.utterance, tt.captured)
			if got.CallerName != tt.wantName {
				t.Errorf("CallerName = %q, want %q", got.CallerName, tt.wantName)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.CallbackNumber != tt.wantNumber {
				t.Errorf("CallbackNumber = %q, want %q", got.CallbackNumber, tt.wantNumber)
			}
		})
	}
}

func TestDecideWithin_Timeout(t *testing.T) {
	slow := slowPolicy{delay: 100 * time.Millisecond}

	dec, err := DecideWithin(context.Background(), slow, Input{State: types.StateCollectingIntent}, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected policy timeout error")
	}
	if dec.NextState != types.StateClosing {
		t.Errorf("fallback NextState = %v, want closing", dec.NextState)
	}
	if dec.Utterance == "" {
		t.Error("fallback must still produce a closing utterance")
	}
}

func TestDecideWithin_FastPathNoBudget(t *testing.T) {
	p := NewReceptionist("James")
	dec, err := DecideWithin(context.Background(), p, Input{State: types.StateQualifying, Captured: Fields{CallerName: "A", Reason: "b"}}, 0)
	if err != nil {
		t.Fatalf("DecideWithin: %v", err)
	}
	if dec.Disposition != types.DispositionQualified {
		t.Errorf("Disposition = %v", dec.Disposition)
	}
}

type slowPolicy struct {
	delay time.Duration
}

func (s slowPolicy) Greeting() string { return "hello" }

func (s slowPolicy) Decide(Input) Decision {
	time.Sleep(s.delay)
	return Decision{NextState: types.StateCollectingIntent}
}
