package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParsePersona(t *testing.T) {
	p, err := ParsePersona("PARENT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != PersonaParent {
		t.Errorf("expected PARENT, got %q", p)
	}

	if _, err := ParsePersona("ADMIN"); !errors.Is(err, ErrUnknownPersona) {
		t.Errorf("expected ErrUnknownPersona, got %v", err)
	}
}

func TestParseTrigger(t *testing.T) {
	if _, err := ParseTrigger("RESULTS_PAGE_VIEW"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseTrigger("LOGIN"); !errors.Is(err, ErrUnknownTrigger) {
		t.Errorf("expected ErrUnknownTrigger, got %v", err)
	}
}

func TestSessionSummaryAccuracy(t *testing.T) {
	if got := (SessionSummary{}).Accuracy(); got != 0 {
		t.Errorf("expected 0 accuracy with no questions, got %v", got)
	}
	s := SessionSummary{QuestionsAnswered: 10, CorrectAnswers: 8}
	if got := s.Accuracy(); got != 0.8 {
		t.Errorf("expected 0.8, got %v", got)
	}
}

func TestLoopContextFallsBackToSummary(t *testing.T) {
	ac := AgenticActionContext{
		Summary: SessionSummary{
			Subject:           "Geometry",
			StreakDays:        6,
			BadgesEarned:      []string{"Angle Ace"},
			QuestionsAnswered: 4,
			CorrectAnswers:    3,
		},
		Metadata: TriggerContext{Name: "Sam", Extra: map[string]string{"k": "v"}},
	}
	tc := ac.LoopContext()
	if tc.Subject != "Geometry" || tc.StreakDays != 6 || tc.BadgeName != "Angle Ace" || tc.Score != 75 {
		t.Errorf("summary fallbacks not applied: %+v", tc)
	}
	tc.Extra["k"] = "changed"
	if ac.Metadata.Extra["k"] != "v" {
		t.Error("LoopContext must not share the Extra map with the action context")
	}
}

func TestViralEventTimestampIsISO8601(t *testing.T) {
	ev := NewEvent(EventTriggerReceived, nil)
	if ev.ID == "" || ev.Payload == nil {
		t.Fatalf("NewEvent did not initialize fields: %+v", ev)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	ts, _ := decoded["timestamp"].(string)
	if !strings.Contains(ts, "T") || !strings.HasSuffix(ts, "Z") {
		t.Errorf("expected ISO-8601 UTC timestamp, got %q", ts)
	}
}

func TestErrorResponses(t *testing.T) {
	r := Error("boom")
	if r.Status != string(APIStatusError) || r.Message != "boom" {
		t.Errorf("unexpected error response: %+v", r)
	}
	ok := Success([]int{1})
	if ok.Status != string(APIStatusOK) || ok.Result == nil {
		t.Errorf("unexpected success response: %+v", ok)
	}
}

func TestAgenticActionContextCloneIsIndependent(t *testing.T) {
	orig := AgenticActionContext{
		Summary: SessionSummary{
			BadgesEarned: []string{"Streak Master"},
			Highlights:   []string{"solved 3 proofs"},
		},
		Metadata: TriggerContext{Extra: map[string]string{"channel": "sms"}},
	}

	c := orig.Clone()
	c.Summary.BadgesEarned[0] = "changed"
	c.Summary.Highlights[0] = "changed"
	c.Metadata.Extra["channel"] = "changed"

	if orig.Summary.BadgesEarned[0] != "Streak Master" {
		t.Errorf("badges shared with clone: %v", orig.Summary.BadgesEarned)
	}
	if orig.Summary.Highlights[0] != "solved 3 proofs" {
		t.Errorf("highlights shared with clone: %v", orig.Summary.Highlights)
	}
	if orig.Metadata.Extra["channel"] != "sms" {
		t.Errorf("extra shared with clone: %v", orig.Metadata.Extra)
	}
}
