package models

import "slices"

// TriggerContext carries the optional facts a caller knows about a trigger. Each consumer
// (loop, agent, action) reads only the fields it needs and validates their presence itself.
type TriggerContext struct {
	Name         string            `json:"name,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	Grade        string            `json:"grade,omitempty"`
	Age          int               `json:"age,omitempty"`
	Email        string            `json:"email,omitempty"`
	DeviceID     string            `json:"deviceId,omitempty"`
	IPAddress    string            `json:"ipAddress,omitempty"`
	InviteePhone string            `json:"inviteePhone,omitempty"`
	Score        float64           `json:"score,omitempty"`
	StreakDays   int               `json:"streakDays,omitempty"`
	BadgeName    string            `json:"badgeName,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy so the Extra map is never shared between consumers.
func (c TriggerContext) Clone() TriggerContext {
	out := c
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// SubjectOr returns the subject or fallback when none is set.
func (c TriggerContext) SubjectOr(fallback string) string {
	if c.Subject == "" {
		return fallback
	}
	return c.Subject
}

// SessionSummary is the already-produced digest of a tutoring session.
type SessionSummary struct {
	SessionID         string   `json:"sessionId"`
	Subject           string   `json:"subject,omitempty"`
	DurationMinutes   int      `json:"durationMinutes,omitempty"`
	QuestionsAnswered int      `json:"questionsAnswered,omitempty"`
	CorrectAnswers    int      `json:"correctAnswers,omitempty"`
	ImprovementPct    float64  `json:"improvementPct,omitempty"`
	StreakDays        int      `json:"streakDays,omitempty"`
	StreakAtRisk      bool     `json:"streakAtRisk,omitempty"`
	BadgesEarned      []string `json:"badgesEarned,omitempty"`
	TutorRating       float64  `json:"tutorRating,omitempty"`
	Highlights        []string `json:"highlights,omitempty"`
	Transcript        string   `json:"transcript,omitempty"`
}

// Accuracy returns the fraction of correct answers, or 0 when nothing was answered.
func (s SessionSummary) Accuracy() float64 {
	if s.QuestionsAnswered <= 0 {
		return 0
	}
	return float64(s.CorrectAnswers) / float64(s.QuestionsAnswered)
}

// Clone returns a copy whose slices are not shared with s.
func (s SessionSummary) Clone() SessionSummary {
	out := s
	out.BadgesEarned = slices.Clone(s.BadgesEarned)
	out.Highlights = slices.Clone(s.Highlights)
	return out
}

// AgenticActionContext is the unit of work handed to every agentic action. It is built once
// per summary; each action receives its own Clone.
type AgenticActionContext struct {
	Summary   SessionSummary `json:"summary"`
	UserID    string         `json:"userId"`
	Persona   Persona        `json:"persona"`
	SessionID string         `json:"sessionId"`
	Metadata  TriggerContext `json:"metadata,omitempty"`
}

// Clone returns a deep copy of a.
func (a AgenticActionContext) Clone() AgenticActionContext {
	out := a
	out.Summary = a.Summary.Clone()
	out.Metadata = a.Metadata.Clone()
	return out
}

// LoopContext derives the context passed to a loop from the action context. Subject and
// streak fall back to the summary when the caller did not provide them.
func (a AgenticActionContext) LoopContext() TriggerContext {
	tc := a.Metadata.Clone()
	if tc.Subject == "" {
		tc.Subject = a.Summary.Subject
	}
	if tc.StreakDays == 0 {
		tc.StreakDays = a.Summary.StreakDays
	}
	if tc.BadgeName == "" && len(a.Summary.BadgesEarned) > 0 {
		tc.BadgeName = a.Summary.BadgesEarned[0]
	}
	if tc.Score == 0 {
		tc.Score = a.Summary.Accuracy() * 100
	}
	return tc
}
