package actions

import (
	"context"
	"fmt"

	"github.com/BTreeMap/LoopPipe/internal/loops"
	"github.com/BTreeMap/LoopPipe/internal/models"
)

// Thresholds used by the default actions.
const (
	ChallengeMinAccuracy    = 0.8
	ParentMinImprovementPct = 10.0
	TutorSpotlightMinRating = 4.5
	challengeMinQuestions   = 1
)

// Decision inspects a session and explains itself either way.
type Decision func(ac models.AgenticActionContext) (bool, string)

// LoopAction fires a single loop when its decision holds.
type LoopAction struct {
	id       string
	personas []models.Persona
	loop     models.ViralLoop
	decide   Decision
	// prepare adjusts the loop context derived from the action context.
	prepare func(ac models.AgenticActionContext, tc *models.TriggerContext)
}

var _ Action = (*LoopAction)(nil)

// NewLoopAction builds an action that runs loop for the given personas when decide holds.
func NewLoopAction(id string, loop models.ViralLoop, personas []models.Persona, decide Decision) *LoopAction {
	return &LoopAction{id: id, personas: personas, loop: loop, decide: decide}
}

func (a *LoopAction) ID() string { return a.id }

func (a *LoopAction) SupportedPersonas() []models.Persona { return a.personas }

// Loop returns the loop this action triggers.
func (a *LoopAction) Loop() models.ViralLoop { return a.loop }

func (a *LoopAction) ShouldTrigger(_ context.Context, ac models.AgenticActionContext) (bool, error) {
	ok, _ := a.decide(ac)
	return ok, nil
}

func (a *LoopAction) Execute(ctx context.Context, ac models.AgenticActionContext, exec loops.Executor) (models.AgenticActionResult, error) {
	_, reason := a.decide(ac)
	tc := ac.LoopContext()
	if a.prepare != nil {
		a.prepare(ac, &tc)
	}

	lr, err := exec.Execute(ctx, a.loop, ac.UserID, ac.Persona, tc)
	if err != nil {
		return models.AgenticActionResult{}, err
	}
	rationale := reason
	if lr.Rationale != "" {
		rationale = reason + "; " + lr.Rationale
	}
	return models.AgenticActionResult{
		ActionID:        a.id,
		TriggeredLoop:   a.loop,
		Success:         lr.Success,
		InviteGenerated: lr.Invite != nil,
		Invite:          lr.Invite,
		Rationale:       rationale,
		Error:           lr.Error,
	}, nil
}

// DefaultActions returns the built-in actions in registration order.
func DefaultActions() []Action {
	tutor := NewLoopAction("tutor_spotlight_share", models.LoopTutorSpotlight, []models.Persona{models.PersonaTutor},
		func(ac models.AgenticActionContext) (bool, string) {
			r := ac.Summary.TutorRating
			if r >= TutorSpotlightMinRating {
				return true, fmt.Sprintf("session rated %.1f, at or above %.1f", r, TutorSpotlightMinRating)
			}
			return false, fmt.Sprintf("session rated %.1f, below %.1f", r, TutorSpotlightMinRating)
		})
	tutor.prepare = func(ac models.AgenticActionContext, tc *models.TriggerContext) {
		tc.Score = ac.Summary.TutorRating
	}

	return []Action{
		NewLoopAction("post_session_challenge", models.LoopBuddyChallenge, []models.Persona{models.PersonaStudent},
			func(ac models.AgenticActionContext) (bool, string) {
				s := ac.Summary
				if s.QuestionsAnswered < challengeMinQuestions {
					return false, "no questions answered"
				}
				acc := s.Accuracy()
				if acc >= ChallengeMinAccuracy {
					return true, fmt.Sprintf("accuracy %.0f%% is challenge-worthy", acc*100)
				}
				return false, fmt.Sprintf("accuracy %.0f%% is below %.0f%%", acc*100, ChallengeMinAccuracy*100)
			}),
		NewLoopAction("parent_progress_share", models.LoopProudParent, []models.Persona{models.PersonaParent},
			func(ac models.AgenticActionContext) (bool, string) {
				s := ac.Summary
				switch {
				case s.ImprovementPct >= ParentMinImprovementPct:
					return true, fmt.Sprintf("improved %.0f%% this session", s.ImprovementPct)
				case len(s.BadgesEarned) > 0:
					return true, fmt.Sprintf("earned the %s badge", s.BadgesEarned[0])
				}
				return false, "no notable progress to share"
			}),
		NewLoopAction("streak_rescue_nudge", models.LoopStreakRescue, []models.Persona{models.PersonaStudent},
			func(ac models.AgenticActionContext) (bool, string) {
				if ac.Summary.StreakAtRisk {
					return true, fmt.Sprintf("%d-day streak is at risk", ac.Summary.StreakDays)
				}
				return false, "streak is safe"
			}),
		tutor,
		NewLoopAction("badge_brag", models.LoopAchievementSpotlight, []models.Persona{models.PersonaStudent},
			func(ac models.AgenticActionContext) (bool, string) {
				if len(ac.Summary.BadgesEarned) > 0 {
					return true, fmt.Sprintf("earned %d badge(s)", len(ac.Summary.BadgesEarned))
				}
				return false, "no badges earned"
			}),
	}
}

// NewDefaultOrchestrator registers every built-in action.
func NewDefaultOrchestrator(opts ...Option) *Orchestrator {
	o := NewOrchestrator(opts...)
	for _, a := range DefaultActions() {
		o.Register(a)
	}
	return o
}
