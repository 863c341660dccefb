package actions

import (
	"context"
	"testing"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	loop    models.ViralLoop
	persona models.Persona
	tc      models.TriggerContext
}

type recordingExecutor struct {
	calls []call
}

func (r *recordingExecutor) Execute(_ context.Context, loopID models.ViralLoop, userID string, persona models.Persona, tc models.TriggerContext) (models.LoopResult, error) {
	r.calls = append(r.calls, call{loop: loopID, persona: persona, tc: tc})
	return models.LoopResult{
		Success:   true,
		Rationale: "invite issued",
		Invite:    &models.Invite{ShortCode: "Zz998877", Metadata: models.InviteMetadata{UserID: userID, LoopID: loopID}},
	}, nil
}

func TestDefaultActionsDecisions(t *testing.T) {
	tests := []struct {
		name    string
		persona models.Persona
		summary models.SessionSummary
		want    []models.ViralLoop
	}{
		{
			name:    "high accuracy student",
			persona: models.PersonaStudent,
			summary: models.SessionSummary{QuestionsAnswered: 10, CorrectAnswers: 9},
			want:    []models.ViralLoop{models.LoopBuddyChallenge},
		},
		{
			name:    "low accuracy student with streak at risk and badge",
			persona: models.PersonaStudent,
			summary: models.SessionSummary{QuestionsAnswered: 10, CorrectAnswers: 5, StreakAtRisk: true, StreakDays: 7, BadgesEarned: []string{"Quick Thinker"}},
			want:    []models.ViralLoop{models.LoopStreakRescue, models.LoopAchievementSpotlight},
		},
		{
			name:    "student with nothing answered",
			persona: models.PersonaStudent,
			summary: models.SessionSummary{},
			want:    nil,
		},
		{
			name:    "parent with improvement",
			persona: models.PersonaParent,
			summary: models.SessionSummary{ImprovementPct: 12},
			want:    []models.ViralLoop{models.LoopProudParent},
		},
		{
			name:    "parent without progress",
			persona: models.PersonaParent,
			summary: models.SessionSummary{ImprovementPct: 3},
			want:    nil,
		},
		{
			name:    "highly rated tutor",
			persona: models.PersonaTutor,
			summary: models.SessionSummary{TutorRating: 4.8},
			want:    []models.ViralLoop{models.LoopTutorSpotlight},
		},
		{
			name:    "average tutor",
			persona: models.PersonaTutor,
			summary: models.SessionSummary{TutorRating: 4.0},
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &recordingExecutor{}
			results := NewDefaultOrchestrator().Process(context.Background(), tt.summary, "u1", tt.persona, "s1", models.TriggerContext{}, exec)

			var got []models.ViralLoop
			for _, r := range results {
				assert.True(t, r.Success)
				assert.True(t, r.InviteGenerated)
				assert.NotEmpty(t, r.Rationale)
				got = append(got, r.TriggeredLoop)
			}
			assert.Equal(t, tt.want, got)
			assert.Len(t, exec.calls, len(tt.want))
		})
	}
}

func TestTutorSpotlightUsesRatingAsScore(t *testing.T) {
	exec := &recordingExecutor{}
	summary := models.SessionSummary{TutorRating: 4.9, QuestionsAnswered: 4, CorrectAnswers: 1, Subject: "Physics"}
	results := NewDefaultOrchestrator().Process(context.Background(), summary, "tutor-1", models.PersonaTutor, "s9", models.TriggerContext{Name: "Dr. Lee"}, exec)

	require.Len(t, results, 1)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, 4.9, exec.calls[0].tc.Score)
	assert.Equal(t, "Physics", exec.calls[0].tc.Subject)
	assert.Contains(t, results[0].Rationale, "rated 4.9")
	assert.Contains(t, results[0].Rationale, "invite issued")
}

func TestDefaultOrchestratorStats(t *testing.T) {
	stats := NewDefaultOrchestrator().Stats()
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.ByPersona[models.PersonaStudent])
	assert.Equal(t, 1, stats.ByPersona[models.PersonaParent])
	assert.Equal(t, 1, stats.ByPersona[models.PersonaTutor])
}
