package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCopywriter struct {
	body string
	err  error
	got  CopyRequest
}

func (s *stubCopywriter) Name() string { return "stub" }

func (s *stubCopywriter) Rewrite(_ context.Context, req CopyRequest) (string, error) {
	s.got = req
	return s.body, s.err
}

func personalizationRequest(persona models.Persona, loop models.ViralLoop, tc *models.TriggerContext) Request {
	req := NewRequest(PersonalizationAgentID, "u1")
	req.Persona = persona
	req.LoopID = loop
	req.Context = tc
	return req
}

func TestPersonalizationAgentRendersTemplate(t *testing.T) {
	a, err := NewPersonalizationAgent()
	require.NoError(t, err)

	resp := a.Process(context.Background(), personalizationRequest(models.PersonaStudent, models.LoopStreakRescue,
		&models.TriggerContext{Name: "Leo", StreakDays: 12, Subject: "Chemistry"}))

	require.True(t, resp.Success, resp.Rationale)
	assert.Equal(t, PersonalizationAgentID, resp.AgentID)
	assert.Contains(t, resp.Output.Headline, "12-day")
	assert.Contains(t, resp.Output.Body, "Chemistry")
	assert.NotEmpty(t, resp.Rationale)
}

func TestPersonalizationAgentRejectsInvalidRequests(t *testing.T) {
	a, err := NewPersonalizationAgent()
	require.NoError(t, err)
	ctx := context.Background()

	missingUser := personalizationRequest(models.PersonaStudent, models.LoopBuddyChallenge, nil)
	missingUser.UserID = ""
	badPersona := personalizationRequest("ROBOT", models.LoopBuddyChallenge, nil)
	badLoop := personalizationRequest(models.PersonaStudent, "NOPE", nil)
	noCopy := personalizationRequest(models.PersonaTutor, models.LoopBuddyChallenge, nil)

	for name, req := range map[string]Request{
		"missing user": missingUser, "bad persona": badPersona, "bad loop": badLoop, "no copy": noCopy,
	} {
		t.Run(name, func(t *testing.T) {
			resp := a.Process(ctx, req)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.NotEmpty(t, resp.Rationale)
		})
	}
}

func TestPersonalizationAgentUsesCopywriter(t *testing.T) {
	writer := &stubCopywriter{body: "  Rewritten invite  "}
	a, err := NewPersonalizationAgent(WithCopywriter(writer))
	require.NoError(t, err)

	resp := a.Process(context.Background(), personalizationRequest(models.PersonaStudent, models.LoopBuddyChallenge,
		&models.TriggerContext{Name: "Ana"}))

	require.True(t, resp.Success)
	assert.Equal(t, "Rewritten invite", resp.Output.Body)
	assert.Contains(t, resp.Rationale, "rewritten by stub")
	assert.Equal(t, models.LoopBuddyChallenge, writer.got.Loop)
	assert.Contains(t, writer.got.Draft.Headline, "Ana")
}

func TestPersonalizationAgentFallsBackOnCopywriterError(t *testing.T) {
	writer := &stubCopywriter{err: errors.New("rate limited")}
	a, err := NewPersonalizationAgent(WithCopywriter(writer))
	require.NoError(t, err)

	resp := a.Process(context.Background(), personalizationRequest(models.PersonaStudent, models.LoopBuddyChallenge, nil))

	require.True(t, resp.Success)
	assert.Contains(t, resp.Output.Body, "challenge")
	assert.Contains(t, resp.Rationale, "rewrite failed")
}

func TestPersonalizationAgentHealthCheckSkipsCopywriter(t *testing.T) {
	writer := &stubCopywriter{err: errors.New("down")}
	a, err := NewPersonalizationAgent(WithCopywriter(writer))
	require.NoError(t, err)

	h := a.HealthCheck(context.Background())
	assert.True(t, h.Healthy)
	assert.Equal(t, PersonalizationAgentID, h.AgentID)
	assert.Empty(t, writer.got.Loop, "health check must not call the copywriter")
}
