package loops

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/LoopPipe/internal/agent"
	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/smartlink"
	"github.com/BTreeMap/LoopPipe/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultRegistry(t *testing.T) (*Registry, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	personalizer, err := agent.NewPersonalizationAgent()
	require.NoError(t, err)
	return NewDefaultRegistry(smartlink.NewService(st, smartlink.WithBaseURL("https://looppipe.test")), personalizer), st
}

func TestDefaultRegistryHasEveryLoop(t *testing.T) {
	r, _ := newDefaultRegistry(t)
	for _, id := range models.AllLoops {
		assert.True(t, r.Has(id), "missing %s", id)
	}
	assert.Equal(t, len(models.AllLoops), r.Stats().Total)
}

func TestDefaultDefinitionsHaveCopyForEveryPersona(t *testing.T) {
	catalog, err := agent.DefaultCatalog()
	require.NoError(t, err)
	for _, def := range DefaultDefinitions() {
		for _, p := range def.Personas {
			assert.True(t, catalog.Has(def.ID, p), "no copy for %s/%s", def.ID, p)
		}
		assert.NotEmpty(t, def.Triggers, def.ID)
	}
}

func TestInviteLoopProducesStoredLink(t *testing.T) {
	r, st := newDefaultRegistry(t)
	tc := models.TriggerContext{Name: "Ava", Subject: "Algebra", Score: 92}

	res, err := r.Execute(context.Background(), models.LoopBuddyChallenge, "student-1", models.PersonaStudent, tc)
	require.NoError(t, err)
	require.True(t, res.Success, res.Rationale)
	require.NotNil(t, res.Invite)

	inv := res.Invite
	assert.Equal(t, "https://looppipe.test/l/"+inv.ShortCode, inv.Link)
	assert.Contains(t, inv.Message, "Ava")
	assert.Contains(t, inv.Message, "92%")
	assert.Equal(t, "sms", inv.Metadata.Channel)
	assert.Equal(t, "challenge_attempt", inv.Metadata.FVMType)
	assert.Equal(t, models.PersonaStudent, inv.Metadata.Persona)

	link, err := st.GetLink(inv.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "student-1", link.UserID)
	assert.True(t, strings.Contains(link.FullURL, "utm_source=BUDDY_CHALLENGE"))
}

func TestInviteLoopChannelOverride(t *testing.T) {
	r, _ := newDefaultRegistry(t)
	tc := models.TriggerContext{Extra: map[string]string{ChannelKey: "email"}}
	res, err := r.Execute(context.Background(), models.LoopResultsRally, "p1", models.PersonaParent, tc)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "email", res.Invite.Metadata.Channel)
}

type refusingPersonalizer struct{}

func (refusingPersonalizer) Process(_ context.Context, req agent.Request) agent.Response[agent.InviteCopy] {
	return agent.Failure[agent.InviteCopy](req, models.CodePersonaNotSupported, "no copy", "nothing to say")
}

type brokenLinks struct{}

func (brokenLinks) Generate(smartlink.Request) (models.SmartLink, error) {
	return models.SmartLink{}, errors.New("store offline")
}
func (brokenLinks) ShortURL(code string) string { return code }

func TestInviteLoopFailures(t *testing.T) {
	def := DefaultDefinitions()[0]
	personalizer, err := agent.NewPersonalizationAgent()
	require.NoError(t, err)

	loop := NewInviteLoop(def, brokenLinks{}, refusingPersonalizer{})
	res, err := loop.Execute(context.Background(), "u1", models.PersonaStudent, models.TriggerContext{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, models.CodeLoopFailed, res.Error.Code)
	assert.Contains(t, res.Rationale, "personalization failed")

	loop = NewInviteLoop(def, brokenLinks{}, personalizer)
	_, err = loop.Execute(context.Background(), "u1", models.PersonaStudent, models.TriggerContext{})
	assert.ErrorContains(t, err, "store offline")

	res, err = loop.Execute(context.Background(), "u1", models.PersonaTutor, models.TriggerContext{})
	require.NoError(t, err)
	assert.Equal(t, models.CodePersonaNotSupported, res.Error.Code)
}
