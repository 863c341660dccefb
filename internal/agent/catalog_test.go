package agent

import (
	"testing"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogCoversEveryLoop(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	for _, loop := range models.AllLoops {
		found := false
		for _, p := range models.AllPersonas {
			found = found || c.Has(loop, p)
		}
		assert.True(t, found, "no copy for loop %s", loop)
	}
}

func TestCatalogRenderFillsPlaceholders(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	out, err := c.Render(models.LoopBuddyChallenge, models.PersonaStudent, models.TriggerContext{
		Name: "Maya", Subject: "Algebra", Score: 92,
	})
	require.NoError(t, err)
	assert.Equal(t, "Maya just aced Algebra", out.Headline)
	assert.Contains(t, out.Body, "scored 92%")
	assert.Equal(t, "playful", out.Tone)
	assert.NotEmpty(t, out.CTA)
}

func TestCatalogRenderDefaultsMissingContext(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	out, err := c.Render(models.LoopProudParent, models.PersonaParent, models.TriggerContext{})
	require.NoError(t, err)
	assert.Contains(t, out.Headline, "Your friend")
	assert.Contains(t, out.Body, "their studies")
	assert.NotContains(t, out.Body, "badge", "conditional badge sentence should be omitted")
}

func TestCatalogRenderUnknownPersona(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	_, err = c.Render(models.LoopBuddyChallenge, models.PersonaTutor, models.TriggerContext{})
	assert.Error(t, err)
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"unknown loop":    "NOPE:\n  STUDENT:\n    body: hi\n",
		"unknown persona": "BUDDY_CHALLENGE:\n  ALIEN:\n    body: hi\n",
		"empty body":      "BUDDY_CHALLENGE:\n  STUDENT:\n    headline: hi\n",
		"bad template":    "BUDDY_CHALLENGE:\n  STUDENT:\n    body: \"{{.Name\"\n",
		"not yaml":        "::: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.Error(t, err)
		})
	}
}
