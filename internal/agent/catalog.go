package agent

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed copy.yaml
var defaultCopyYAML []byte

// CopyTemplate is the raw copy for one loop and persona.
type CopyTemplate struct {
	Tone     string `yaml:"tone"`
	Headline string `yaml:"headline"`
	Body     string `yaml:"body"`
	CTA      string `yaml:"cta"`
}

type compiledCopy struct {
	tone     string
	headline *template.Template
	body     *template.Template
	cta      *template.Template
}

// Catalog holds compiled invite copy keyed by loop then persona.
type Catalog struct {
	entries map[models.ViralLoop]map[models.Persona]compiledCopy
}

// DefaultCatalog returns the catalog compiled from the embedded copy.yaml.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCopyYAML)
}

// ParseCatalog compiles a YAML copy catalog. Unknown loops or personas are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw map[string]map[string]CopyTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse copy catalog: %w", err)
	}

	c := &Catalog{entries: make(map[models.ViralLoop]map[models.Persona]compiledCopy, len(raw))}
	for loopKey, byPersona := range raw {
		loop := models.ViralLoop(loopKey)
		if !loop.IsValid() {
			return nil, fmt.Errorf("%w: %q in copy catalog", models.ErrUnknownLoop, loopKey)
		}
		c.entries[loop] = make(map[models.Persona]compiledCopy, len(byPersona))
		for personaKey, tmpl := range byPersona {
			persona, err := models.ParsePersona(personaKey)
			if err != nil {
				return nil, fmt.Errorf("copy catalog %s: %w", loopKey, err)
			}
			compiled, err := compileCopy(loopKey+"/"+personaKey, tmpl)
			if err != nil {
				return nil, err
			}
			c.entries[loop][persona] = compiled
		}
	}
	return c, nil
}

func compileCopy(name string, t CopyTemplate) (compiledCopy, error) {
	if strings.TrimSpace(t.Body) == "" {
		return compiledCopy{}, fmt.Errorf("copy catalog %s: body is required", name)
	}
	parse := func(field, text string) (*template.Template, error) {
		tpl, err := template.New(name + "." + field).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("copy catalog %s.%s: %w", name, field, err)
		}
		return tpl, nil
	}
	var out compiledCopy
	var err error
	out.tone = t.Tone
	if out.headline, err = parse("headline", t.Headline); err != nil {
		return compiledCopy{}, err
	}
	if out.body, err = parse("body", t.Body); err != nil {
		return compiledCopy{}, err
	}
	if out.cta, err = parse("cta", t.CTA); err != nil {
		return compiledCopy{}, err
	}
	return out, nil
}

// Has reports whether copy exists for the loop and persona.
func (c *Catalog) Has(loop models.ViralLoop, persona models.Persona) bool {
	_, ok := c.entries[loop][persona]
	return ok
}

// copyView is the data exposed to templates. Missing context values get neutral defaults.
type copyView struct {
	Name       string
	Subject    string
	Grade      string
	Score      string
	StreakDays int
	BadgeName  string
	Persona    models.Persona
	Loop       models.ViralLoop
}

func newCopyView(loop models.ViralLoop, persona models.Persona, tc models.TriggerContext) copyView {
	name := tc.Name
	if name == "" {
		name = "Your friend"
	}
	return copyView{
		Name:       name,
		Subject:    tc.SubjectOr("their studies"),
		Grade:      tc.Grade,
		Score:      strconv.FormatFloat(tc.Score, 'f', -1, 64),
		StreakDays: tc.StreakDays,
		BadgeName:  tc.BadgeName,
		Persona:    persona,
		Loop:       loop,
	}
}

// Render produces invite copy for the loop and persona.
func (c *Catalog) Render(loop models.ViralLoop, persona models.Persona, tc models.TriggerContext) (InviteCopy, error) {
	entry, ok := c.entries[loop][persona]
	if !ok {
		return InviteCopy{}, fmt.Errorf("no invite copy for loop %s and persona %s", loop, persona)
	}
	view := newCopyView(loop, persona, tc)
	exec := func(t *template.Template) (string, error) {
		var b strings.Builder
		if err := t.Execute(&b, view); err != nil {
			return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
		}
		return strings.TrimSpace(b.String()), nil
	}

	var out InviteCopy
	var err error
	out.Tone = entry.tone
	if out.Headline, err = exec(entry.headline); err != nil {
		return InviteCopy{}, err
	}
	if out.Body, err = exec(entry.body); err != nil {
		return InviteCopy{}, err
	}
	if out.CTA, err = exec(entry.cta); err != nil {
		return InviteCopy{}, err
	}
	return out, nil
}
