package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/models"
)

// PersonalizationAgentID identifies the personalization agent.
const PersonalizationAgentID = "personalization"

// DefaultPersonalizationSLA is the personalization agent's latency budget.
const DefaultPersonalizationSLA = 150 * time.Millisecond

// InviteCopy is the personalized text of an invite.
type InviteCopy struct {
	Headline string `json:"headline"`
	Body     string `json:"body"`
	CTA      string `json:"cta"`
	Tone     string `json:"tone"`
}

// CopyRequest is handed to a Copywriter to rewrite a drafted invite.
type CopyRequest struct {
	Persona models.Persona
	Loop    models.ViralLoop
	Context models.TriggerContext
	Draft   InviteCopy
}

// Copywriter rewrites invite bodies, typically with a language model.
type Copywriter interface {
	Name() string
	Rewrite(ctx context.Context, req CopyRequest) (string, error)
}

// PersonalizationOpts holds configuration for the personalization agent.
type PersonalizationOpts struct {
	Catalog    *Catalog
	Copywriter Copywriter
	SLA        time.Duration
	Logger     *slog.Logger
}

// PersonalizationOption configures the personalization agent.
type PersonalizationOption func(*PersonalizationOpts)

// WithCatalog replaces the embedded copy catalog.
func WithCatalog(c *Catalog) PersonalizationOption {
	return func(o *PersonalizationOpts) { o.Catalog = c }
}

// WithCopywriter enables GenAI rewriting of invite bodies.
func WithCopywriter(w Copywriter) PersonalizationOption {
	return func(o *PersonalizationOpts) { o.Copywriter = w }
}

// WithPersonalizationSLA overrides the default SLA.
func WithPersonalizationSLA(d time.Duration) PersonalizationOption {
	return func(o *PersonalizationOpts) { o.SLA = d }
}

// WithPersonalizationLogger sets the logger.
func WithPersonalizationLogger(l *slog.Logger) PersonalizationOption {
	return func(o *PersonalizationOpts) { o.Logger = l }
}

// PersonalizationAgent produces invite copy for a persona, loop and trigger context.
type PersonalizationAgent struct {
	catalog    *Catalog
	copywriter Copywriter
	sla        time.Duration
	logger     *slog.Logger
}

var _ Agent[InviteCopy] = (*PersonalizationAgent)(nil)

// NewPersonalizationAgent builds the agent, loading the embedded catalog unless one is supplied.
func NewPersonalizationAgent(opts ...PersonalizationOption) (*PersonalizationAgent, error) {
	cfg := PersonalizationOpts{SLA: DefaultPersonalizationSLA}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Catalog == nil {
		c, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		cfg.Catalog = c
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SLA <= 0 {
		cfg.SLA = DefaultPersonalizationSLA
	}
	return &PersonalizationAgent{
		catalog:    cfg.Catalog,
		copywriter: cfg.Copywriter,
		sla:        cfg.SLA,
		logger:     cfg.Logger,
	}, nil
}

// ID implements Agent.
func (a *PersonalizationAgent) ID() string { return PersonalizationAgentID }

// SLA implements Agent.
func (a *PersonalizationAgent) SLA() time.Duration { return a.sla }

// Process renders copy from the catalog and, when a copywriter is configured, rewrites the body.
// A copywriter failure falls back to the template body and is noted in the rationale.
func (a *PersonalizationAgent) Process(ctx context.Context, req Request) Response[InviteCopy] {
	timing := StartTiming()
	finish := func(r Response[InviteCopy]) Response[InviteCopy] {
		return Finish(a.logger, a.sla, timing, r)
	}

	if errDetail := ValidateRequest(req); errDetail != nil {
		return finish(Failure[InviteCopy](req, errDetail.Code, errDetail.Message, "invalid request: "+errDetail.Message))
	}
	if !req.Persona.IsValid() {
		return finish(Failure[InviteCopy](req, models.CodeValidation,
			fmt.Sprintf("persona %q is not supported", req.Persona), "cannot personalize without a known persona"))
	}
	if !req.LoopID.IsValid() {
		return finish(Failure[InviteCopy](req, models.CodeValidation,
			fmt.Sprintf("loop %q is not known", req.LoopID), "cannot personalize without a known loop"))
	}

	var tc models.TriggerContext
	if req.Context != nil {
		tc = *req.Context
	}

	draft, err := a.catalog.Render(req.LoopID, req.Persona, tc)
	if err != nil {
		return finish(Failure[InviteCopy](req, models.CodePersonaNotSupported, err.Error(),
			fmt.Sprintf("no copy is defined for %s invites from a %s", req.LoopID, strings.ToLower(string(req.Persona)))))
	}

	rationale := fmt.Sprintf("rendered %s copy for %s with a %s tone", req.LoopID, req.Persona, draft.Tone)
	if a.copywriter != nil {
		body, err := a.copywriter.Rewrite(ctx, CopyRequest{Persona: req.Persona, Loop: req.LoopID, Context: tc, Draft: draft})
		switch {
		case err != nil:
			a.logger.Warn("PersonalizationAgent.Process: copywriter failed, using template", "copywriter", a.copywriter.Name(), "loop_id", req.LoopID, "error", err)
			rationale += fmt.Sprintf("; %s rewrite failed, template copy kept", a.copywriter.Name())
		case strings.TrimSpace(body) == "":
			rationale += fmt.Sprintf("; %s returned empty copy, template copy kept", a.copywriter.Name())
		default:
			draft.Body = strings.TrimSpace(body)
			rationale += fmt.Sprintf("; body rewritten by %s", a.copywriter.Name())
		}
	}

	return finish(Succeed(req, draft, rationale))
}

// HealthCheck renders a sample invite without calling the copywriter.
func (a *PersonalizationAgent) HealthCheck(ctx context.Context) Health {
	bare := &PersonalizationAgent{catalog: a.catalog, sla: a.sla, logger: a.logger}
	req := NewRequest(a.ID(), "healthcheck")
	req.Persona = models.PersonaStudent
	req.LoopID = models.LoopBuddyChallenge
	h := probe[InviteCopy](ctx, bare, req, func(r Response[InviteCopy]) bool { return r.Success })
	h.AgentID = a.ID()
	return h
}
