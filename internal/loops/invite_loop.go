package loops

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/agent"
	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/smartlink"
)

// Personalizer produces invite copy. *agent.PersonalizationAgent satisfies it.
type Personalizer interface {
	Process(ctx context.Context, req agent.Request) agent.Response[agent.InviteCopy]
}

// LinkGenerator issues smart links. *smartlink.Service satisfies it.
type LinkGenerator interface {
	Generate(req smartlink.Request) (models.SmartLink, error)
	ShortURL(code string) string
}

// ChannelKey is the TriggerContext.Extra key that overrides a loop's default share channel.
const ChannelKey = "channel"

// Definition describes one invite-producing loop.
type Definition struct {
	ID       models.ViralLoop
	Personas []models.Persona
	Triggers []models.UserTrigger
	// FVMType names the first valuable moment the invitee lands on.
	FVMType string
	Channel string
}

// DefaultDefinitions returns the built-in loops in registration order.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:       models.LoopBuddyChallenge,
			Personas: []models.Persona{models.PersonaStudent},
			Triggers: []models.UserTrigger{models.TriggerSessionComplete, models.TriggerPracticeTestComplete},
			FVMType:  "challenge_attempt",
			Channel:  "sms",
		},
		{
			ID:       models.LoopResultsRally,
			Personas: []models.Persona{models.PersonaStudent, models.PersonaParent},
			Triggers: []models.UserTrigger{models.TriggerResultsPageView, models.TriggerPracticeTestComplete},
			FVMType:  "results_compare",
			Channel:  "share",
		},
		{
			ID:       models.LoopProudParent,
			Personas: []models.Persona{models.PersonaParent},
			Triggers: []models.UserTrigger{models.TriggerSessionComplete, models.TriggerMilestoneReached},
			FVMType:  "progress_share",
			Channel:  "whatsapp",
		},
		{
			ID:       models.LoopStreakRescue,
			Personas: []models.Persona{models.PersonaStudent},
			Triggers: []models.UserTrigger{models.TriggerStreakAtRisk},
			FVMType:  "co_practice",
			Channel:  "sms",
		},
		{
			ID:       models.LoopTutorSpotlight,
			Personas: []models.Persona{models.PersonaTutor, models.PersonaParent},
			Triggers: []models.UserTrigger{models.TriggerTutorSessionRated},
			FVMType:  "tutor_profile_view",
			Channel:  "share",
		},
		{
			ID:       models.LoopAchievementSpotlight,
			Personas: []models.Persona{models.PersonaStudent, models.PersonaParent, models.PersonaTutor},
			Triggers: []models.UserTrigger{models.TriggerBadgeEarned, models.TriggerMilestoneReached},
			FVMType:  "achievement_view",
			Channel:  "share",
		},
	}
}

// InviteLoop personalizes copy for the sharer and wraps it in a fresh smart link.
type InviteLoop struct {
	def          Definition
	links        LinkGenerator
	personalizer Personalizer
	now          func() time.Time
	logger       *slog.Logger
}

var _ Loop = (*InviteLoop)(nil)

// NewInviteLoop builds a loop from def.
func NewInviteLoop(def Definition, links LinkGenerator, personalizer Personalizer) *InviteLoop {
	return &InviteLoop{def: def, links: links, personalizer: personalizer, now: time.Now, logger: slog.Default()}
}

func (l *InviteLoop) ID() models.ViralLoop { return l.def.ID }

func (l *InviteLoop) SupportedPersonas() []models.Persona { return l.def.Personas }

func (l *InviteLoop) Triggers() []models.UserTrigger { return l.def.Triggers }

// Execute produces one invite. Copy that cannot be personalized is a failed result; a link
// that cannot be stored is an error.
func (l *InviteLoop) Execute(ctx context.Context, userID string, persona models.Persona, tc models.TriggerContext) (models.LoopResult, error) {
	if !slices.Contains(l.def.Personas, persona) {
		return models.LoopResult{
			Rationale: fmt.Sprintf("%s is not offered to %s users", l.def.ID, persona),
			Error:     models.NewErrorDetail(models.CodePersonaNotSupported, fmt.Sprintf("persona %q not supported", persona)),
		}, nil
	}

	req := agent.NewRequest(agent.PersonalizationAgentID, userID)
	req.Persona = persona
	req.LoopID = l.def.ID
	req.Context = &tc
	copyResp := l.personalizer.Process(ctx, req)
	if !copyResp.Success {
		msg := copyResp.Rationale
		if copyResp.Error != nil {
			msg = copyResp.Error.Message
		}
		return models.LoopResult{
			Rationale: "personalization failed: " + copyResp.Rationale,
			Error:     models.NewErrorDetail(models.CodeLoopFailed, msg),
		}, nil
	}

	channel := l.def.Channel
	if c := tc.Extra[ChannelKey]; c != "" {
		channel = c
	}
	link, err := l.links.Generate(smartlink.Request{
		UserID:  userID,
		LoopID:  l.def.ID,
		Persona: persona,
		FVMType: l.def.FVMType,
		Channel: channel,
		Context: tc,
	})
	if err != nil {
		return models.LoopResult{}, fmt.Errorf("failed to generate smart link: %w", err)
	}

	invite := &models.Invite{
		ShortCode: link.ShortCode,
		Link:      l.links.ShortURL(link.ShortCode),
		Headline:  copyResp.Output.Headline,
		Message:   copyResp.Output.Body,
		CTA:       copyResp.Output.CTA,
		Metadata: models.InviteMetadata{
			UserID:    userID,
			LoopID:    l.def.ID,
			Persona:   persona,
			FVMType:   l.def.FVMType,
			Channel:   channel,
			CreatedAt: l.now().UTC(),
		},
	}
	l.logger.Debug("InviteLoop.Execute: invite created", "loop_id", l.def.ID, "user_id", userID, "short_code", link.ShortCode)
	return models.LoopResult{
		Success:   true,
		Invite:    invite,
		Rationale: fmt.Sprintf("%s invite issued via %s; %s", l.def.ID, channel, copyResp.Rationale),
	}, nil
}

// NewDefaultRegistry registers every built-in loop against the shared link generator and
// personalizer. The loops log through the registry logger.
func NewDefaultRegistry(links LinkGenerator, personalizer Personalizer, opts ...Option) *Registry {
	r := NewRegistry(opts...)
	for _, def := range DefaultDefinitions() {
		loop := NewInviteLoop(def, links, personalizer)
		loop.logger = r.logger
		r.Register(loop)
	}
	r.logger.Debug("NewDefaultRegistry: loops registered", "count", len(r.All()))
	return r
}
