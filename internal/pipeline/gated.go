package pipeline

import (
	"context"

	"github.com/BTreeMap/LoopPipe/internal/loops"
	"github.com/BTreeMap/LoopPipe/internal/models"
)

// gatedExecutor re-checks the invite rate limit before each loop and counts every invite it
// lets through.
type gatedExecutor struct {
	p     *Pipeline
	inner loops.Executor
}

var _ loops.Executor = (*gatedExecutor)(nil)

func (p *Pipeline) gated() *gatedExecutor {
	return &gatedExecutor{p: p, inner: p.loops}
}

func (g *gatedExecutor) Execute(ctx context.Context, loopID models.ViralLoop, userID string, persona models.Persona, tc models.TriggerContext) (models.LoopResult, error) {
	if ok, reason := g.p.safety.AllowInvite(userID); !ok {
		g.p.logger.Info("gatedExecutor.Execute: invite rate limited", "user_id", userID, "loop_id", loopID, "reason", reason)
		g.p.publish(ctx, models.EventSafetyBlocked, map[string]any{
			"userId":  userID,
			"persona": string(persona),
			"loopId":  string(loopID),
			"reasons": []string{reason},
		})
		return models.LoopResult{
			Rationale: "invite blocked: " + reason,
			Error:     models.NewErrorDetail(models.CodeSafetyBlocked, reason),
		}, nil
	}

	res, err := g.inner.Execute(ctx, loopID, userID, persona, tc)
	if err == nil && res.Success && res.Invite != nil {
		g.p.safety.RecordInvite(userID)
	}
	return res, err
}
