// Package pipeline routes user triggers and session summaries through the trust-and-safety
// gate, the loop registry and the action orchestrator, publishing an event for every step.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/actions"
	"github.com/BTreeMap/LoopPipe/internal/agent"
	"github.com/BTreeMap/LoopPipe/internal/events"
	"github.com/BTreeMap/LoopPipe/internal/loops"
	"github.com/BTreeMap/LoopPipe/internal/models"
)

// Gate is the trust-and-safety collaborator. *agent.TrustSafetyAgent satisfies it.
type Gate interface {
	Process(ctx context.Context, req agent.Request) agent.Response[agent.SafetyDecision]
	AllowInvite(userID string) (bool, string)
	RecordInvite(userID string)
}

// TriggerRequest is one raw user trigger.
type TriggerRequest struct {
	UserID    string                 `json:"userId"`
	Trigger   models.UserTrigger     `json:"trigger"`
	Persona   models.Persona         `json:"persona"`
	Context   models.TriggerContext  `json:"context,omitempty"`
	Summary   *models.SessionSummary `json:"summary,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
}

// SummaryRequest asks for the orchestrator path alone.
type SummaryRequest struct {
	UserID    string                `json:"userId"`
	Persona   models.Persona        `json:"persona"`
	SessionID string                `json:"sessionId"`
	Summary   models.SessionSummary `json:"summary"`
	Context   models.TriggerContext `json:"context,omitempty"`
}

// Opts holds configuration for the Pipeline.
type Opts struct {
	Logger *slog.Logger
}

// Option configures the Pipeline.
type Option func(*Opts)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Pipeline is the composition root for trigger processing.
type Pipeline struct {
	bus          *events.Bus
	loops        *loops.Registry
	orchestrator *actions.Orchestrator
	safety       Gate
	logger       *slog.Logger
}

// New wires a pipeline.
func New(bus *events.Bus, registry *loops.Registry, orchestrator *actions.Orchestrator, safety Gate, opts ...Option) *Pipeline {
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		bus:          bus,
		loops:        registry,
		orchestrator: orchestrator,
		safety:       safety,
		logger:       cfg.Logger,
	}
}

// Loops returns the loop registry.
func (p *Pipeline) Loops() *loops.Registry { return p.loops }

// Orchestrator returns the action orchestrator.
func (p *Pipeline) Orchestrator() *actions.Orchestrator { return p.orchestrator }

// Bus returns the event bus.
func (p *Pipeline) Bus() *events.Bus { return p.bus }

// ProcessTrigger runs every loop the trigger fans out to and, when a summary is attached, the
// action orchestrator. It always returns a non-nil slice.
func (p *Pipeline) ProcessTrigger(ctx context.Context, req TriggerRequest) (results []models.AgenticActionResult) {
	defer p.recoverInto(ctx, &results, req.UserID)

	if err := ValidateTrigger(req); err != nil {
		return p.rejectInvalid(ctx, req.UserID, err)
	}
	p.publish(ctx, models.EventTriggerReceived, map[string]any{
		"userId":    req.UserID,
		"trigger":   string(req.Trigger),
		"persona":   string(req.Persona),
		"sessionId": req.SessionID,
	})

	if blocked, ok := p.screen(ctx, req.UserID, req.Persona, req.Context); !ok {
		return []models.AgenticActionResult{blocked}
	}

	exec := p.gated()
	results = make([]models.AgenticActionResult, 0)
	for _, loop := range p.loops.ForTrigger(req.Trigger, req.Persona) {
		results = append(results, p.runLoop(ctx, exec, loop.ID(), req))
	}

	if req.Summary != nil {
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = req.Summary.SessionID
		}
		results = append(results, p.runActions(ctx, exec, *req.Summary, req.UserID, req.Persona, sessionID, req.Context)...)
	}

	p.logger.Info("Pipeline.ProcessTrigger: trigger processed",
		"user_id", req.UserID, "trigger", req.Trigger, "persona", req.Persona, "results", len(results), "invites", countInvites(results))
	return results
}

// ProcessSessionSummary runs only the action orchestrator for a summary, behind the same gate.
func (p *Pipeline) ProcessSessionSummary(ctx context.Context, req SummaryRequest) (results []models.AgenticActionResult) {
	defer p.recoverInto(ctx, &results, req.UserID)

	if err := validateSummary(req); err != nil {
		return p.rejectInvalid(ctx, req.UserID, err)
	}
	summary := req.Summary
	if summary.SessionID == "" {
		summary.SessionID = req.SessionID
	}
	p.publish(ctx, models.EventTriggerReceived, map[string]any{
		"userId":    req.UserID,
		"trigger":   string(models.TriggerSessionComplete),
		"persona":   string(req.Persona),
		"sessionId": req.SessionID,
		"source":    "session_summary",
	})

	if blocked, ok := p.screen(ctx, req.UserID, req.Persona, req.Context); !ok {
		return []models.AgenticActionResult{blocked}
	}

	results = p.runActions(ctx, p.gated(), summary, req.UserID, req.Persona, req.SessionID, req.Context)
	p.logger.Info("Pipeline.ProcessSessionSummary: summary processed",
		"user_id", req.UserID, "session_id", req.SessionID, "results", len(results), "invites", countInvites(results))
	return results
}

// ValidateTrigger reports why req would be rejected with VALIDATION_ERROR, or nil.
func ValidateTrigger(req TriggerRequest) error {
	if req.UserID == "" {
		return models.ErrEmptyUserID
	}
	if _, err := models.ParsePersona(string(req.Persona)); err != nil {
		return err
	}
	if _, err := models.ParseTrigger(string(req.Trigger)); err != nil {
		return err
	}
	return nil
}

func validateSummary(req SummaryRequest) error {
	if req.UserID == "" {
		return models.ErrEmptyUserID
	}
	if _, err := models.ParsePersona(string(req.Persona)); err != nil {
		return err
	}
	if req.SessionID == "" {
		return models.ErrEmptySessionID
	}
	return nil
}

func (p *Pipeline) rejectInvalid(ctx context.Context, userID string, err error) []models.AgenticActionResult {
	p.logger.Warn("Pipeline: rejected invalid request", "user_id", userID, "error", err)
	p.publish(ctx, models.EventPipelineError, map[string]any{
		"userId": userID,
		"code":   models.CodeValidation,
		"error":  err.Error(),
	})
	return []models.AgenticActionResult{{
		Success:   false,
		Rationale: "request rejected: " + err.Error(),
		Error:     models.NewErrorDetail(models.CodeValidation, err.Error()),
	}}
}

// screen asks the trust-and-safety agent about the request. A veto returns the result to
// report and ok=false.
func (p *Pipeline) screen(ctx context.Context, userID string, persona models.Persona, tc models.TriggerContext) (models.AgenticActionResult, bool) {
	req := agent.NewRequest(agent.TrustSafetyAgentID, userID)
	req.Persona = persona
	req.Context = &tc
	resp := p.safety.Process(ctx, req)
	if resp.Success && resp.Output.Allowed {
		return models.AgenticActionResult{}, true
	}

	msg := resp.Rationale
	if resp.Error != nil {
		msg = resp.Error.Message
	}
	p.logger.Info("Pipeline: trust and safety veto", "user_id", userID, "reasons", resp.Output.Reasons)
	p.publish(ctx, models.EventSafetyBlocked, map[string]any{
		"userId":    userID,
		"persona":   string(persona),
		"reasons":   resp.Output.Reasons,
		"requestId": resp.RequestID,
	})
	return models.AgenticActionResult{
		Success:   false,
		Rationale: resp.Rationale,
		LatencyMs: resp.LatencyMs,
		Error:     models.NewErrorDetail(models.CodeSafetyBlocked, msg),
	}, false
}

// runLoop executes one loop inside its own failure boundary.
func (p *Pipeline) runLoop(ctx context.Context, exec loops.Executor, loopID models.ViralLoop, req TriggerRequest) models.AgenticActionResult {
	start := time.Now()
	lr, err := p.execute(ctx, exec, loopID, req)
	if err != nil && lr.Error == nil {
		lr.Error = models.NewErrorDetail(models.CodeLoopFailed, err.Error())
	}
	res := models.AgenticActionResult{
		TriggeredLoop:   loopID,
		Success:         lr.Success && err == nil,
		InviteGenerated: lr.Invite != nil,
		Invite:          lr.Invite,
		Rationale:       lr.Rationale,
		LatencyMs:       time.Since(start).Milliseconds(),
		Error:           lr.Error,
	}
	if res.Rationale == "" {
		res.Rationale = fmt.Sprintf("%s ran for %s", loopID, req.Trigger)
	}

	p.publish(ctx, models.EventLoopExecuted, map[string]any{
		"userId":    req.UserID,
		"trigger":   string(req.Trigger),
		"loopId":    string(loopID),
		"persona":   string(req.Persona),
		"success":   res.Success,
		"latencyMs": res.LatencyMs,
		"rationale": res.Rationale,
	})
	p.reportOutcome(ctx, res, req.UserID, req.Persona, req.Context)
	return res
}

func (p *Pipeline) execute(ctx context.Context, exec loops.Executor, loopID models.ViralLoop, req TriggerRequest) (lr models.LoopResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Pipeline.execute: loop panicked", "user_id", req.UserID, "loop_id", loopID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			msg := fmt.Sprintf("panic: %v", r)
			lr = models.LoopResult{
				Rationale: fmt.Sprintf("loop %s failed: %s", loopID, msg),
				Error:     models.NewErrorDetail(models.CodeLoopFailed, msg),
			}
			err = fmt.Errorf("loop %s: %s", loopID, msg)
		}
	}()
	return exec.Execute(ctx, loopID, req.UserID, req.Persona, req.Context)
}

func (p *Pipeline) runActions(ctx context.Context, exec loops.Executor, summary models.SessionSummary, userID string, persona models.Persona, sessionID string, tc models.TriggerContext) []models.AgenticActionResult {
	results := p.orchestrator.Process(ctx, summary, userID, persona, sessionID, tc, exec)
	for _, res := range results {
		p.publish(ctx, models.EventActionEvaluated, map[string]any{
			"userId":        userID,
			"sessionId":     sessionID,
			"actionId":      res.ActionID,
			"triggeredLoop": string(res.TriggeredLoop),
			"success":       res.Success,
			"latencyMs":     res.LatencyMs,
			"rationale":     res.Rationale,
		})
		p.reportOutcome(ctx, res, userID, persona, tc)
	}
	return results
}

// reportOutcome publishes invite.generated for an issued invite and pipeline.error for a
// failure other than a safety veto, which is already reported as safety.blocked.
func (p *Pipeline) reportOutcome(ctx context.Context, res models.AgenticActionResult, userID string, persona models.Persona, tc models.TriggerContext) {
	if res.Success && res.Invite != nil {
		inv := res.Invite
		payload := map[string]any{
			"userId":    userID,
			"persona":   string(persona),
			"loopId":    string(inv.Metadata.LoopID),
			"shortCode": inv.ShortCode,
			"link":      inv.Link,
			"headline":  inv.Headline,
			"message":   inv.Message,
			"cta":       inv.CTA,
			"channel":   inv.Metadata.Channel,
			"fvmType":   inv.Metadata.FVMType,
		}
		if res.ActionID != "" {
			payload["actionId"] = res.ActionID
		}
		if tc.InviteePhone != "" {
			payload["inviteePhone"] = tc.InviteePhone
		}
		p.publish(ctx, models.EventInviteGenerated, payload)
		return
	}
	if res.Success || (res.Error != nil && res.Error.Code == models.CodeSafetyBlocked) {
		return
	}
	payload := map[string]any{
		"userId":    userID,
		"loopId":    string(res.TriggeredLoop),
		"actionId":  res.ActionID,
		"rationale": res.Rationale,
	}
	if res.Error != nil {
		payload["code"] = res.Error.Code
		payload["error"] = res.Error.Message
	}
	p.publish(ctx, models.EventPipelineError, payload)
}

func (p *Pipeline) publish(ctx context.Context, eventType string, payload map[string]any) {
	p.bus.Publish(ctx, models.NewEvent(eventType, payload))
}

// recoverInto turns a panic outside the loop and action boundaries, such as in the safety
// gate, into an INTERNAL_ERROR result appended to whatever was already produced.
func (p *Pipeline) recoverInto(ctx context.Context, results *[]models.AgenticActionResult, userID string) {
	if r := recover(); r != nil {
		p.logger.Error("Pipeline: recovered from panic", "user_id", userID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		msg := fmt.Sprintf("internal error: %v", r)
		p.publish(ctx, models.EventPipelineError, map[string]any{"userId": userID, "code": models.CodeInternal, "error": msg})
		*results = append(*results, models.AgenticActionResult{
			Success:   false,
			Rationale: "processing aborted by an internal error",
			Error:     models.NewErrorDetail(models.CodeInternal, msg),
		})
	}
	if *results == nil {
		*results = []models.AgenticActionResult{}
	}
}

func countInvites(results []models.AgenticActionResult) int {
	n := 0
	for _, r := range results {
		if r.Success && r.Invite != nil {
			n++
		}
	}
	return n
}
