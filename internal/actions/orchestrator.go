// Package actions evaluates session summaries against a set of agentic actions, each deciding
// whether a viral loop should run for the session's user.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/loops"
	"github.com/BTreeMap/LoopPipe/internal/models"
)

// Action decides whether to act on a session and, if so, runs a loop through the executor.
// ShouldTrigger must not have side effects.
type Action interface {
	ID() string
	SupportedPersonas() []models.Persona
	ShouldTrigger(ctx context.Context, ac models.AgenticActionContext) (bool, error)
	Execute(ctx context.Context, ac models.AgenticActionContext, exec loops.Executor) (models.AgenticActionResult, error)
}

// Info describes a registered action.
type Info struct {
	ID                string           `json:"actionId"`
	SupportedPersonas []models.Persona `json:"supportedPersonas"`
}

// Stats summarizes the orchestrator's actions.
type Stats struct {
	Total     int                    `json:"total"`
	ByPersona map[models.Persona]int `json:"byPersona"`
	Actions   []Info                 `json:"actions"`
}

// Opts holds configuration for an Orchestrator.
type Opts struct {
	Logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Opts)

// WithLogger sets the orchestrator logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Orchestrator holds the registered actions and runs them against session summaries.
type Orchestrator struct {
	mu      sync.RWMutex
	actions map[string]Action
	order   []string
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator with no actions.
func NewOrchestrator(opts ...Option) *Orchestrator {
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{actions: make(map[string]Action), logger: cfg.Logger}
}

// Register inserts action, replacing an action with the same id in place.
func (o *Orchestrator) Register(action Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := action.ID()
	if _, exists := o.actions[id]; exists {
		o.logger.Debug("Orchestrator.Register: replacing action", "action_id", id)
	} else {
		o.order = append(o.order, id)
	}
	o.actions[id] = action
}

// Get returns the action registered under id.
func (o *Orchestrator) Get(id string) (Action, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.actions[id]
	return a, ok
}

// All returns every action in registration order.
func (o *Orchestrator) All() []Action {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Action, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.actions[id])
	}
	return out
}

// ByPersona returns the actions supporting persona, in registration order.
func (o *Orchestrator) ByPersona(persona models.Persona) []Action {
	var out []Action
	for _, a := range o.All() {
		if models.SupportsPersona(a.SupportedPersonas(), persona) {
			out = append(out, a)
		}
	}
	return out
}

// Stats counts actions per persona.
func (o *Orchestrator) Stats() Stats {
	all := o.All()
	stats := Stats{
		Total:     len(all),
		ByPersona: make(map[models.Persona]int, len(models.AllPersonas)),
		Actions:   make([]Info, 0, len(all)),
	}
	for _, p := range models.AllPersonas {
		stats.ByPersona[p] = 0
	}
	for _, a := range all {
		for _, p := range a.SupportedPersonas() {
			stats.ByPersona[p]++
		}
		stats.Actions = append(stats.Actions, InfoOf(a))
	}
	return stats
}

// InfoOf describes a.
func InfoOf(a Action) Info {
	return Info{ID: a.ID(), SupportedPersonas: slices.Clone(a.SupportedPersonas())}
}

// Process evaluates every action supporting persona, one at a time in registration order.
// Each action gets its own copy of the context. Actions that decline are left out of the results. An action that errors or panics yields a
// failed ACTION_FAILED result and the remaining actions still run.
func (o *Orchestrator) Process(ctx context.Context, summary models.SessionSummary, userID string, persona models.Persona, sessionID string, metadata models.TriggerContext, exec loops.Executor) []models.AgenticActionResult {
	ac := models.AgenticActionContext{
		Summary:   summary,
		UserID:    userID,
		Persona:   persona,
		SessionID: sessionID,
		Metadata:  metadata,
	}

	eligible := o.ByPersona(persona)
	o.logger.Debug("Orchestrator.Process: evaluating actions", "user_id", userID, "persona", persona, "session_id", sessionID, "eligible", len(eligible))

	results := make([]models.AgenticActionResult, 0, len(eligible))
	for _, action := range eligible {
		if res, fired := o.evaluate(ctx, action, ac.Clone(), exec); fired {
			results = append(results, res)
		}
	}
	return results
}

// evaluate runs one action inside its own failure boundary. fired is false when the action
// declined.
func (o *Orchestrator) evaluate(ctx context.Context, action Action, ac models.AgenticActionContext, exec loops.Executor) (res models.AgenticActionResult, fired bool) {
	start := time.Now()
	id := action.ID()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Orchestrator.Process: action panicked", "action_id", id, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res, fired = failed(id, fmt.Sprintf("panic: %v", r)), true
		}
		if fired {
			res.ActionID = id
			res.LatencyMs = time.Since(start).Milliseconds()
			if res.Rationale == "" {
				res.Rationale = defaultRationale(res)
			}
		}
	}()

	should, err := action.ShouldTrigger(ctx, ac)
	if err != nil {
		o.logger.Error("Orchestrator.Process: shouldTrigger failed", "action_id", id, "error", err)
		return failed(id, err.Error()), true
	}
	if !should {
		o.logger.Debug("Orchestrator.Process: action declined", "action_id", id)
		return models.AgenticActionResult{}, false
	}

	res, err = action.Execute(ctx, ac, exec)
	if err != nil {
		o.logger.Error("Orchestrator.Process: execute failed", "action_id", id, "error", err)
		return failed(id, err.Error()), true
	}
	return res, true
}

func failed(actionID, msg string) models.AgenticActionResult {
	return models.AgenticActionResult{
		ActionID:  actionID,
		Success:   false,
		Rationale: fmt.Sprintf("action %s failed: %s", actionID, msg),
		Error:     models.NewErrorDetail(models.CodeActionFailed, msg),
	}
}

func defaultRationale(res models.AgenticActionResult) string {
	switch {
	case res.Error != nil:
		return res.Error.Message
	case res.Success && res.TriggeredLoop != "":
		return fmt.Sprintf("triggered %s", res.TriggeredLoop)
	case res.Success:
		return "action completed"
	default:
		return "action did not complete"
	}
}
