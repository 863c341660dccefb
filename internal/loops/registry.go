// Package loops holds the catalog of executable viral loops.
//
// A Registry maps each models.ViralLoop to one Loop implementation. Registration is an explicit
// insert; registering an id a second time replaces the loop but keeps its original position in
// the listing order.
package loops

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/BTreeMap/LoopPipe/internal/models"
)

// Loop is an executable viral loop.
type Loop interface {
	ID() models.ViralLoop
	SupportedPersonas() []models.Persona
	Triggers() []models.UserTrigger
	Execute(ctx context.Context, userID string, persona models.Persona, tc models.TriggerContext) (models.LoopResult, error)
}

// Executor runs a loop by id. Actions receive one instead of the whole Registry.
type Executor interface {
	Execute(ctx context.Context, loopID models.ViralLoop, userID string, persona models.Persona, tc models.TriggerContext) (models.LoopResult, error)
}

// Info describes a registered loop.
type Info struct {
	ID                models.ViralLoop     `json:"loopId"`
	SupportedPersonas []models.Persona     `json:"supportedPersonas"`
	Triggers          []models.UserTrigger `json:"triggers"`
}

// Stats summarizes the registry.
type Stats struct {
	Total     int                    `json:"total"`
	ByPersona map[models.Persona]int `json:"byPersona"`
	Loops     []Info                 `json:"loops"`
}

// Opts holds configuration for a Registry.
type Opts struct {
	Logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Opts)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Registry is a concurrency-safe catalog of loops.
type Registry struct {
	mu     sync.RWMutex
	loops  map[models.ViralLoop]Loop
	order  []models.ViralLoop
	logger *slog.Logger
}

var _ Executor = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	cfg := Opts{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{loops: make(map[models.ViralLoop]Loop), logger: cfg.Logger}
}

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger { return r.logger }

// Register inserts loop, replacing any loop already registered under the same id.
func (r *Registry) Register(loop Loop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := loop.ID()
	if _, exists := r.loops[id]; exists {
		r.logger.Debug("Registry.Register: replacing loop", "loop_id", id)
	} else {
		r.order = append(r.order, id)
	}
	r.loops[id] = loop
}

// Get returns the loop registered under id.
func (r *Registry) Get(id models.ViralLoop) (Loop, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loop, ok := r.loops[id]
	return loop, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id models.ViralLoop) bool {
	_, ok := r.Get(id)
	return ok
}

// All returns every loop in registration order.
func (r *Registry) All() []Loop {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Loop, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.loops[id])
	}
	return out
}

// ByPersona returns the loops supporting persona, in registration order.
func (r *Registry) ByPersona(persona models.Persona) []Loop {
	var out []Loop
	for _, loop := range r.All() {
		if models.SupportsPersona(loop.SupportedPersonas(), persona) {
			out = append(out, loop)
		}
	}
	return out
}

// ForTrigger returns the loops that react to trigger and support persona.
func (r *Registry) ForTrigger(trigger models.UserTrigger, persona models.Persona) []Loop {
	var out []Loop
	for _, loop := range r.ByPersona(persona) {
		if slices.Contains(loop.Triggers(), trigger) {
			out = append(out, loop)
		}
	}
	return out
}

// Stats counts loops per persona.
func (r *Registry) Stats() Stats {
	all := r.All()
	stats := Stats{
		Total:     len(all),
		ByPersona: make(map[models.Persona]int, len(models.AllPersonas)),
		Loops:     make([]Info, 0, len(all)),
	}
	for _, p := range models.AllPersonas {
		stats.ByPersona[p] = 0
	}
	for _, loop := range all {
		for _, p := range loop.SupportedPersonas() {
			stats.ByPersona[p]++
		}
		stats.Loops = append(stats.Loops, InfoOf(loop))
	}
	return stats
}

// InfoOf describes loop.
func InfoOf(loop Loop) Info {
	return Info{
		ID:                loop.ID(),
		SupportedPersonas: slices.Clone(loop.SupportedPersonas()),
		Triggers:          slices.Clone(loop.Triggers()),
	}
}

// Execute runs the loop registered under loopID. Unknown loops and unsupported personas yield
// a failed result without invoking anything. A loop error or panic is returned together with a
// LOOP_FAILED result.
func (r *Registry) Execute(ctx context.Context, loopID models.ViralLoop, userID string, persona models.Persona, tc models.TriggerContext) (res models.LoopResult, err error) {
	loop, ok := r.Get(loopID)
	if !ok {
		return models.LoopResult{
			Rationale: fmt.Sprintf("loop %s is not registered", loopID),
			Error:     models.NewErrorDetail(models.CodeLoopNotFound, fmt.Sprintf("loop %q not found", loopID)),
		}, nil
	}
	if !models.SupportsPersona(loop.SupportedPersonas(), persona) {
		return models.LoopResult{
			Rationale: fmt.Sprintf("loop %s does not run for %s users", loopID, persona),
			Error:     models.NewErrorDetail(models.CodePersonaNotSupported, fmt.Sprintf("persona %q not supported by %s", persona, loopID)),
		}, nil
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Registry.Execute: loop panicked", "loop_id", loopID, "user_id", userID, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			res, err = loopFailed(loopID, fmt.Errorf("panic: %v", p))
		}
	}()

	res, err = loop.Execute(ctx, userID, persona, tc.Clone())
	if err != nil {
		r.logger.Error("Registry.Execute: loop failed", "loop_id", loopID, "user_id", userID, "error", err)
		return loopFailed(loopID, err)
	}
	return res, nil
}

func loopFailed(loopID models.ViralLoop, err error) (models.LoopResult, error) {
	return models.LoopResult{
		Rationale: fmt.Sprintf("loop %s failed: %v", loopID, err),
		Error:     models.NewErrorDetail(models.CodeLoopFailed, err.Error()),
	}, fmt.Errorf("loop %s: %w", loopID, err)
}
