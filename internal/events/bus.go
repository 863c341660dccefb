// Package events provides the process-wide publish/subscribe hub for LoopPipe lifecycle events.
//
// A Bus is constructed explicitly and passed to every component that publishes or subscribes.
// It keeps a bounded history of published events for debugging and replay.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxHistory is the default number of events retained in history.
const DefaultMaxHistory = 10000

// Handler receives published events. A returned error is logged and never reaches the publisher.
type Handler interface {
	Handle(ctx context.Context, ev models.ViralEvent) error
}

// HandlerFunc adapts a function to the Handler interface. Function values are not comparable,
// so every HandlerFunc subscription is distinct.
type HandlerFunc func(ctx context.Context, ev models.ViralEvent) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev models.ViralEvent) error { return f(ctx, ev) }

type subscription struct {
	id      uint64
	handler Handler
}

// Opts holds configuration options for the Bus.
type Opts struct {
	MaxHistory int
	Logger     *slog.Logger
}

// Option defines a configuration option for the Bus.
type Option func(*Opts)

// WithMaxHistory sets the history capacity. Values <= 0 keep the default.
func WithMaxHistory(n int) Option {
	return func(o *Opts) { o.MaxHistory = n }
}

// WithLogger sets the logger used for handler failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Bus is a concurrent fan-out event bus with bounded history.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // eventType -> subscriptions in subscription order
	history       []models.ViralEvent
	maxHistory    int
	nextID        atomic.Uint64
	logger        *slog.Logger
}

// NewBus creates a new event bus.
func NewBus(opts ...Option) *Bus {
	cfg := Opts{MaxHistory: DefaultMaxHistory}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bus{
		subscriptions: make(map[string][]subscription),
		maxHistory:    cfg.MaxHistory,
		logger:        cfg.Logger,
	}
}

// Subscribe registers handler on eventType (or models.EventWildcard) and returns a function
// that removes exactly that subscription. Subscribing an equal comparable handler twice on the
// same channel returns the existing subscription's unsubscribe function.
func (b *Bus) Subscribe(eventType string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isComparable(handler) {
		for _, sub := range b.subscriptions[eventType] {
			if isComparable(sub.handler) && sub.handler == handler {
				return b.unsubscribeFunc(eventType, sub.id)
			}
		}
	}

	id := b.nextID.Add(1)
	b.subscriptions[eventType] = append(b.subscriptions[eventType], subscription{id: id, handler: handler})
	b.logger.Debug("Bus.Subscribe: handler registered", "event_type", eventType, "subscription_id", id)
	return b.unsubscribeFunc(eventType, id)
}

// SubscribeFunc is a convenience wrapper around Subscribe for plain functions.
func (b *Bus) SubscribeFunc(eventType string, fn func(ctx context.Context, ev models.ViralEvent) error) func() {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

func (b *Bus) unsubscribeFunc(eventType string, id uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscriptions[eventType]
			for i, sub := range subs {
				if sub.id == id {
					b.subscriptions[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subscriptions[eventType]) == 0 {
				delete(b.subscriptions, eventType)
			}
		})
	}
}

// Publish records ev in history and delivers it to every handler subscribed to its type and
// to the wildcard channel. Handlers run concurrently; Publish returns once all of them have
// finished. Handler errors and panics are logged and never fail the publish.
func (b *Bus) Publish(ctx context.Context, ev models.ViralEvent) {
	b.mu.Lock()
	b.history = append(b.history, ev)
	if over := len(b.history) - b.maxHistory; over > 0 {
		b.history = b.history[over:]
	}
	handlers := make([]Handler, 0, len(b.subscriptions[ev.EventType])+len(b.subscriptions[models.EventWildcard]))
	for _, sub := range b.subscriptions[ev.EventType] {
		handlers = append(handlers, sub.handler)
	}
	if ev.EventType != models.EventWildcard {
		for _, sub := range b.subscriptions[models.EventWildcard] {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	var g errgroup.Group
	for _, h := range handlers {
		g.Go(func() error {
			b.safeCall(ctx, h, ev)
			return nil
		})
	}
	_ = g.Wait()
}

// safeCall invokes a handler inside its own failure boundary.
func (b *Bus) safeCall(ctx context.Context, h Handler, ev models.ViralEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Bus.Publish: event handler panicked",
				"event_type", ev.EventType, "event_id", ev.ID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	if err := h.Handle(ctx, ev); err != nil {
		b.logger.Error("Bus.Publish: event handler failed", "event_type", ev.EventType, "event_id", ev.ID, "error", err)
	}
}

// History returns a snapshot of retained events, filtered by eventType ("" for all) and
// truncated to the last limit entries when limit > 0.
func (b *Bus) History(eventType string, limit int) []models.ViralEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.ViralEvent, 0, len(b.history))
	for _, ev := range b.history {
		if eventType == "" || ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ClearHistory empties the history buffer. Subscriptions are unaffected.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// MaxHistory returns the history capacity.
func (b *Bus) MaxHistory() int { return b.maxHistory }

// SubscriberCount returns the number of subscriptions on eventType, or across all channels
// when eventType is empty.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if eventType != "" {
		return len(b.subscriptions[eventType])
	}
	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}

func isComparable(h Handler) bool {
	return h != nil && reflect.TypeOf(h).Comparable()
}
