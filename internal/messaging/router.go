package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LoopPipe/internal/store"
)

// Router picks the Service for a delivery channel, falling back to a default service.
type Router struct {
	mu       sync.RWMutex
	services map[string]Service
	fallback Service
}

// NewRouter creates a router whose unmatched channels go to fallback. A nil fallback makes
// unmatched channels an error.
func NewRouter(fallback Service) *Router {
	return &Router{services: make(map[string]Service), fallback: fallback}
}

// Register routes channel to svc.
func (r *Router) Register(channel string, svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[channel] = svc
	slog.Debug("Router.Register: channel routed", "channel", channel, "service", svc.Name())
}

// ServiceFor returns the service handling channel.
func (r *Router) ServiceFor(channel string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if svc, ok := r.services[channel]; ok {
		return svc, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoService, channel)
}

func (r *Router) distinct() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[Service]bool)
	var out []Service
	for _, svc := range append([]Service{r.fallback}, mapValues(r.services)...) {
		if svc == nil || seen[svc] {
			continue
		}
		seen[svc] = true
		out = append(out, svc)
	}
	return out
}

func mapValues(m map[string]Service) []Service {
	out := make([]Service, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// Start starts every routed service.
func (r *Router) Start(ctx context.Context) error {
	for _, svc := range r.distinct() {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// Stop stops every routed service and joins their errors.
func (r *Router) Stop() error {
	var errs []error
	for _, svc := range r.distinct() {
		if err := svc.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", svc.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// OutboxPayload is the JSON stored with each outbox message.
type OutboxPayload struct {
	Body      string `json:"body"`
	ShortCode string `json:"shortCode"`
	LoopID    string `json:"loopId"`
	UserID    string `json:"userId"`
}

// SendFunc adapts the router to the outbox sender.
func (r *Router) SendFunc() store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		var payload OutboxPayload
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("failed to decode outbox payload %s: %w", msg.ID, err)
		}
		svc, err := r.ServiceFor(msg.Channel)
		if err != nil {
			return err
		}
		return svc.SendMessage(ctx, msg.Recipient, payload.Body)
	}
}
