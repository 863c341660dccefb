package store

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/util"
)

// DefaultMemoryEventLimit bounds the in-memory event log.
const DefaultMemoryEventLimit = 10000

type memoryLink struct {
	link   models.SmartLink
	clicks int
}

// InMemoryStore keeps every repository in process memory. State is lost on restart.
type InMemoryStore struct {
	mu        sync.RWMutex
	links     map[string]*memoryLink
	events    []models.ViralEvent
	eventIDs  map[string]struct{}
	maxEvents int
	outbox    map[string]*OutboxMessage
	order     []string
	dedup     map[string]*DedupRecord
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		links:     make(map[string]*memoryLink),
		eventIDs:  make(map[string]struct{}),
		maxEvents: DefaultMemoryEventLimit,
		outbox:    make(map[string]*OutboxMessage),
		dedup:     make(map[string]*DedupRecord),
	}
}

func (s *InMemoryStore) SaveLink(link models.SmartLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.ShortCode]; exists {
		return fmt.Errorf("save link %s failed: short code already exists", link.ShortCode)
	}
	l := link
	l.Context = link.Context.Clone()
	s.links[link.ShortCode] = &memoryLink{link: l}
	return nil
}

func (s *InMemoryStore) GetLink(shortCode string) (models.SmartLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ml, ok := s.links[shortCode]
	if !ok {
		return models.SmartLink{}, fmt.Errorf("%w: %s", models.ErrLinkNotFound, shortCode)
	}
	out := ml.link
	out.Context = ml.link.Context.Clone()
	return out, nil
}

func (s *InMemoryStore) RecordClick(shortCode string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ml, ok := s.links[shortCode]
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrLinkNotFound, shortCode)
	}
	ml.clicks++
	return ml.clicks, nil
}

func (s *InMemoryStore) ListLinksByUser(userID string) ([]models.SmartLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SmartLink
	for _, ml := range s.links {
		if ml.link.UserID == userID {
			out = append(out, ml.link)
		}
	}
	slices.SortFunc(out, func(a, b models.SmartLink) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) AppendEvent(ev models.ViralEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.eventIDs[ev.ID]; seen {
		return nil
	}
	s.events = append(s.events, ev)
	s.eventIDs[ev.ID] = struct{}{}
	if over := len(s.events) - s.maxEvents; over > 0 {
		for _, old := range s.events[:over] {
			delete(s.eventIDs, old.ID)
		}
		s.events = s.events[over:]
	}
	return nil
}

func (s *InMemoryStore) ListEvents(eventType string, limit int) ([]models.ViralEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ViralEvent
	for _, ev := range s.events {
		if eventType == "" || ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(recipient, channel, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, id := range s.order {
			m := s.outbox[id]
			if m.DedupeKey == dedupeKey && !isTerminal(m.Status) {
				return m.ID, nil
			}
		}
	}
	now := time.Now()
	m := &OutboxMessage{
		ID:          util.GenerateOutboxID(),
		Recipient:   recipient,
		Channel:     channel,
		PayloadJSON: payloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.outbox[m.ID] = m
	s.order = append(s.order, m.ID)
	return m.ID, nil
}

func (s *InMemoryStore) GetOutboxMessage(id string) (*OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.outbox[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxMessage
	for _, id := range s.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		m := s.outbox[id]
		if m.Status != OutboxStatusQueued || (m.NextAttemptAt != nil && m.NextAttemptAt.After(now)) {
			continue
		}
		lockedAt := now
		m.Status = OutboxStatusSending
		m.LockedAt = &lockedAt
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusSent
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		next := nextAttemptAt
		m.Status = OutboxStatusQueued
		m.Attempts++
		m.LastError = errMsg
		m.NextAttemptAt = &next
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) AbandonOutboxMessage(id string, errMsg string) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusFailed
		m.Attempts++
		m.LastError = errMsg
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			m.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) updateOutbox(id string, fn func(*OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return fmt.Errorf("outbox message %s not found", id)
	}
	fn(m)
	m.UpdatedAt = time.Now()
	return nil
}

func isTerminal(status OutboxStatus) bool {
	return status == OutboxStatusSent || status == OutboxStatusCanceled || status == OutboxStatusFailed
}

func (s *InMemoryStore) IsDuplicate(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedup[key]
	return ok, nil
}

func (s *InMemoryStore) RecordTrigger(key, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[key]; ok {
		return false, nil
	}
	s.dedup[key] = &DedupRecord{Key: key, UserID: userID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[key]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
