package agent

import (
	"sync"
	"time"
)

// SignalLedger records the abuse signals the trust-and-safety agent reasons over.
type SignalLedger interface {
	// ObserveDevice records that userID used deviceID and returns the number of distinct users
	// seen on that device, including userID.
	ObserveDevice(deviceID, userID string) int
	// RecordInvite records an invite issued by userID at the given time.
	RecordInvite(userID string, at time.Time)
	// InvitesSince counts invites issued by userID at or after since.
	InvitesSince(userID string, since time.Time) int
}

// MemoryLedger is an in-process SignalLedger. Invite timestamps older than the retention
// window are pruned on write.
type MemoryLedger struct {
	mu        sync.Mutex
	devices   map[string]map[string]struct{}
	invites   map[string][]time.Time
	retention time.Duration
}

var _ SignalLedger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger keeping invite history for retention.
func NewMemoryLedger(retention time.Duration) *MemoryLedger {
	if retention <= 0 {
		retention = DefaultRateWindow
	}
	return &MemoryLedger{
		devices:   make(map[string]map[string]struct{}),
		invites:   make(map[string][]time.Time),
		retention: retention,
	}
}

func (l *MemoryLedger) ObserveDevice(deviceID, userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	users, ok := l.devices[deviceID]
	if !ok {
		users = make(map[string]struct{})
		l.devices[deviceID] = users
	}
	users[userID] = struct{}{}
	return len(users)
}

func (l *MemoryLedger) RecordInvite(userID string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := at.Add(-l.retention)
	kept := l.invites[userID][:0]
	for _, ts := range l.invites[userID] {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.invites[userID] = append(kept, at)
}

func (l *MemoryLedger) InvitesSince(userID string, since time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ts := range l.invites[userID] {
		if !ts.Before(since) {
			n++
		}
	}
	return n
}
