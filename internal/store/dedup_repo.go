package store

import (
	"time"
)

// DedupRecord tracks one trigger idempotency key.
type DedupRecord struct {
	Key         string     `json:"key"`
	UserID      string     `json:"user_id"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo guards trigger submissions against replays by idempotency key.
type DedupRepo interface {
	// IsDuplicate reports whether key was already recorded.
	IsDuplicate(key string) (bool, error)

	// RecordTrigger records key for userID. Returns false if the key was already recorded.
	RecordTrigger(key, userID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for key.
	MarkProcessed(key string) error
}
