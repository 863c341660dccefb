package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements DedupRepo.
var _ DedupRepo = (*PostgresStore)(nil)

func (s *PostgresStore) IsDuplicate(key string) (bool, error) {
	var found string
	err := s.db.QueryRow(`SELECT idempotency_key FROM trigger_dedup WHERE idempotency_key = $1`, key).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) RecordTrigger(key, userID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO trigger_dedup (idempotency_key, user_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (idempotency_key) DO NOTHING`,
		key, userID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record trigger failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) MarkProcessed(key string) error {
	_, err := s.db.Exec(`UPDATE trigger_dedup SET processed_at = $1 WHERE idempotency_key = $2`, time.Now(), key)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
