package store

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/LoopPipe/internal/models"
)

// Compile-time check that SQLiteStore implements EventRepo.
var _ EventRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) AppendEvent(ev models.ViralEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload failed: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO viral_events (id, event_type, timestamp, payload_json) VALUES (?, ?, ?, ?)`,
		ev.ID, ev.EventType, ev.Timestamp, string(payload),
	)
	if err != nil {
		return fmt.Errorf("append event %s failed: %w", ev.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(eventType string, limit int) ([]models.ViralEvent, error) {
	query := `SELECT id, event_type, timestamp, payload_json FROM viral_events`
	var args []any
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events failed: %w", err)
	}
	defer rows.Close()

	var out []models.ViralEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events iteration failed: %w", err)
	}
	reverseEvents(out)
	return out, nil
}
