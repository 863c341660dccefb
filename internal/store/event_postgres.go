package store

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/LoopPipe/internal/models"
)

// Compile-time check that PostgresStore implements EventRepo.
var _ EventRepo = (*PostgresStore)(nil)

func (s *PostgresStore) AppendEvent(ev models.ViralEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload failed: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO viral_events (id, event_type, timestamp, payload_json) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.EventType, ev.Timestamp, string(payload),
	)
	if err != nil {
		return fmt.Errorf("append event %s failed: %w", ev.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(eventType string, limit int) ([]models.ViralEvent, error) {
	query := `SELECT id, event_type, timestamp, payload_json FROM viral_events`
	var args []any
	if eventType != "" {
		args = append(args, eventType)
		query += fmt.Sprintf(` WHERE event_type = $%d`, len(args))
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
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
