package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/models"
)

// Compile-time check that PostgresStore implements LinkRepo.
var _ LinkRepo = (*PostgresStore)(nil)

func (s *PostgresStore) SaveLink(link models.SmartLink) error {
	contextJSON, err := encodeLinkContext(link.Context)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO smart_links (`+linkColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11)`,
		link.ShortCode, link.FullURL, link.UserID, link.LoopID, link.Persona, link.FVMType,
		link.UTM.Source, link.UTM.Medium, link.UTM.Campaign, nilIfEmpty(contextJSON), link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save link %s failed: %w", link.ShortCode, err)
	}
	slog.Debug("PostgresStore.SaveLink", "shortCode", link.ShortCode, "userID", link.UserID, "loopID", link.LoopID)
	return nil
}

func (s *PostgresStore) GetLink(shortCode string) (models.SmartLink, error) {
	link, _, err := scanLink(s.db.QueryRow(`SELECT `+linkColumns+` FROM smart_links WHERE short_code = $1`, shortCode))
	if errors.Is(err, sql.ErrNoRows) {
		return models.SmartLink{}, fmt.Errorf("%w: %s", models.ErrLinkNotFound, shortCode)
	}
	if err != nil {
		return models.SmartLink{}, fmt.Errorf("get link %s failed: %w", shortCode, err)
	}
	return link, nil
}

func (s *PostgresStore) RecordClick(shortCode string, at time.Time) (int, error) {
	var clicks int
	err := s.db.QueryRow(
		`UPDATE smart_links SET clicks = clicks + 1, last_click_at = $1 WHERE short_code = $2 RETURNING clicks`,
		at, shortCode,
	).Scan(&clicks)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", models.ErrLinkNotFound, shortCode)
	}
	if err != nil {
		return 0, fmt.Errorf("record click for %s failed: %w", shortCode, err)
	}
	return clicks, nil
}

func (s *PostgresStore) ListLinksByUser(userID string) ([]models.SmartLink, error) {
	rows, err := s.db.Query(`SELECT `+linkColumns+` FROM smart_links WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list links for %s failed: %w", userID, err)
	}
	defer rows.Close()

	var links []models.SmartLink
	for rows.Next() {
		link, _, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link failed: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list links iteration failed: %w", err)
	}
	return links, nil
}
