package store

import (
	"time"

	"github.com/BTreeMap/LoopPipe/internal/models"
)

// LinkRepo persists smart links and their click counts.
type LinkRepo interface {
	// SaveLink inserts a link. Saving an existing short code returns an error.
	SaveLink(link models.SmartLink) error
	// GetLink returns the link for shortCode or models.ErrLinkNotFound.
	GetLink(shortCode string) (models.SmartLink, error)
	// RecordClick increments the click counter and returns the new count, or
	// models.ErrLinkNotFound.
	RecordClick(shortCode string, at time.Time) (int, error)
	// ListLinksByUser returns a user's links, newest first.
	ListLinksByUser(userID string) ([]models.SmartLink, error)
}
