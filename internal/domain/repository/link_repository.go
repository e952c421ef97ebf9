package repository

import (
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
)

// LinkRepository defines the interface for provisioned link persistence
type LinkRepository interface {
	// SaveLink stores a new link record and sets its ID
	SaveLink(link *domain.ControlledLink) error

	// GetLink retrieves a link by ID, or nil if it does not exist
	GetLink(id int64) (*domain.ControlledLink, error)

	// ListActiveLinks returns the user's links that expire after now, newest first
	ListActiveLinks(userID string, now time.Time) ([]*domain.ControlledLink, error)

	// DeleteExpiredLinks removes links that expired before the cutoff
	DeleteExpiredLinks(before time.Time) (int, error)
}
