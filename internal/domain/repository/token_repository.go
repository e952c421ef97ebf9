package repository

import (
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
)

// TokenRepository defines the interface for linked OAuth2 token persistence
type TokenRepository interface {
	// GetToken retrieves a token by key, or nil if none is linked
	GetToken(key string) (*domain.LinkedToken, error)

	// SaveToken inserts or replaces the token stored under token.Key
	SaveToken(token *domain.LinkedToken) error

	// DeleteToken unlinks the token stored under key
	DeleteToken(key string) error
}
