package port

import (
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/repository"
)

// LinkRepository is an alias to domain repository interface
type LinkRepository = repository.LinkRepository

// TokenRepository is an alias to domain repository interface
type TokenRepository = repository.TokenRepository

// Store is an alias to domain repository interface
type Store = repository.Store
