package port

import (
	"context"
	"net/http"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
)

// AuthenticatedClient is a bearer-authenticated handle bound to exactly one
// identity. It lives for one provisioning attempt.
type AuthenticatedClient interface {
	// Identity returns who the client acts as
	Identity() domain.Identity

	// Transport returns the round tripper that authenticates requests
	Transport() http.RoundTripper
}

// IdentityBroker hands out authenticated clients for the two identities
// involved in provisioning. Each call is independent and uncached.
type IdentityBroker interface {
	// SystemClient returns a client acting as the shared system account
	SystemClient(ctx context.Context, issuer *domain.Issuer) (AuthenticatedClient, error)

	// UserClient returns a client acting as the given local user
	UserClient(ctx context.Context, issuer *domain.Issuer, userID string) (AuthenticatedClient, error)
}

// RemoteStore is the WebDAV view of one account's files.
// Paths are relative to the account's WebDAV root.
type RemoteStore interface {
	// IsDir returns true if path exists and is a collection.
	// A missing path is (false, nil); only transport failures are errors.
	IsDir(ctx context.Context, path vo.RemotePath) (bool, error)

	// MakeCollection issues a create-collection call for path
	MakeCollection(ctx context.Context, path vo.RemotePath) (domain.CollectionStatus, error)

	// Copy copies src to dst without overwriting
	Copy(ctx context.Context, src, dst vo.RemotePath) error

	// Move moves src to dst without overwriting
	Move(ctx context.Context, src, dst vo.RemotePath) error
}

// ShareClient talks to the OCS sharing API of one account.
type ShareClient interface {
	// CreateShare issues the share call and parses the response envelope.
	// A non-100 status is not an error; callers must check the result.
	CreateShare(ctx context.Context, req domain.ShareRequest) (*domain.ShareResult, error)

	// DeleteShare removes a share by ID
	DeleteShare(ctx context.Context, shareID string) error
}

// Connector builds protocol clients bound to an authenticated client.
type Connector interface {
	// Store returns a WebDAV client acting as c
	Store(c AuthenticatedClient) RemoteStore

	// Shares returns an OCS client acting as c
	Shares(c AuthenticatedClient) ShareClient
}
