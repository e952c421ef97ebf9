package domain

import (
	"encoding/json"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
)

// CollectionStatus is the outcome of a create-collection call.
type CollectionStatus int

const (
	// CollectionCreated means the remote created the collection.
	CollectionCreated CollectionStatus = iota
	// CollectionExists means the collection was already there, typically
	// because a concurrent request created it first.
	CollectionExists
	// CollectionRefused covers every other answer (permissions, quota, ...).
	CollectionRefused
)

// String returns the status name
func (s CollectionStatus) String() string {
	switch s {
	case CollectionCreated:
		return "created"
	case CollectionExists:
		return "exists"
	default:
		return "refused"
	}
}

// Ok reports whether the collection exists after the call.
func (s CollectionStatus) Ok() bool {
	return s == CollectionCreated || s == CollectionExists
}

// FolderEnsureResult is produced once per ensure call.
// FullPath is always the requested target, even when Success is false.
type FolderEnsureResult struct {
	Success  bool
	FullPath vo.RemotePath
}

// MarshalJSON encodes the caller facing {success, fullpath} field set.
func (r FolderEnsureResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Success  bool   `json:"success"`
		FullPath string `json:"fullpath"`
	}{r.Success, r.FullPath.String()})
}
