package domain

import (
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
)

// ShareType is the OCS share type enum.
type ShareType int

const (
	ShareTypeUser       ShareType = 0
	ShareTypeGroup      ShareType = 1
	ShareTypePublicLink ShareType = 3
	ShareTypeFederated  ShareType = 6
)

// String returns the share type name
func (t ShareType) String() string {
	switch t {
	case ShareTypeUser:
		return "user"
	case ShareTypeGroup:
		return "group"
	case ShareTypePublicLink:
		return "public"
	case ShareTypeFederated:
		return "federated"
	default:
		return "unknown"
	}
}

// StatusCreated is the OCS status code reported for a successful share call.
const StatusCreated = 100

// ShareRequest is the input of a share creation call. Build it with
// NewShareRequest and do not modify it afterwards.
type ShareRequest struct {
	Path         vo.RemotePath
	ShareType    ShareType
	PublicUpload bool
	Expiration   time.Time
	ShareWith    string
}

// NewShareRequest builds a user share for path that expires after duration.
func NewShareRequest(path vo.RemotePath, shareWith string, now time.Time, duration time.Duration) ShareRequest {
	return ShareRequest{
		Path:         path,
		ShareType:    ShareTypeUser,
		PublicUpload: false,
		Expiration:   now.Add(duration),
		ShareWith:    shareWith,
	}
}

// ShareResult is the parsed response of a share creation call.
// StatusCode is the OCS status, not an HTTP status.
type ShareResult struct {
	StatusCode int    `json:"statuscode"`
	ShareID    string `json:"shareid"`
	FileID     string `json:"fileid"`
	FileTarget string `json:"filetarget"`
}

// Created returns true if the remote reports the share as created.
func (r *ShareResult) Created() bool {
	return r != nil && r.StatusCode == StatusCreated
}
