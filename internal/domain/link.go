package domain

import (
	"strconv"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
)

// ItemContext identifies where in the calling application the link is used.
// ContextNames is the display name chain of the enclosing contexts, outermost
// first (e.g. category, course).
type ItemContext struct {
	Component    string   `json:"component" validate:"required"`
	FileArea     string   `json:"file_area" validate:"required"`
	ItemID       int64    `json:"item_id" validate:"gte=0"`
	ContextNames []string `json:"names"`
}

// Segments returns the deterministic folder subpath for this context:
// the context names, then component, file area and item id.
// Names that sanitize to nothing are skipped.
func (c ItemContext) Segments() []string {
	segs := make([]string, 0, len(c.ContextNames)+3)
	for _, n := range c.ContextNames {
		if s := vo.SanitizeSegment(n); s != "" {
			segs = append(segs, s)
		}
	}
	return append(segs,
		vo.SanitizeSegment(c.Component),
		vo.SanitizeSegment(c.FileArea),
		strconv.FormatInt(c.ItemID, 10),
	)
}

// TransferMode controls how the referenced file gets into the link folder.
type TransferMode string

const (
	TransferNone TransferMode = "none"
	TransferCopy TransferMode = "copy"
	TransferMove TransferMode = "move"
)

// Valid reports whether m is a known mode.
func (m TransferMode) Valid() bool {
	switch m {
	case TransferNone, TransferCopy, TransferMove:
		return true
	}
	return false
}

// ControlledLink is a successfully provisioned access-controlled link.
type ControlledLink struct {
	ID         int64
	UserID     string
	Reference  string
	FolderPath vo.RemotePath
	ShareID    string
	FileID     string
	FileTarget string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// IsExpired returns true once the share's expiration has passed.
func (l *ControlledLink) IsExpired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// LinkOutcome is the success result of one provisioning attempt.
type LinkOutcome struct {
	Share      ShareResult
	FolderPath vo.RemotePath
	SharedPath vo.RemotePath
	ExpiresAt  time.Time
}

// Link converts the outcome into a record for persistence.
func (o *LinkOutcome) Link(userID, reference string, now time.Time) *ControlledLink {
	return &ControlledLink{
		UserID:     userID,
		Reference:  reference,
		FolderPath: o.FolderPath,
		ShareID:    o.Share.ShareID,
		FileID:     o.Share.FileID,
		FileTarget: o.Share.FileTarget,
		ExpiresAt:  o.ExpiresAt,
		CreatedAt:  now,
	}
}
