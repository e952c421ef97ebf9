package vo

import (
	"errors"
	"path"
	"strings"
)

// RemotePath is an absolute path on the remote store, relative to the
// WebDAV root of the account that owns it. It is always cleaned and always
// starts with a slash; the root is "/".
type RemotePath struct {
	value string
}

var (
	ErrEmptySegment   = errors.New("path segment cannot be empty")
	ErrInvalidSegment = errors.New("path segment cannot contain a slash or be a dot name")
)

// RootPath returns the account root.
func RootPath() RemotePath {
	return RemotePath{value: "/"}
}

// NewRemotePath normalizes p into a RemotePath. An empty string is the root.
func NewRemotePath(p string) RemotePath {
	if p == "" {
		return RootPath()
	}
	return RemotePath{value: path.Clean("/" + p)}
}

// String returns the slash separated representation of the path.
func (rp RemotePath) String() string {
	if rp.value == "" {
		return "/"
	}
	return rp.value
}

// IsRoot returns true for "/".
func (rp RemotePath) IsRoot() bool {
	return rp.String() == "/"
}

// Base returns the last segment, or "" for the root.
func (rp RemotePath) Base() string {
	if rp.IsRoot() {
		return ""
	}
	return path.Base(rp.value)
}

// Parent returns the enclosing collection. The parent of the root is the root.
func (rp RemotePath) Parent() RemotePath {
	if rp.IsRoot() {
		return rp
	}
	return RemotePath{value: path.Dir(rp.value)}
}

// Segments returns the path split into its segments, root excluded.
func (rp RemotePath) Segments() []string {
	if rp.IsRoot() {
		return nil
	}
	return strings.Split(strings.TrimPrefix(rp.value, "/"), "/")
}

// Depth is the number of segments below the root.
func (rp RemotePath) Depth() int {
	return len(rp.Segments())
}

// Append returns a new path with the given segments appended in order.
// Each segment must be a single, non-empty path element.
func (rp RemotePath) Append(segments ...string) (RemotePath, error) {
	joined := rp.String()
	for _, s := range segments {
		if err := ValidateSegment(s); err != nil {
			return RemotePath{}, err
		}
		joined = path.Join(joined, s)
	}
	return RemotePath{value: joined}, nil
}

// Join appends a relative path which may span several segments.
func (rp RemotePath) Join(rel string) RemotePath {
	return RemotePath{value: path.Join(rp.String(), "/"+rel)}
}

// Ancestors returns every path from the shallowest non-root ancestor down to
// and including rp itself. The root is never part of the result.
func (rp RemotePath) Ancestors() []RemotePath {
	segs := rp.Segments()
	out := make([]RemotePath, 0, len(segs))
	cur := ""
	for _, s := range segs {
		cur += "/" + s
		out = append(out, RemotePath{value: cur})
	}
	return out
}

// HasPrefix reports whether other is rp or one of its ancestors.
func (rp RemotePath) HasPrefix(other RemotePath) bool {
	if other.IsRoot() {
		return true
	}
	return rp.String() == other.String() || strings.HasPrefix(rp.String(), other.String()+"/")
}

// Equals checks if two paths are equal.
func (rp RemotePath) Equals(other RemotePath) bool {
	return rp.String() == other.String()
}

// ValidateSegment checks that s can be used as exactly one path element.
func ValidateSegment(s string) error {
	if s == "" {
		return ErrEmptySegment
	}
	if strings.Contains(s, "/") || s == "." || s == ".." {
		return ErrInvalidSegment
	}
	return nil
}

// SanitizeSegment turns an arbitrary display name into a usable segment by
// replacing slashes and trimming whitespace. Returns "" if nothing remains.
func SanitizeSegment(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "/", "_"))
	if s == "." || s == ".." {
		return ""
	}
	return s
}
