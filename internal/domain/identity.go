package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// IdentityKind tells the shared system account apart from end users.
type IdentityKind int

const (
	IdentitySystem IdentityKind = iota
	IdentityUser
)

// String returns the identity kind name
func (k IdentityKind) String() string {
	if k == IdentitySystem {
		return "system"
	}
	return "user"
}

// SystemTokenKey is the reserved token store key of the system account.
const SystemTokenKey = "system"

// Identity is who an authenticated client acts as.
type Identity struct {
	Kind     IdentityKind
	UserID   string // local user id, empty for the system account
	Username string // account name on the remote store
}

// TokenKey returns the key under which the identity's token is stored.
func (i Identity) TokenKey() string {
	if i.Kind == IdentitySystem {
		return SystemTokenKey
	}
	return "user:" + i.UserID
}

// LinkedToken is an OAuth2 token handed to us by the external
// authorization flow, together with the remote account it belongs to.
type LinkedToken struct {
	Key          string
	Username     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	UpdatedAt    time.Time
}

// Issuer describes the OAuth2 issuer and the endpoints the repository needs.
type Issuer struct {
	Name      string
	BaseURL   string
	WebDAVURL string
	OCSURL    string
	AuthURL   string
	TokenURL  string
}

// Validate checks that the issuer exposes every endpoint the provisioner
// uses. The returned error wraps ErrIssuerEndpoints.
func (i *Issuer) Validate() error {
	if i == nil {
		return fmt.Errorf("%w: no issuer selected", ErrIssuerEndpoints)
	}
	endpoints := []struct {
		name, value string
	}{
		{"webdav", i.WebDAVURL},
		{"ocs", i.OCSURL},
		{"token", i.TokenURL},
	}

	var missing []string
	for _, ep := range endpoints {
		if ep.value == "" {
			missing = append(missing, ep.name)
			continue
		}
		u, err := url.Parse(ep.value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			missing = append(missing, ep.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: issuer %q lacks %s", ErrIssuerEndpoints, i.Name, strings.Join(missing, ", "))
	}
	return nil
}
