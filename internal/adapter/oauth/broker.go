package oauth

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Config holds the OAuth2 client credentials and the system account
type Config struct {
	ClientID      string
	ClientSecret  string
	Scopes        []string
	SkipTLSVerify bool

	// SystemUsername is the remote account the system token belongs to
	SystemUsername string

	// SystemRefreshToken bootstraps the system token if none is stored yet
	SystemRefreshToken string

	// Timeout bounds token endpoint calls
	Timeout time.Duration
}

// Broker implements port.IdentityBroker with refresh tokens kept in a
// TokenRepository. Refreshed tokens are written back to the repository.
type Broker struct {
	cfg    Config
	tokens port.TokenRepository
	base   http.RoundTripper
	logger *zap.Logger

	// serializes refresh-and-save per key so that rotated refresh tokens
	// are not lost between concurrent attempts
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Ensure Broker implements port.IdentityBroker
var _ port.IdentityBroker = (*Broker)(nil)

// NewBroker creates a new identity broker
func NewBroker(cfg Config, tokens port.TokenRepository, logger *zap.Logger) *Broker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := http.DefaultTransport
	if cfg.SkipTLSVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		base = t
	}

	return &Broker{
		cfg:    cfg,
		tokens: tokens,
		base:   base,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// SystemClient returns a client acting as the shared system account.
// Without a stored token the configured refresh token is exchanged once
// and the result is persisted under domain.SystemTokenKey.
func (b *Broker) SystemClient(ctx context.Context, issuer *domain.Issuer) (port.AuthenticatedClient, error) {
	identity := domain.Identity{Kind: domain.IdentitySystem, Username: b.cfg.SystemUsername}

	stored, err := b.tokens.GetToken(domain.SystemTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load system token: %w", err)
	}
	if stored == nil {
		if b.cfg.SystemRefreshToken == "" {
			return nil, fmt.Errorf("system account: %w", domain.ErrIdentityNotLinked)
		}
		stored = &domain.LinkedToken{
			Key:          domain.SystemTokenKey,
			Username:     b.cfg.SystemUsername,
			RefreshToken: b.cfg.SystemRefreshToken,
		}
	}
	if stored.Username != "" {
		identity.Username = stored.Username
	}

	return b.client(ctx, issuer, identity, stored)
}

// UserClient returns a client acting as userID. The user must have linked
// their account beforehand.
func (b *Broker) UserClient(ctx context.Context, issuer *domain.Issuer, userID string) (port.AuthenticatedClient, error) {
	if userID == "" {
		return nil, fmt.Errorf("empty user id: %w", domain.ErrInvalidInput)
	}
	identity := domain.Identity{Kind: domain.IdentityUser, UserID: userID}

	stored, err := b.tokens.GetToken(identity.TokenKey())
	if err != nil {
		return nil, fmt.Errorf("failed to load token for user %s: %w", userID, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrIdentityNotLinked)
	}
	identity.Username = stored.Username

	return b.client(ctx, issuer, identity, stored)
}

// client builds the token source for a stored token and makes sure it can
// produce a valid access token right now.
func (b *Broker) client(ctx context.Context, issuer *domain.Issuer, identity domain.Identity, stored *domain.LinkedToken) (*Client, error) {
	if issuer == nil || issuer.TokenURL == "" {
		return nil, fmt.Errorf("%w: no token endpoint", domain.ErrIssuerEndpoints)
	}

	conf := b.oauthConfig(issuer)
	lock := b.lockFor(stored.Key)

	// The token source keeps the context for later refreshes, so it gets a
	// context carrying only our HTTP client, not the caller's deadline.
	srcCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{
		Transport: b.base,
		Timeout:   b.cfg.Timeout,
	})

	src := &persistingSource{
		key:      stored.Key,
		username: stored.Username,
		src:      conf.TokenSource(srcCtx, toOAuth2(stored)),
		last:     stored.AccessToken,
		tokens:   b.tokens,
		lock:     lock,
		logger:   b.logger,
	}
	reuse := oauth2.ReuseTokenSource(nil, src)

	if err := tokenWithContext(ctx, reuse); err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%s: token endpoint rejected refresh (%s): %w", identity.TokenKey(), re.ErrorCode, domain.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w", identity.TokenKey(), err)
	}

	b.logger.Debug("authenticated client ready",
		zap.String("identity", identity.Kind.String()),
		zap.String("user_id", identity.UserID),
		zap.String("issuer", issuer.Name))

	return &Client{
		identity: identity,
		transport: &oauth2.Transport{
			Source: reuse,
			Base:   b.base,
		},
	}, nil
}

func (b *Broker) oauthConfig(issuer *domain.Issuer) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		Scopes:       b.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  issuer.AuthURL,
			TokenURL: issuer.TokenURL,
		},
	}
}

func (b *Broker) lockFor(key string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[key]
	if !ok {
		l = &sync.Mutex{}
		b.locks[key] = l
	}
	return l
}

// tokenWithContext runs src.Token() but gives up when ctx is done.
func tokenWithContext(ctx context.Context, src oauth2.TokenSource) error {
	done := make(chan error, 1)
	go func() {
		_, err := src.Token()
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client implements port.AuthenticatedClient
type Client struct {
	identity  domain.Identity
	transport http.RoundTripper
}

// Identity returns who the client acts as
func (c *Client) Identity() domain.Identity { return c.identity }

// Transport returns the bearer-injecting round tripper
func (c *Client) Transport() http.RoundTripper { return c.transport }

// persistingSource writes every newly issued token back to the repository
type persistingSource struct {
	key      string
	username string
	src      oauth2.TokenSource
	last     string
	tokens   port.TokenRepository
	lock     *sync.Mutex
	logger   *zap.Logger
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken

	if err := s.tokens.SaveToken(fromOAuth2(s.key, s.username, tok)); err != nil {
		// The fresh token is still usable for this attempt
		s.logger.Warn("failed to persist refreshed token",
			zap.String("key", s.key),
			zap.Error(err))
	}
	return tok, nil
}

func toOAuth2(t *domain.LinkedToken) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

func fromOAuth2(key, username string, t *oauth2.Token) *domain.LinkedToken {
	return &domain.LinkedToken{
		Key:          key,
		Username:     username,
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
		UpdatedAt:    time.Now(),
	}
}
