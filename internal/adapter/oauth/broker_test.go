package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"go.uber.org/zap"
)

// memTokens is an in-memory TokenRepository
type memTokens struct {
	mu     sync.Mutex
	tokens map[string]*domain.LinkedToken
	saves  int
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: make(map[string]*domain.LinkedToken)}
}

func (m *memTokens) GetToken(key string) (*domain.LinkedToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[key]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) SaveToken(t *domain.LinkedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.Key] = &cp
	m.saves++
	return nil
}

func (m *memTokens) DeleteToken(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, key)
	return nil
}

// tokenServer is a token endpoint accepting a single refresh token
type tokenServer struct {
	mu      sync.Mutex
	refresh string
	calls   int
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	raw, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(raw))

	w.Header().Set("Content-Type", "application/json")
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != s.refresh {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_grant"}`)
		return
	}
	io.WriteString(w, `{"access_token":"fresh-access","token_type":"Bearer","refresh_token":"rotated","expires_in":3600}`)
}

func newTestIssuer(srv *httptest.Server) *domain.Issuer {
	return &domain.Issuer{
		Name:      "owncloud",
		WebDAVURL: srv.URL + "/remote.php/webdav/",
		OCSURL:    srv.URL + "/ocs/v1.php",
		AuthURL:   srv.URL + "/index.php/apps/oauth2/authorize",
		TokenURL:  srv.URL + "/index.php/apps/oauth2/api/v1/token",
	}
}

// authHeader sends one request through the client's transport and returns
// the Authorization header that reached the server
func authHeader(t *testing.T, rt http.RoundTripper) string {
	t.Helper()
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	resp, err := (&http.Client{Transport: rt}).Get(srv.URL)
	if err != nil {
		t.Fatalf("request through transport failed: %v", err)
	}
	resp.Body.Close()
	return got
}

func TestBroker_SystemClient_Bootstrap(t *testing.T) {
	ts := &tokenServer{refresh: "bootstrap"}
	srv := httptest.NewServer(ts)
	defer srv.Close()

	tokens := newMemTokens()
	b := NewBroker(Config{
		ClientID:           "moodle",
		ClientSecret:       "secret",
		SystemUsername:     "moodlesystem",
		SystemRefreshToken: "bootstrap",
	}, tokens, zap.NewNop())

	c, err := b.SystemClient(context.Background(), newTestIssuer(srv))
	if err != nil {
		t.Fatalf("SystemClient() error = %v", err)
	}
	if c.Identity().Kind != domain.IdentitySystem {
		t.Errorf("Identity().Kind = %v, want system", c.Identity().Kind)
	}
	if c.Identity().Username != "moodlesystem" {
		t.Errorf("Identity().Username = %q, want moodlesystem", c.Identity().Username)
	}

	saved, _ := tokens.GetToken(domain.SystemTokenKey)
	if saved == nil {
		t.Fatal("system token was not persisted")
	}
	if saved.AccessToken != "fresh-access" || saved.RefreshToken != "rotated" {
		t.Errorf("saved token = %+v", saved)
	}

	if got := authHeader(t, c.Transport()); got != "Bearer fresh-access" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer fresh-access")
	}
}

func TestBroker_SystemClient_NotConfigured(t *testing.T) {
	srv := httptest.NewServer(&tokenServer{})
	defer srv.Close()

	b := NewBroker(Config{ClientID: "moodle"}, newMemTokens(), zap.NewNop())
	_, err := b.SystemClient(context.Background(), newTestIssuer(srv))
	if !errors.Is(err, domain.ErrIdentityNotLinked) {
		t.Errorf("SystemClient() error = %v, want ErrIdentityNotLinked", err)
	}
}

func TestBroker_UserClient(t *testing.T) {
	ts := &tokenServer{refresh: "user-refresh"}
	srv := httptest.NewServer(ts)
	defer srv.Close()

	tests := []struct {
		name      string
		stored    *domain.LinkedToken
		wantErr   error
		wantCalls int
		wantAuth  string
	}{
		{
			name:    "not linked",
			wantErr: domain.ErrIdentityNotLinked,
		},
		{
			name: "valid access token is used as is",
			stored: &domain.LinkedToken{
				Key:          "user:42",
				Username:     "alice",
				AccessToken:  "still-valid",
				RefreshToken: "user-refresh",
				TokenType:    "Bearer",
				Expiry:       time.Now().Add(time.Hour),
			},
			wantCalls: 0,
			wantAuth:  "Bearer still-valid",
		},
		{
			name: "expired access token is refreshed",
			stored: &domain.LinkedToken{
				Key:          "user:42",
				Username:     "alice",
				AccessToken:  "stale",
				RefreshToken: "user-refresh",
				TokenType:    "Bearer",
				Expiry:       time.Now().Add(-time.Hour),
			},
			wantCalls: 1,
			wantAuth:  "Bearer fresh-access",
		},
		{
			name: "revoked refresh token",
			stored: &domain.LinkedToken{
				Key:          "user:42",
				Username:     "alice",
				AccessToken:  "stale",
				RefreshToken: "revoked",
				Expiry:       time.Now().Add(-time.Hour),
			},
			wantErr: domain.ErrTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.mu.Lock()
			ts.calls = 0
			ts.mu.Unlock()

			tokens := newMemTokens()
			if tt.stored != nil {
				tokens.SaveToken(tt.stored)
			}
			b := NewBroker(Config{ClientID: "moodle", ClientSecret: "secret"}, tokens, zap.NewNop())

			c, err := b.UserClient(context.Background(), newTestIssuer(srv), "42")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("UserClient() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("UserClient() error = %v", err)
			}

			id := c.Identity()
			if id.Kind != domain.IdentityUser || id.UserID != "42" || id.Username != "alice" {
				t.Errorf("Identity() = %+v", id)
			}
			if ts.calls != tt.wantCalls {
				t.Errorf("token endpoint calls = %d, want %d", ts.calls, tt.wantCalls)
			}
			if got := authHeader(t, c.Transport()); got != tt.wantAuth {
				t.Errorf("Authorization = %q, want %q", got, tt.wantAuth)
			}
		})
	}
}

func TestBroker_UserClient_EmptyUserID(t *testing.T) {
	b := NewBroker(Config{}, newMemTokens(), zap.NewNop())
	_, err := b.UserClient(context.Background(), &domain.Issuer{TokenURL: "http://localhost/token"}, "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("UserClient() error = %v, want ErrInvalidInput", err)
	}
}

func TestBroker_MissingTokenEndpoint(t *testing.T) {
	tokens := newMemTokens()
	tokens.SaveToken(&domain.LinkedToken{Key: "user:1", AccessToken: "x"})

	b := NewBroker(Config{}, tokens, zap.NewNop())
	_, err := b.UserClient(context.Background(), &domain.Issuer{Name: "broken"}, "1")
	if !errors.Is(err, domain.ErrIssuerEndpoints) {
		t.Errorf("UserClient() error = %v, want ErrIssuerEndpoints", err)
	}
}
