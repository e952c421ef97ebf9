package owncloud

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
	"go.uber.org/zap"
)

// Connector builds WebDAV and OCS clients against one issuer's endpoints.
type Connector struct {
	webdavURL string
	ocsURL    string
	timeout   time.Duration
	logger    *zap.Logger
}

// Ensure Connector implements port.Connector
var _ port.Connector = (*Connector)(nil)

// NewConnector creates a connector for the issuer. timeout bounds every
// single remote call; zero means 30 seconds.
func NewConnector(issuer *domain.Issuer, timeout time.Duration, logger *zap.Logger) *Connector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		webdavURL: strings.TrimSuffix(issuer.WebDAVURL, "/") + "/",
		ocsURL:    strings.TrimSuffix(issuer.OCSURL, "/"),
		timeout:   timeout,
		logger:    logger,
	}
}

// Store returns a WebDAV client acting as c
func (cn *Connector) Store(c port.AuthenticatedClient) port.RemoteStore {
	return &WebDAVStore{
		root:      cn.webdavURL,
		transport: transportOf(c),
		timeout:   cn.timeout,
		logger:    cn.logger.With(zap.String("identity", c.Identity().Kind.String())),
	}
}

// Shares returns an OCS client acting as c
func (cn *Connector) Shares(c port.AuthenticatedClient) port.ShareClient {
	return &ShareClient{
		baseURL: cn.ocsURL,
		httpClient: &http.Client{
			Transport: transportOf(c),
			Timeout:   cn.timeout,
		},
		logger: cn.logger.With(zap.String("identity", c.Identity().Kind.String())),
	}
}

func transportOf(c port.AuthenticatedClient) http.RoundTripper {
	if t := c.Transport(); t != nil {
		return t
	}
	return http.DefaultTransport
}

// contextTransport binds every request it carries to ctx, so that libraries
// without context support still honor cancellation.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(r.WithContext(t.ctx))
}
