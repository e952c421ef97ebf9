package owncloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
	"go.uber.org/zap"
)

// WebDAVStore implements port.RemoteStore on top of gowebdav.
// Every call gets its own gowebdav client bound to the caller's context.
type WebDAVStore struct {
	root      string
	transport http.RoundTripper
	timeout   time.Duration
	logger    *zap.Logger
}

func (s *WebDAVStore) client(ctx context.Context) *gowebdav.Client {
	// The transport already carries the bearer token. gowebdav's default
	// authorizer would answer every response with a retry.
	c := gowebdav.NewAuthClient(s.root, gowebdav.NewPreemptiveAuth(bearerAuth{}))
	c.SetTransport(contextTransport{ctx: ctx, base: s.transport})
	c.SetTimeout(s.timeout)
	return c
}

// bearerAuth is a gowebdav authenticator that leaves requests untouched
// and accepts every response
type bearerAuth struct{}

func (bearerAuth) Authorize(*http.Client, *http.Request, string) error { return nil }

func (bearerAuth) Verify(*http.Client, *http.Response, string) (bool, error) { return false, nil }

func (a bearerAuth) Clone() gowebdav.Authenticator { return a }

func (bearerAuth) Close() error { return nil }

// IsDir returns true if path exists and is a collection
func (s *WebDAVStore) IsDir(ctx context.Context, path vo.RemotePath) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &RequestError{Op: "PROPFIND " + path.String(), Err: err}
	}

	info, err := s.client(ctx).Stat(path.String())
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return false, nil
		}
		return false, requestErrorFrom("PROPFIND "+path.String(), err)
	}

	isDir := info != nil && info.IsDir()
	s.logger.Debug("webdav stat",
		zap.String("path", path.String()),
		zap.Bool("is_dir", isDir))
	return isDir, nil
}

// MakeCollection issues MKCOL for path. gowebdav's Mkdir reports 405 as
// success, so the request is sent directly to keep "exists" apart from
// "created".
func (s *WebDAVStore) MakeCollection(ctx context.Context, path vo.RemotePath) (domain.CollectionStatus, error) {
	op := "MKCOL " + path.String()
	if err := ctx.Err(); err != nil {
		return domain.CollectionRefused, &RequestError{Op: op, Err: err}
	}

	u := strings.TrimSuffix(s.root, "/") + gowebdav.PathEscape(path.String()) + "/"
	req, err := http.NewRequestWithContext(ctx, "MKCOL", u, nil)
	if err != nil {
		return domain.CollectionRefused, &RequestError{Op: op, Err: err}
	}

	hc := &http.Client{Transport: s.transport, Timeout: s.timeout}
	resp, err := hc.Do(req)
	if err != nil {
		return domain.CollectionRefused, &RequestError{Op: op, Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		s.logger.Debug("webdav collection created", zap.String("path", path.String()))
		return domain.CollectionCreated, nil
	case http.StatusMethodNotAllowed:
		s.logger.Debug("webdav collection already exists", zap.String("path", path.String()))
		return domain.CollectionExists, nil
	case http.StatusUnauthorized:
		return domain.CollectionRefused, &RequestError{Op: op, StatusCode: resp.StatusCode}
	default:
		s.logger.Debug("webdav collection refused",
			zap.String("path", path.String()),
			zap.Int("status", resp.StatusCode))
		return domain.CollectionRefused, nil
	}
}

// Copy copies src to dst without overwriting an existing target
func (s *WebDAVStore) Copy(ctx context.Context, src, dst vo.RemotePath) error {
	return s.transfer(ctx, "COPY", src, dst)
}

// Move moves src to dst without overwriting an existing target
func (s *WebDAVStore) Move(ctx context.Context, src, dst vo.RemotePath) error {
	return s.transfer(ctx, "MOVE", src, dst)
}

func (s *WebDAVStore) transfer(ctx context.Context, method string, src, dst vo.RemotePath) error {
	op := fmt.Sprintf("%s %s -> %s", method, src, dst)
	if err := ctx.Err(); err != nil {
		return &RequestError{Op: op, Err: err}
	}

	c := s.client(ctx)
	var err error
	if method == "COPY" {
		err = c.Copy(src.String(), dst.String(), false)
	} else {
		err = c.Rename(src.String(), dst.String(), false)
	}
	if err == nil {
		return nil
	}

	status, ok := statusOf(err)
	if !ok || status == http.StatusUnauthorized {
		return requestErrorFrom(op, err)
	}
	return fmt.Errorf("%s: status %d: %w", op, status, domain.ErrTransferRefused)
}

// statusOf extracts the HTTP status gowebdav wraps into its path errors.
func statusOf(err error) (int, bool) {
	var pe *os.PathError
	if !errors.As(err, &pe) {
		return 0, false
	}
	var se gowebdav.StatusError
	if errors.As(pe.Err, &se) {
		return se.Status, true
	}
	return 0, false
}

func requestErrorFrom(op string, err error) *RequestError {
	status, _ := statusOf(err)
	return &RequestError{Op: op, StatusCode: status, Err: err}
}
