package owncloud

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"go.uber.org/zap"
)

// ShareClient implements port.ShareClient against the OCS sharing API.
type ShareClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// CreateShare issues the share call and parses the envelope. The returned
// result carries the remote status code; a non-100 code is not an error.
func (c *ShareClient) CreateShare(ctx context.Context, req domain.ShareRequest) (*domain.ShareResult, error) {
	const op = "create_share"

	form := EncodeShareRequest(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sharesPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	env, err := c.do(httpReq, op)
	if err != nil {
		return nil, err
	}

	result := &domain.ShareResult{
		StatusCode: env.Meta.StatusCode,
		ShareID:    strings.TrimSpace(env.Data.ID),
		FileID:     strings.TrimSpace(env.Data.ItemSource),
		FileTarget: normalizeTarget(env.Data.FileTarget),
	}

	c.logger.Debug("ocs share call finished",
		zap.String("path", req.Path.String()),
		zap.String("share_with", req.ShareWith),
		zap.Int("statuscode", result.StatusCode),
		zap.String("message", env.Meta.Message))

	return result, nil
}

// DeleteShare removes a share. Unlike CreateShare a non-100 status is
// returned as an error, since there is no payload worth inspecting.
func (c *ShareClient) DeleteShare(ctx context.Context, shareID string) error {
	const op = "delete_share"

	u := c.baseURL + sharesPath + "/" + url.PathEscape(shareID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}

	env, err := c.do(httpReq, op)
	if err != nil {
		return err
	}
	if env.Meta.StatusCode != StatusOK {
		return fmt.Errorf("%s %s: ocs status %d %s: %w", op, shareID, env.Meta.StatusCode, env.Meta.Message, domain.ErrShareRefused)
	}
	return nil
}

func (c *ShareClient) do(req *http.Request, op string) (*envelope, error) {
	req.Header.Set(ocsHeaderName, "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	env, perr := parseEnvelope(op, body)
	if perr != nil {
		// Without an envelope an HTTP error status is the only signal there is.
		if resp.StatusCode >= 400 {
			return nil, &RequestError{Op: op, StatusCode: resp.StatusCode}
		}
		return nil, perr
	}
	return env, nil
}

// EncodeShareRequest serializes a share request into the form fields the
// OCS endpoint expects. expireDate is the field ownCloud reads; expiration
// carries the same instant as a unix timestamp.
func EncodeShareRequest(req domain.ShareRequest) url.Values {
	v := url.Values{
		"path":         {req.Path.String()},
		"shareType":    {strconv.Itoa(int(req.ShareType))},
		"publicUpload": {strconv.FormatBool(req.PublicUpload)},
		"shareWith":    {req.ShareWith},
	}
	if !req.Expiration.IsZero() {
		v.Set("expiration", strconv.FormatInt(req.Expiration.Unix(), 10))
		v.Set("expireDate", req.Expiration.UTC().Format(expireLayout))
	}
	return v
}

// parseEnvelope decodes an OCS XML response body.
func parseEnvelope(op string, body []byte) (*envelope, error) {
	var env envelope
	dec := xml.NewDecoder(bytes.NewReader(body))
	var start xml.StartElement
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, &ParseError{Op: op, Err: err}
		}
		if se, ok := tok.(xml.StartElement); ok {
			start = se
			break
		}
	}
	if start.Name.Local != "ocs" {
		return nil, &ParseError{Op: op, Err: fmt.Errorf("unexpected root element <%s>", start.Name.Local)}
	}
	if err := dec.DecodeElement(&env, &start); err != nil {
		return nil, &ParseError{Op: op, Err: err}
	}
	if env.Meta == nil {
		return nil, &ParseError{Op: op, Err: errMissingMeta}
	}
	return &env, nil
}

func normalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	return path.Clean("/" + target)
}
