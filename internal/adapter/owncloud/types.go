package owncloud

import (
	"errors"
	"fmt"
)

// OCS status codes
const (
	StatusOK           = 100
	StatusBadRequest   = 400
	StatusForbidden    = 403
	StatusNotFound     = 404
	StatusServerError  = 996
	StatusUnauthorized = 997
	StatusUnknownError = 999
)

const (
	sharesPath    = "/apps/files_sharing/api/v1/shares"
	ocsHeaderName = "OCS-APIRequest"
	expireLayout  = "2006-01-02"
)

// envelope is the XML body every OCS endpoint answers with.
type envelope struct {
	Meta *envelopeMeta `xml:"meta"`
	Data envelopeData  `xml:"data"`
}

type envelopeMeta struct {
	Status     string `xml:"status"`
	StatusCode int    `xml:"statuscode"`
	Message    string `xml:"message"`
}

type envelopeData struct {
	ID         string `xml:"id"`
	ShareType  string `xml:"share_type"`
	Path       string `xml:"path"`
	ItemSource string `xml:"item_source"`
	FileTarget string `xml:"file_target"`
	ShareWith  string `xml:"share_with"`
}

// RequestError is returned when the call itself failed: the server could not
// be reached, timed out, or rejected the credentials.
type RequestError struct {
	Op         string
	StatusCode int // HTTP status, 0 if no response was received
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Unauthorized returns true if the server rejected the bearer token.
func (e *RequestError) Unauthorized() bool {
	return e.StatusCode == 401
}

// ParseError is returned when a response arrived but is not a well-formed
// OCS envelope.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed ocs response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errMissingMeta = errors.New("envelope has no meta block")

// IsRequestError returns true if err is a transport level failure
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// IsParseError returns true if err is a malformed response
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
