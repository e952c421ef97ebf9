package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// Identity errors
	ErrRepositoryDisabled = errors.New("repository instance is disabled")
	ErrIssuerEndpoints    = errors.New("issuer does not implement all required endpoints")
	ErrIdentityNotLinked  = errors.New("identity is not linked to the issuer")
	ErrTokenExpired       = errors.New("token expired and could not be refreshed")
	ErrSystemUnnamed      = errors.New("system account has no username")

	// Remote errors
	ErrFolderNotCreated = errors.New("remote refused to create folder")
	ErrShareRefused     = errors.New("remote refused to create share")
	ErrTransferRefused  = errors.New("remote refused to transfer file")
)

// ErrorKind classifies a failed provisioning attempt for the caller.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindCannotConnectAsSystem
	KindCannotConnectAsUser
	KindRequestFailed
	KindCannotDownload
)

var kindNames = map[ErrorKind]string{
	KindUnknown:               "unknown",
	KindConfiguration:         "configuration_error",
	KindCannotConnectAsSystem: "cannot_connect_as_system",
	KindCannotConnectAsUser:   "cannot_connect_as_user",
	KindRequestFailed:         "request_failed",
	KindCannotDownload:        "cannot_download",
}

// String returns the stable name used in logs, metrics and API responses.
func (k ErrorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether a caller may try the same request again.
// Only transport failures qualify; everything else needs a human.
func (k ErrorKind) Retryable() bool {
	return k == KindRequestFailed
}

// UserMessage is the text shown to the end user for this kind.
func (k ErrorKind) UserMessage() string {
	switch k {
	case KindConfiguration:
		return "An error in the configuration of the OAuth 2 client occurred."
	case KindCannotConnectAsSystem:
		return "Cannot connect as system user"
	case KindCannotConnectAsUser:
		return "Cannot connect as current user. The user could not be authenticated, please log in and then upload the file."
	case KindRequestFailed:
		return "The request could not be executed. If this happens frequently please contact the course or site administrator."
	case KindCannotDownload:
		return "The requested action could not be executed. In case this happens frequently please contact the site administrator."
	default:
		return "An unexpected error occurred."
	}
}

// ProvisionError is the single error type returned by the link provisioner.
type ProvisionError struct {
	Kind   ErrorKind
	Err    error
	Detail string // diagnostic text, e.g. the failing path or remote status
}

// Error returns the error message
func (e *ProvisionError) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// NewProvisionError creates a new classified error
func NewProvisionError(kind ErrorKind, err error, detail string) *ProvisionError {
	return &ProvisionError{Kind: kind, Err: err, Detail: detail}
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *ProvisionError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// RetryableError marks an error as safe to retry after the given delay.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *RetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retryable error"
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error, retryAfter time.Duration) *RetryableError {
	return &RetryableError{Err: err, RetryAfter: retryAfter}
}

// IsRetryable returns true if the error should be retried, either because it
// was explicitly marked or because its kind is retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	return KindOf(err).Retryable()
}

// GetRetryAfter returns the retry duration if the error is retryable
func GetRetryAfter(err error) (time.Duration, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}
