package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
)

type errorResponse struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Detail    string   `json:"detail,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// statusForKind maps an error kind to the HTTP status of the API response
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindConfiguration:
		return http.StatusServiceUnavailable
	case domain.KindCannotConnectAsSystem, domain.KindCannotConnectAsUser:
		return http.StatusUnauthorized
	case domain.KindRequestFailed:
		return http.StatusBadGateway
	case domain.KindCannotDownload:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

// writeProvisionError renders a provisioning failure
func writeProvisionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     "invalid_request",
			Message:   "The request is invalid.",
			Detail:    err.Error(),
			RequestID: RequestID(r.Context()),
		})
		return
	}

	kind := domain.KindOf(err)
	if d, ok := domain.GetRetryAfter(err); ok && kind.Retryable() {
		setRetryAfter(w, d)
	}
	writeJSON(w, statusForKind(kind), errorResponse{
		Error:     kind.String(),
		Message:   kind.UserMessage(),
		Detail:    err.Error(),
		RequestID: RequestID(r.Context()),
	})
}

// writeValidationError renders a payload that failed validation
func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{
		Error:     "invalid_request",
		Message:   "The request is invalid.",
		RequestID: RequestID(r.Context()),
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, fe.Namespace()+":"+fe.Tag())
		}
	} else {
		resp.Detail = err.Error()
	}

	writeJSON(w, http.StatusBadRequest, resp)
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
}
