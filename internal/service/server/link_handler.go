package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
	"github.com/vertextoedge/owncloud-controlled-link/internal/service/provisioner"
	"github.com/vertextoedge/owncloud-controlled-link/internal/util/ratelimiter"
)

// LinkHandler handles provisioning requests
type LinkHandler struct {
	provisioner LinkProvisioner
	links       port.LinkRepository
	limiter     *ratelimiter.Limiter
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewLinkHandler creates a new LinkHandler. limiter may be nil.
func NewLinkHandler(p LinkProvisioner, links port.LinkRepository, limiter *ratelimiter.Limiter, validate *validator.Validate, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		provisioner: p,
		links:       links,
		limiter:     limiter,
		validate:    validate,
		logger:      logger,
	}
}

type provisionRequest struct {
	UserID    string             `json:"user_id" validate:"required,max=255"`
	Reference string             `json:"reference" validate:"required,max=4096"`
	Context   domain.ItemContext `json:"context"`
}

type provisionResponse struct {
	domain.ShareResult
	Folder     domain.FolderEnsureResult `json:"folder"`
	SharedPath string                    `json:"shared_path"`
	ExpiresAt  time.Time                 `json:"expires_at"`
}

type linkResponse struct {
	ID         int64     `json:"id"`
	Reference  string    `json:"reference"`
	FolderPath string    `json:"folder_path"`
	ShareID    string    `json:"shareid"`
	FileID     string    `json:"fileid"`
	FileTarget string    `json:"filetarget"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// HandleProvision handles POST /api/v1/links
func (h *LinkHandler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeValidationError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(w, r, err)
		return
	}

	if h.limiter != nil {
		if ok, wait := h.limiter.Allow(req.UserID); !ok {
			setRetryAfter(w, wait)
			writeJSON(w, http.StatusTooManyRequests, errorResponse{
				Error:     "throttled",
				Message:   "Too many requests, please wait before trying again.",
				RequestID: RequestID(r.Context()),
			})
			return
		}
	}

	outcome, err := h.provisioner.Provision(r.Context(), provisioner.Request{
		UserID:    req.UserID,
		Reference: req.Reference,
		Context:   req.Context,
	})
	if err != nil {
		h.logger.Info("provisioning request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("user", req.UserID),
			zap.String("kind", domain.KindOf(err).String()))
		writeProvisionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, provisionResponse{
		ShareResult: outcome.Share,
		Folder:      domain.FolderEnsureResult{Success: true, FullPath: outcome.FolderPath},
		SharedPath:  outcome.SharedPath.String(),
		ExpiresAt:   outcome.ExpiresAt,
	})
}

// HandleList handles GET /api/v1/users/{userID}/links
func (h *LinkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	links, err := h.links.ListActiveLinks(userID, time.Now())
	if err != nil {
		h.logger.Error("failed to list links", zap.String("user", userID), zap.Error(err))
		http.Error(w, "Failed to list links", http.StatusInternalServerError)
		return
	}

	resp := make([]linkResponse, 0, len(links))
	for _, l := range links {
		resp = append(resp, toLinkResponse(l))
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /api/v1/links/{linkID}
func (h *LinkHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "linkID"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid link id", http.StatusBadRequest)
		return
	}

	link, err := h.links.GetLink(id)
	if err != nil {
		h.logger.Error("failed to get link", zap.Int64("id", id), zap.Error(err))
		http.Error(w, "Failed to get link", http.StatusInternalServerError)
		return
	}
	if link == nil {
		http.Error(w, "Link not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toLinkResponse(link))
}

func toLinkResponse(l *domain.ControlledLink) linkResponse {
	return linkResponse{
		ID:         l.ID,
		Reference:  l.Reference,
		FolderPath: l.FolderPath.String(),
		ShareID:    l.ShareID,
		FileID:     l.FileID,
		FileTarget: l.FileTarget,
		ExpiresAt:  l.ExpiresAt,
		CreatedAt:  l.CreatedAt,
	}
}
