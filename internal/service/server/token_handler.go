package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
)

// TokenHandler stores tokens handed over by the external OAuth2 flow
type TokenHandler struct {
	tokens   port.TokenRepository
	validate *validator.Validate
	logger   *zap.Logger
}

// NewTokenHandler creates a new TokenHandler
func NewTokenHandler(tokens port.TokenRepository, validate *validator.Validate, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{
		tokens:   tokens,
		validate: validate,
		logger:   logger,
	}
}

type tokenRequest struct {
	Username     string    `json:"username" validate:"required"`
	AccessToken  string    `json:"access_token" validate:"required_without=RefreshToken"`
	RefreshToken string    `json:"refresh_token" validate:"required_without=AccessToken"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// HandleLinkUser handles PUT /api/v1/users/{userID}/token
func (h *TokenHandler) HandleLinkUser(w http.ResponseWriter, r *http.Request) {
	id := domain.Identity{Kind: domain.IdentityUser, UserID: chi.URLParam(r, "userID")}
	h.link(w, r, id)
}

// HandleLinkSystem handles PUT /api/v1/system/token
func (h *TokenHandler) HandleLinkSystem(w http.ResponseWriter, r *http.Request) {
	h.link(w, r, domain.Identity{Kind: domain.IdentitySystem})
}

// HandleUnlinkUser handles DELETE /api/v1/users/{userID}/token
func (h *TokenHandler) HandleUnlinkUser(w http.ResponseWriter, r *http.Request) {
	id := domain.Identity{Kind: domain.IdentityUser, UserID: chi.URLParam(r, "userID")}

	err := h.tokens.DeleteToken(id.TokenKey())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Token not found", http.StatusNotFound)
	case err != nil:
		h.logger.Error("failed to unlink token", zap.String("key", id.TokenKey()), zap.Error(err))
		http.Error(w, "Failed to unlink token", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *TokenHandler) link(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeValidationError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(w, r, err)
		return
	}

	token := &domain.LinkedToken{
		Key:          id.TokenKey(),
		Username:     req.Username,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Expiry:       req.Expiry,
		UpdatedAt:    time.Now(),
	}
	if err := h.tokens.SaveToken(token); err != nil {
		h.logger.Error("failed to link token", zap.String("key", token.Key), zap.Error(err))
		http.Error(w, "Failed to link token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("identity linked",
		zap.String("identity", id.Kind.String()),
		zap.String("user_id", id.UserID),
		zap.String("username", req.Username))
	w.WriteHeader(http.StatusNoContent)
}
