package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tlindqvist/syncbox/internal/apperr"
	"github.com/tlindqvist/syncbox/internal/auth"
)

// AuthHandler holds the key-handshake route handlers.
type AuthHandler struct {
	mgr *auth.Manager
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(mgr *auth.Manager) *AuthHandler {
	return &AuthHandler{mgr: mgr}
}

// Challenge handles POST /api/v1/auth/challenge.
//
//	@Summary		Request a signing challenge for an authorized public key
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChallengeRequest	true	"Public key in authorized_keys format"
//	@Success		200		{object}	auth.Challenge
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Router			/auth/challenge [post]
func (h *AuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.PublicKey == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("public_key is required"))
		return
	}
	ch, err := h.mgr.CreateChallenge(req.PublicKey)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrUnauthorized):
			writeJSON(w, http.StatusUnauthorized, errorBody("key not authorized"))
		case errors.Is(err, apperr.ErrValidation):
			writeJSON(w, http.StatusBadRequest, errorBody("invalid public key"))
		default:
			slog.Error("create challenge failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// Verify handles POST /api/v1/auth/verify.
//
//	@Summary		Exchange a signed challenge for a bearer token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VerifyRequest	true	"Signed challenge"
//	@Success		200		{object}	auth.Token
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Router			/auth/verify [post]
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Challenge == "" || req.PublicKey == "" || req.Signature == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("challenge, public_key and signature are required"))
		return
	}
	tok, err := h.mgr.VerifyChallenge(req.Challenge, req.PublicKey, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrUnauthorized):
			writeJSON(w, http.StatusUnauthorized, errorBody("verification failed"))
		case errors.Is(err, apperr.ErrValidation):
			writeJSON(w, http.StatusBadRequest, errorBody("malformed key or signature"))
		default:
			slog.Error("verify challenge failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, tok)
}
