package handlers

import (
	"net/http"

	"github.com/Dosada05/rps-tournament-bot/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// IssueToken handles POST /auth/token. The chat frontend trades its bot key
// for a short-lived token scoped to one user.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var input services.TokenInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	token, expiresAt, err := h.authService.IssueToken(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"token": token, "expires_at": expiresAt}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
