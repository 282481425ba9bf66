package api

import (
	"net/http"
	"strings"

	"github.com/ashureev/betterme/internal/domain"
)

type loginRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type loginResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Login handles POST /users/login. Users are keyed by email; logging in again
// with a new name renames the account.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	email, err := domain.NormalizeEmail(req.Email)
	if err != nil {
		Error(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	user, err := h.deps.Repo.UpsertUserByEmail(r.Context(), name, email)
	if err != nil {
		h.deps.Logger.Error("Login failed", "email", email, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, loginResponse{UserID: user.UserID, Name: user.Name, Email: user.Email})
}
