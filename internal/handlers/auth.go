package handlers

import (
	"net/http"

	"chathub-backend/internal/apperr"
	"chathub-backend/internal/services"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	if input.Email == "" || input.Username == "" || input.Password == "" {
		h.sendError(w, r, apperr.Invalid("Email, username, and password are required"))
		return
	}

	result, err := h.auth.Register(r.Context(), input)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendCreated(w, result, "User registered successfully")
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var input services.LoginInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	if input.Email == "" || input.Password == "" {
		h.sendError(w, r, apperr.Invalid("Email and password are required"))
		return
	}

	result, err := h.auth.Login(r.Context(), input)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, result, "Login successful")
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var input refreshRequest
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	if input.RefreshToken == "" {
		h.sendError(w, r, apperr.Invalid("Refresh token is required"))
		return
	}

	accessToken, err := h.auth.Refresh(r.Context(), input.RefreshToken)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, map[string]string{"accessToken": accessToken}, "")
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var input refreshRequest
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	if input.RefreshToken == "" {
		h.sendError(w, r, apperr.Invalid("Refresh token is required"))
		return
	}

	if err := h.auth.Logout(r.Context(), userIDFrom(r), input.RefreshToken); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, nil, "Logout successful")
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), userIDFrom(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, user, "")
}
