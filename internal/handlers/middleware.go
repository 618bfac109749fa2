package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chathub-backend/internal/apperr"
)

type UserIDKeyType struct{}

const userExistsTTL = 15 * time.Minute

func userIDFrom(r *http.Request) int64 {
	userID, _ := r.Context().Value(UserIDKeyType{}).(int64)
	return userID
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// UserVerifier authenticates the bearer access token and makes sure the
// user still exists. Existence is cached for a while to spare the database.
func (h *Handlers) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.sendError(w, r, apperr.Unauthenticated("No token provided"))
			return
		}

		userToken, err := h.issuer.VerifyAccess(token)
		if err != nil {
			h.sugar.Debug(err)
			h.sendError(w, r, apperr.Unauthenticated("Invalid or expired token"))
			return
		}

		userFound, err := h.userExists(r.Context(), userToken.UserID)
		if err != nil {
			h.sendError(w, r, apperr.Wrap(err))
			return
		}
		if !userFound {
			h.sugar.Debugf("User ID %d from a valid token was not found in database", userToken.UserID)
			h.sendError(w, r, apperr.Unauthenticated("User not found"))
			return
		}

		// this passes the authenticated user's ID to next handler
		ctx := context.WithValue(r.Context(), UserIDKeyType{}, userToken.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) userExists(ctx context.Context, userID int64) (bool, error) {
	key := fmt.Sprintf("user_exists:%d", userID)

	value, err := h.cache.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if value != "" {
		h.sugar.Debugf("User ID %d was found in cache", userID)
		return true, nil
	}

	userFound, err := h.users.UserExists(ctx, userID)
	if err != nil || !userFound {
		return false, err
	}

	if err := h.cache.Set(ctx, key, "y", userExistsTTL); err != nil {
		return false, err
	}
	h.sugar.Debugf("User ID %d was found in database and was cached", userID)
	return true, nil
}

func (h *Handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, response{
		Success: false,
		Error:   fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path),
	})
}

func (h *Handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, response{
		Success: false,
		Error:   fmt.Sprintf("Method %s not allowed on %s", r.Method, r.URL.Path),
	})
}
