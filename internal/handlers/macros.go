package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"chathub-backend/internal/apperr"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxJSONBody = 1 << 20

// response is the body of every API reply.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.sugar.Debugf("Couldn't write response: %v", err)
	}
}

func (h *Handlers) sendSuccess(w http.ResponseWriter, data any, message string) {
	h.writeJSON(w, http.StatusOK, response{Success: true, Data: data, Message: message})
}

func (h *Handlers) sendCreated(w http.ResponseWriter, data any, message string) {
	h.writeJSON(w, http.StatusCreated, response{Success: true, Data: data, Message: message})
}

// sendError maps err to its status. Internal details only go to the log.
func (h *Handlers) sendError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		h.sugar.Errorw("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"requestID", middleware.GetReqID(r.Context()),
			"error", err,
		)
	} else {
		h.sugar.Debugf("%s %s: %v", r.Method, r.URL.Path, err)
	}

	h.writeJSON(w, apperr.HTTPStatus(kind), response{Success: false, Error: apperr.MessageOf(err)})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Invalid("Request body is too large")
	}
	return apperr.Invalid("Invalid request body")
}

// idParam reads a snowflake id from the URL. Malformed ids cannot name an
// existing record, so they are reported as missing.
func idParam(r *http.Request, name string, what string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Missing(what + " not found")
	}
	return id, nil
}
