package handlers

import (
	"errors"
	"mime"
	"net/http"

	"chathub-backend/internal/apperr"
	"chathub-backend/internal/fileHandlers"
	"chathub-backend/internal/services"
)

type messageRequest struct {
	Content string `json:"content"`
}

func (h *Handlers) GetMessageList(w http.ResponseWriter, r *http.Request) {
	channelID, err := idParam(r, "channelId", "Channel")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	query := r.URL.Query()
	page, err := services.ParsePage(query.Get("limit"), query.Get("before"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	messages, err := h.messages.History(r.Context(), userIDFrom(r), channelID, page)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, messages, "")
}

// CreateMessage accepts a JSON body or a multipart form with files.
func (h *Handlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	channelID, err := idParam(r, "channelId", "Channel")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var content string
	var uploads []fileHandlers.Upload

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		limits := h.limits
		// room for every file plus the text fields
		r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles+1)*limits.MaxFileSize)

		form, err := fileHandlers.ParseMessageForm(r, limits)
		if err != nil {
			h.sendError(w, r, uploadError(err))
			return
		}
		content, uploads = form.Content, form.Files
	} else {
		var input messageRequest
		if err := decodeJSON(w, r, &input); err != nil {
			h.sendError(w, r, err)
			return
		}
		content = input.Content
	}

	message, err := h.messages.Create(r.Context(), userIDFrom(r), channelID, content, uploads)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendCreated(w, message, "Message sent successfully")
}

func uploadError(err error) error {
	var uploadErr *fileHandlers.UploadError
	if errors.As(err, &uploadErr) {
		return apperr.Invalid(uploadErr.Detail)
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Invalid("Upload is too large")
	}
	return apperr.Invalid("Invalid multipart form")
}

func (h *Handlers) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id", "Message")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var input messageRequest
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	message, err := h.messages.Update(r.Context(), userIDFrom(r), messageID, input.Content)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, message, "Message updated successfully")
}

func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := idParam(r, "id", "Message")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	if err := h.messages.Delete(r.Context(), userIDFrom(r), messageID); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, nil, "Message deleted successfully")
}
