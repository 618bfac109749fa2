package handlers

import (
	"net/http"

	"chathub-backend/internal/services"
)

func (h *Handlers) GetChannelList(w http.ResponseWriter, r *http.Request) {
	serverID, err := idParam(r, "serverId", "Server")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	channels, err := h.channels.List(r.Context(), userIDFrom(r), serverID)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, channels, "")
}

func (h *Handlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	serverID, err := idParam(r, "serverId", "Server")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var input services.CreateChannelInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	channel, err := h.channels.Create(r.Context(), userIDFrom(r), serverID, input)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendCreated(w, channel, "Channel created successfully")
}

func (h *Handlers) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := idParam(r, "id", "Channel")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var input services.UpdateChannelInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	channel, err := h.channels.Update(r.Context(), userIDFrom(r), channelID, input)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, channel, "Channel updated successfully")
}

func (h *Handlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := idParam(r, "id", "Channel")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	if err := h.channels.Delete(r.Context(), userIDFrom(r), channelID); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, nil, "Channel deleted successfully")
}
