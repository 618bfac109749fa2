package handlers

import (
	"net/http"

	"chathub-backend/internal/services"
)

func (h *Handlers) GetServerList(w http.ResponseWriter, r *http.Request) {
	servers, err := h.servers.List(r.Context(), userIDFrom(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, servers, "")
}

func (h *Handlers) CreateServer(w http.ResponseWriter, r *http.Request) {
	var input services.CreateServerInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	server, err := h.servers.Create(r.Context(), userIDFrom(r), input)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendCreated(w, server, "Server created successfully")
}

func (h *Handlers) GetServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := idParam(r, "id", "Server")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	server, err := h.servers.Get(r.Context(), userIDFrom(r), serverID)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, server, "")
}

func (h *Handlers) UpdateServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := idParam(r, "id", "Server")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	var input services.UpdateServerInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.sendError(w, r, err)
		return
	}

	server, err := h.servers.Update(r.Context(), userIDFrom(r), serverID, input)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, server, "Server updated successfully")
}

func (h *Handlers) DeleteServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := idParam(r, "id", "Server")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	if err := h.servers.Delete(r.Context(), userIDFrom(r), serverID); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendSuccess(w, nil, "Server deleted successfully")
}

func (h *Handlers) JoinServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := idParam(r, "id", "Server")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	member, err := h.servers.Join(r.Context(), userIDFrom(r), serverID)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendCreated(w, member, "Joined server successfully")
}
