package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
)

type RoomHandler struct {
	base
	roomService *service.RoomService
}

func NewRoomHandler(roomService *service.RoomService, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{base: newBase(logger), roomService: roomService}
}

type JoinRoomRequest struct {
	Code string `json:"code" validate:"required"`
}

type InviteRequest struct {
	Username string `json:"username" validate:"required"`
}

type RoomDetailResponse struct {
	Room    *domain.Room         `json:"room"`
	Players []*domain.RoomPlayer `json:"players"`
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	var req service.CreateRoomInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	room, err := h.roomService.CreateRoom(r.Context(), profile, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	rooms, err := h.roomService.ListMyRooms(r.Context(), profile.ID, intQuery(r, "limit", 20), intQuery(r, "offset", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// Get looks a room up by id or join code. Members also receive the player
// list.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	room, err := h.roomService.GetRoom(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := RoomDetailResponse{Room: room, Players: []*domain.RoomPlayer{}}
	if players, err := h.roomService.ListPlayers(r.Context(), room.ID, profile.ID); err == nil {
		resp.Players = players
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	room, err := h.roomService.JoinRoom(r.Context(), profile, req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	if err := h.roomService.LeaveRoom(r.Context(), roomID, profile.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	if err := h.roomService.DeleteRoom(r.Context(), roomID, profile.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	var req service.UpdateRoomSettingsInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	room, err := h.roomService.UpdateSettings(r.Context(), roomID, profile.ID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) Players(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	players, err := h.roomService.ListPlayers(r.Context(), roomID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

func (h *RoomHandler) Invite(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	var req InviteRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.roomService.Invite(r.Context(), roomID, profile, req.Username)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *RoomHandler) PendingInvitations(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	invs, err := h.roomService.ListPendingInvitations(r.Context(), profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

func (h *RoomHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	h.respondInvitation(w, r, true)
}

func (h *RoomHandler) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	h.respondInvitation(w, r, false)
}

func (h *RoomHandler) respondInvitation(w http.ResponseWriter, r *http.Request, accept bool) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	invID, ok := uuidParam(w, r, "invitationId")
	if !ok {
		return
	}
	inv, err := h.roomService.RespondInvitation(r.Context(), invID, profile, accept)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
