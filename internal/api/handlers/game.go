package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
)

type GameHandler struct {
	base
	gameService *service.GameService
}

func NewGameHandler(gameService *service.GameService, logger *slog.Logger) *GameHandler {
	return &GameHandler{base: newBase(logger), gameService: gameService}
}

type StartRoundRequest struct {
	SetID uuid.UUID `json:"setId" validate:"required"`
}

func (h *GameHandler) State(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	state, err := h.gameService.GetRoomState(r.Context(), roomID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *GameHandler) StartRound(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	var req StartRoundRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	round, err := h.gameService.StartRound(r.Context(), roomID, profile.ID, req.SetID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

type roomAction func(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error)

// hostAction adapts a host-only room transition to a handler returning the
// updated room.
func (h *GameHandler) hostAction(action roomAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := h.profile(w, r)
		if !ok {
			return
		}
		roomID, ok := uuidParam(w, r, "roomId")
		if !ok {
			return
		}
		room, err := action(r.Context(), roomID, profile.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

func (h *GameHandler) BeginPlaying() http.HandlerFunc {
	return h.hostAction(h.gameService.BeginPlaying)
}

func (h *GameHandler) Pause() http.HandlerFunc {
	return h.hostAction(h.gameService.Pause)
}

func (h *GameHandler) Resume() http.HandlerFunc {
	return h.hostAction(h.gameService.Resume)
}

func (h *GameHandler) CancelCountdown() http.HandlerFunc {
	return h.hostAction(h.gameService.CancelCountdown)
}

func (h *GameHandler) StartTimer() http.HandlerFunc {
	return h.hostAction(h.gameService.StartTimer)
}

func (h *GameHandler) StopTimer() http.HandlerFunc {
	return h.hostAction(h.gameService.StopTimer)
}

func (h *GameHandler) EndSession() http.HandlerFunc {
	return h.hostAction(h.gameService.EndSession)
}

func (h *GameHandler) EndRound(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	results, err := h.gameService.EndRound(r.Context(), roomID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *GameHandler) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	roundID, ok := uuidParam(w, r, "roundId")
	if !ok {
		return
	}
	var req service.SubmitAnswersInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.gameService.SubmitAnswers(r.Context(), roomID, roundID, profile, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *GameHandler) Results(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	roundID, ok := uuidParam(w, r, "roundId")
	if !ok {
		return
	}
	results, err := h.gameService.GetRoundResults(r.Context(), roomID, roundID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
