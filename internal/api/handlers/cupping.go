package handlers

import (
	"log/slog"
	"net/http"

	"github.com/tastelab/cupping-rooms/internal/service"
)

type CuppingHandler struct {
	base
	cuppingService *service.CuppingService
}

func NewCuppingHandler(cuppingService *service.CuppingService, logger *slog.Logger) *CuppingHandler {
	return &CuppingHandler{base: newBase(logger), cuppingService: cuppingService}
}

func (h *CuppingHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	var req service.CreateCuppingSessionInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	session, err := h.cuppingService.CreateSession(r.Context(), profile, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *CuppingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	sessions, err := h.cuppingService.ListMySessions(r.Context(), profile.ID, intQuery(r, "limit", 20), intQuery(r, "offset", 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *CuppingHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(w, r, "sessionId")
	if !ok {
		return
	}
	session, err := h.cuppingService.GetSession(r.Context(), sessionID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *CuppingHandler) ActiveRoomSession(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	session, err := h.cuppingService.GetActiveRoomSession(r.Context(), roomID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *CuppingHandler) AddSample(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(w, r, "sessionId")
	if !ok {
		return
	}
	var req service.AddSampleInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sample, err := h.cuppingService.AddSample(r.Context(), sessionID, profile.ID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

func (h *CuppingHandler) ListSamples(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(w, r, "sessionId")
	if !ok {
		return
	}
	samples, err := h.cuppingService.ListSamples(r.Context(), sessionID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (h *CuppingHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(w, r, "sessionId")
	if !ok {
		return
	}
	sampleID, ok := uuidParam(w, r, "sampleId")
	if !ok {
		return
	}
	var req service.SubmitScoreInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	score, err := h.cuppingService.SubmitScore(r.Context(), sessionID, sampleID, profile, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, score)
}

func (h *CuppingHandler) ListScores(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(w, r, "sessionId")
	if !ok {
		return
	}
	scores, err := h.cuppingService.ListScores(r.Context(), sessionID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *CuppingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(w, r, "sessionId")
	if !ok {
		return
	}
	session, err := h.cuppingService.CompleteSession(r.Context(), sessionID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *CuppingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	sessionID, ok := uuidParam(w, r, "sessionId")
	if !ok {
		return
	}
	summary, err := h.cuppingService.SampleSummary(r.Context(), sessionID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
