package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tastelab/cupping-rooms/internal/service"
)

type CoffeeHandler struct {
	base
	coffeeService *service.CoffeeService
}

func NewCoffeeHandler(coffeeService *service.CoffeeService, logger *slog.Logger) *CoffeeHandler {
	return &CoffeeHandler{base: newBase(logger), coffeeService: coffeeService}
}

type AddCoffeeRequest struct {
	Name string `json:"name" validate:"required,max=80"`
}

type ManualSetRequest struct {
	Rows []service.SetRowInput `json:"rows" validate:"dive"`
}

func (h *CoffeeHandler) List(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	coffees, err := h.coffeeService.ListCoffees(r.Context(), roomID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coffees)
}

func (h *CoffeeHandler) Add(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	var req AddCoffeeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	coffee, err := h.coffeeService.AddCoffee(r.Context(), roomID, profile.ID, req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, coffee)
}

func (h *CoffeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	coffeeID, ok := uuidParam(w, r, "coffeeId")
	if !ok {
		return
	}
	if err := h.coffeeService.DeleteCoffee(r.Context(), roomID, coffeeID, profile.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CoffeeHandler) ListSets(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	sets, err := h.coffeeService.ListSets(r.Context(), roomID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

func (h *CoffeeHandler) GetSet(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	setID, ok := uuidParam(w, r, "setId")
	if !ok {
		return
	}
	set, err := h.coffeeService.GetSet(r.Context(), roomID, setID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *CoffeeHandler) GenerateSet(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	set, err := h.coffeeService.GenerateSet(r.Context(), roomID, profile.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSet(w, r, roomID, set.ID, profile.ID, http.StatusCreated)
}

func (h *CoffeeHandler) CreateManualSet(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	var req ManualSetRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	set, err := h.coffeeService.CreateManualSet(r.Context(), roomID, profile.ID, req.Rows)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSet(w, r, roomID, set.ID, profile.ID, http.StatusCreated)
}

func (h *CoffeeHandler) UpdateSetRow(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	setID, ok := uuidParam(w, r, "setId")
	if !ok {
		return
	}
	var req service.SetRowInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.coffeeService.UpdateSetRow(r.Context(), roomID, setID, profile.ID, req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSet(w, r, roomID, setID, profile.ID, http.StatusOK)
}

func (h *CoffeeHandler) DeleteSet(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	roomID, ok := uuidParam(w, r, "roomId")
	if !ok {
		return
	}
	setID, ok := uuidParam(w, r, "setId")
	if !ok {
		return
	}
	if err := h.coffeeService.DeleteSet(r.Context(), roomID, setID, profile.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeSet renders the set as the viewer sees it.
func (h *CoffeeHandler) writeSet(w http.ResponseWriter, r *http.Request, roomID, setID, viewerID uuid.UUID, status int) {
	view, err := h.coffeeService.GetSet(r.Context(), roomID, setID, viewerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, view)
}
