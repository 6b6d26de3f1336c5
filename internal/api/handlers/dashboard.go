package handlers

import (
	"log/slog"
	"net/http"

	"github.com/tastelab/cupping-rooms/internal/service"
)

type DashboardHandler struct {
	base
	dashboardService *service.DashboardService
}

func NewDashboardHandler(dashboardService *service.DashboardService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{base: newBase(logger), dashboardService: dashboardService}
}

// Overview serves both dashboards for the last ?days= days.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.profile(w, r)
	if !ok {
		return
	}
	dash, err := h.dashboardService.Overview(r.Context(), profile.ID, intQuery(r, "days", service.DefaultDashboardDays))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}
