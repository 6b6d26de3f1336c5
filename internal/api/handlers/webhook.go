package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/tastelab/cupping-rooms/internal/service"
)

const maxWebhookBytes = 256 << 10

type WebhookHandler struct {
	base
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{base: newBase(logger), webhookService: webhookService}
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Type     string `json:"type"`
}

// Auth receives identity provider user events.
func (h *WebhookHandler) Auth(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read payload")
		return
	}
	if err := h.webhookService.Verify(payload, r.Header); err != nil {
		h.logger.Warn("webhook_rejected", "error", err)
		h.fail(w, r, err)
		return
	}
	eventType, err := h.webhookService.Handle(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Type: eventType})
}
