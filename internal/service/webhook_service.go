package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"github.com/tidwall/gjson"

	"github.com/tastelab/cupping-rooms/internal/domain"
)

const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// WebhookService applies identity provider user events to profiles.
type WebhookService struct {
	secret   string
	profiles *ProfileService
	logger   *slog.Logger
}

func NewWebhookService(secret string, profiles *ProfileService, logger *slog.Logger) *WebhookService {
	return &WebhookService{secret: secret, profiles: profiles, logger: logger}
}

// Verify checks the signature of a delivery. Svix-prefixed headers are
// accepted alongside the standard webhook-* names.
func (s *WebhookService) Verify(payload []byte, header http.Header) error {
	if s.secret == "" {
		return fmt.Errorf("%w: no signing secret configured", domain.ErrInvalidSignature)
	}
	wh, err := standardwebhooks.NewWebhook(s.secret)
	if err != nil {
		return fmt.Errorf("failed to create webhook verifier: %w", err)
	}

	headers := http.Header{}
	for _, name := range []string{"Id", "Timestamp", "Signature"} {
		value := header.Get("Webhook-" + name)
		if value == "" {
			value = header.Get("Svix-" + name)
		}
		headers.Set("Webhook-"+name, value)
	}

	if err := wh.Verify(payload, headers); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return nil
}

// Handle applies a verified event and returns its type. Unknown types are
// ignored.
func (s *WebhookService) Handle(ctx context.Context, payload []byte) (string, error) {
	if !gjson.ValidBytes(payload) {
		return "", ErrMalformedEvent
	}
	event := gjson.ParseBytes(payload)
	eventType := event.Get("type").String()
	clerkID := event.Get("data.id").String()

	switch eventType {
	case EventUserCreated, EventUserUpdated:
		if clerkID == "" {
			return eventType, ErrMalformedEvent
		}
		username := event.Get("data.username").String()
		imageURL := event.Get("data.image_url").String()
		profile, err := s.profiles.ProvisionFromIdentity(ctx, clerkID, username, imageURL)
		if err != nil {
			return eventType, err
		}
		s.logger.Info("webhook_user_synced", "type", eventType, "clerk_id", clerkID, "profile_id", profile.ID)
	case EventUserDeleted:
		if clerkID == "" {
			return eventType, ErrMalformedEvent
		}
		if err := s.profiles.DeleteByClerkID(ctx, clerkID); err != nil {
			return eventType, err
		}
	default:
		s.logger.Debug("webhook_ignored", "type", eventType)
	}
	return eventType, nil
}
