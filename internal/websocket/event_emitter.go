package websocket

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Publisher sends an event to every subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload interface{}) error
}

// EventEmitter is the typed facade services use to announce state changes.
// Delivery is best effort: failures are logged and never undo the write that
// triggered them.
type EventEmitter struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewEventEmitter(publisher Publisher, logger *slog.Logger) *EventEmitter {
	return &EventEmitter{publisher: publisher, logger: logger}
}

func (e *EventEmitter) emit(ctx context.Context, channel, event string, payload interface{}) {
	if e == nil || e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, channel, event, payload); err != nil {
		e.logger.Warn("broadcast_failed", "channel", channel, "event", event, "error", err)
	}
}

// --- Round lifecycle events ---

func (e *EventEmitter) GameStart(ctx context.Context, p GameStartPayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventGameStart, p)
}

func (e *EventEmitter) GamePlaying(ctx context.Context, p GamePlayingPayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventGamePlaying, p)
}

func (e *EventEmitter) GamePause(ctx context.Context, p GamePausePayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventGamePause, p)
}

func (e *EventEmitter) GameResume(ctx context.Context, p GameResumePayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventGameResume, p)
}

func (e *EventEmitter) TimerEnded(ctx context.Context, p TimerEndedPayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventTimerEnded, p)
}

func (e *EventEmitter) PlayerFinished(ctx context.Context, p PlayerFinishedPayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventPlayerFinished, p)
}

func (e *EventEmitter) RoundEnded(ctx context.Context, p RoundEndedPayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventRoundEnded, p)
}

func (e *EventEmitter) SessionEnded(ctx context.Context, p SessionEndedPayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventSessionEnded, p)
}

// --- Room events ---

func (e *EventEmitter) RoomUpdated(ctx context.Context, roomID uuid.UUID, status, reason string) {
	e.emit(ctx, RoomChannel(roomID), EventRoomUpdated, RoomUpdatedPayload{
		RoomID: roomID,
		Status: status,
		Reason: reason,
	})
}

func (e *EventEmitter) CuppingScoreSubmitted(ctx context.Context, roomID uuid.UUID, p CuppingScoreSubmittedPayload) {
	e.emit(ctx, RoomChannel(roomID), EventCuppingScoreSubmitted, p)
}

// --- Invitation events ---

func (e *EventEmitter) InvitationCreated(ctx context.Context, inviteeClerkID string, p InvitationCreatedPayload) {
	e.emit(ctx, InvitationChannel(inviteeClerkID), EventInvitationCreated, p)
}

func (e *EventEmitter) InvitationResponded(ctx context.Context, p InvitationRespondedPayload) {
	e.emit(ctx, RoomChannel(p.RoomID), EventInvitationResponded, p)
}
