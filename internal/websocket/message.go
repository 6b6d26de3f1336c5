package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type MessageType string

const (
	// Client to Server
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeBroadcast   MessageType = "broadcast"

	// Server to Client
	MessageTypeEvent        MessageType = "event"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeError        MessageType = "error"
)

// Message is the single envelope used in both directions. Events carry
// channel, event, payload and sentAt; control frames use Type alone.
type Message struct {
	Type     MessageType     `json:"type"`
	Channel  string          `json:"channel,omitempty"`
	Event    string          `json:"event,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SentAt   time.Time       `json:"sentAt"`
	SenderID string          `json:"senderId,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return &Message{
		Type:    msgType,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	}, nil
}

// NewEvent builds a server event for channel.
func NewEvent(channel, event string, payload interface{}) (*Message, error) {
	msg, err := NewMessage(MessageTypeEvent, payload)
	if err != nil {
		return nil, err
	}
	msg.Channel = channel
	msg.Event = event
	return msg, nil
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event names
const (
	EventGameStart             = "game_start"
	EventGamePlaying           = "game_playing"
	EventGamePause             = "game_pause"
	EventGameResume            = "game_resume"
	EventTimerEnded            = "timer_ended"
	EventPlayerFinished        = "player_finished"
	EventRoundEnded            = "round_ended"
	EventSessionEnded          = "session_ended"
	EventRoomUpdated           = "room_updated"
	EventCuppingScoreSubmitted = "cupping_score_submitted"
	EventInvitationCreated     = "invitation_created"
	EventInvitationResponded   = "invitation_responded"
)

const (
	roomChannelPrefix       = "room_sync_"
	invitationChannelPrefix = "user_invitations_"
)

type ChannelKind int

const (
	ChannelUnknown ChannelKind = iota
	ChannelRoom
	ChannelInvitations
)

func RoomChannel(roomID fmt.Stringer) string {
	return roomChannelPrefix + roomID.String()
}

func InvitationChannel(clerkID string) string {
	return invitationChannelPrefix + clerkID
}

// ParseChannel splits a channel name into its kind and key.
func ParseChannel(channel string) (ChannelKind, string) {
	switch {
	case strings.HasPrefix(channel, roomChannelPrefix) && len(channel) > len(roomChannelPrefix):
		return ChannelRoom, strings.TrimPrefix(channel, roomChannelPrefix)
	case strings.HasPrefix(channel, invitationChannelPrefix) && len(channel) > len(invitationChannelPrefix):
		return ChannelInvitations, strings.TrimPrefix(channel, invitationChannelPrefix)
	default:
		return ChannelUnknown, ""
	}
}
