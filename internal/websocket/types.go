package websocket

import (
	"time"

	"github.com/google/uuid"
)

// Payloads of server events. Timer events carry serverNow so clients can
// estimate their clock offset.

type GameStartPayload struct {
	RoomID             uuid.UUID  `json:"roomId"`
	RoundID            *uuid.UUID `json:"roundId,omitempty"`
	RoundNumber        int        `json:"roundNumber,omitempty"`
	SetID              *uuid.UUID `json:"setId,omitempty"`
	TimerMinutes       int        `json:"timerMinutes"`
	CountdownStartedAt time.Time  `json:"countdownStartedAt"`
	CountdownEndsAt    time.Time  `json:"countdownEndsAt"`
	ServerNow          time.Time  `json:"serverNow"`
}

type GamePlayingPayload struct {
	RoomID         uuid.UUID  `json:"roomId"`
	RoundID        *uuid.UUID `json:"roundId,omitempty"`
	TimerStartedAt time.Time  `json:"timerStartedAt"`
	TimerMinutes   int        `json:"timerMinutes"`
	ServerNow      time.Time  `json:"serverNow"`
}

type GamePausePayload struct {
	RoomID      uuid.UUID `json:"roomId"`
	PausedAt    time.Time `json:"pausedAt"`
	RemainingMs int64     `json:"remainingMs"`
	ServerNow   time.Time `json:"serverNow"`
}

type GameResumePayload struct {
	RoomID         uuid.UUID `json:"roomId"`
	TimerStartedAt time.Time `json:"timerStartedAt"`
	TimerMinutes   int       `json:"timerMinutes"`
	RemainingMs    int64     `json:"remainingMs"`
	ServerNow      time.Time `json:"serverNow"`
}

type TimerEndedPayload struct {
	RoomID    uuid.UUID  `json:"roomId"`
	RoundID   *uuid.UUID `json:"roundId,omitempty"`
	ServerNow time.Time  `json:"serverNow"`
}

type PlayerFinishedPayload struct {
	RoomID           uuid.UUID `json:"roomId"`
	RoundID          uuid.UUID `json:"roundId"`
	ProfileID        uuid.UUID `json:"profileId"`
	Username         string    `json:"username"`
	SubmittedCount   int       `json:"submittedCount"`
	ParticipantCount int       `json:"participantCount"`
}

type ResultSummary struct {
	ProfileID    uuid.UUID `json:"profileId"`
	Username     string    `json:"username"`
	CorrectCount int       `json:"correctCount"`
	TotalCount   int       `json:"totalCount"`
	ElapsedMs    int64     `json:"elapsedMs"`
	Overtime     bool      `json:"overtime"`
}

type RoundEndedPayload struct {
	RoomID  uuid.UUID       `json:"roomId"`
	RoundID uuid.UUID       `json:"roundId"`
	Results []ResultSummary `json:"results"`
}

type SessionEndedPayload struct {
	RoomID    uuid.UUID `json:"roomId"`
	SessionID uuid.UUID `json:"sessionId"`
	ServerNow time.Time `json:"serverNow"`
}

type RoomUpdatedPayload struct {
	RoomID uuid.UUID `json:"roomId"`
	Status string    `json:"status"`
	Reason string    `json:"reason"`
}

type CuppingScoreSubmittedPayload struct {
	SessionID  uuid.UUID `json:"sessionId"`
	SampleID   uuid.UUID `json:"sampleId"`
	ProfileID  uuid.UUID `json:"profileId"`
	Username   string    `json:"username"`
	TotalScore float64   `json:"totalScore"`
}

type InvitationCreatedPayload struct {
	InvitationID    uuid.UUID `json:"invitationId"`
	RoomID          uuid.UUID `json:"roomId"`
	RoomName        string    `json:"roomName"`
	RoomCode        string    `json:"roomCode"`
	InviterUsername string    `json:"inviterUsername"`
}

type InvitationRespondedPayload struct {
	InvitationID uuid.UUID `json:"invitationId"`
	RoomID       uuid.UUID `json:"roomId"`
	InviteeID    uuid.UUID `json:"inviteeId"`
	Status       string    `json:"status"`
}
