package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RoomMode string

const (
	RoomModeTriangulation RoomMode = "triangulation"
	RoomModeCupping       RoomMode = "cupping"
)

func (m RoomMode) Valid() bool {
	return m == RoomModeTriangulation || m == RoomModeCupping
}

type RoomStatus string

const (
	RoomStatusWaiting   RoomStatus = "waiting"
	RoomStatusCountdown RoomStatus = "countdown"
	RoomStatusPlaying   RoomStatus = "playing"
	RoomStatusPaused    RoomStatus = "paused"
	RoomStatusInputting RoomStatus = "inputting"
	RoomStatusFinished  RoomStatus = "finished"
)

var roomTransitions = map[RoomStatus][]RoomStatus{
	RoomStatusWaiting:   {RoomStatusCountdown, RoomStatusFinished},
	RoomStatusCountdown: {RoomStatusPlaying, RoomStatusWaiting, RoomStatusFinished},
	RoomStatusPlaying:   {RoomStatusPaused, RoomStatusInputting, RoomStatusWaiting, RoomStatusFinished},
	RoomStatusPaused:    {RoomStatusPlaying, RoomStatusInputting, RoomStatusWaiting, RoomStatusFinished},
	RoomStatusInputting: {RoomStatusWaiting, RoomStatusFinished},
}

// CanTransition reports whether the room may move from s to next.
func (s RoomStatus) CanTransition(next RoomStatus) bool {
	for _, allowed := range roomTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InRound reports whether a round timer is active or has just run out.
func (s RoomStatus) InRound() bool {
	return s == RoomStatusPlaying || s == RoomStatusPaused || s == RoomStatusInputting
}

const (
	RoomCodeLength   = 6
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	MinTimerMinutes = 1
	MaxTimerMinutes = 60
	MaxRoomNameLen  = 60
)

type Room struct {
	ID                 uuid.UUID                        `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Code               string                           `json:"code" gorm:"type:varchar(6);uniqueIndex;not null"`
	Name               string                           `json:"name" gorm:"type:varchar(60);not null"`
	HostID             uuid.UUID                        `json:"hostId" gorm:"type:uuid;not null;index"`
	Mode               RoomMode                         `json:"mode" gorm:"type:varchar(20);not null;default:'triangulation'"`
	Status             RoomStatus                       `json:"status" gorm:"type:varchar(20);not null;default:'waiting'"`
	TimerMinutes       int                              `json:"timerMinutes" gorm:"not null;default:8"`
	TimerStartedAt     *time.Time                       `json:"timerStartedAt"`
	PausedAt           *time.Time                       `json:"pausedAt"`
	CountdownStartedAt *time.Time                       `json:"countdownStartedAt"`
	Settings           datatypes.JSONType[RoomSettings] `json:"settings" gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt          time.Time                        `json:"createdAt"`
	UpdatedAt          time.Time                        `json:"updatedAt"`

	Host *UserProfile `json:"host,omitempty" gorm:"foreignKey:HostID;constraint:OnDelete:CASCADE"`
}

// RoomSettings is the JSON document stored in Room.Settings.
type RoomSettings struct {
	FormType CuppingFormType `json:"formType,omitempty"`
}

func (r *Room) IsHost(profileID uuid.UUID) bool {
	return r.HostID == profileID
}

// Transition moves the room to next, enforcing the lifecycle table.
func (r *Room) Transition(next RoomStatus) error {
	if !r.Status.CanTransition(next) {
		return ErrInvalidTransition
	}
	r.Status = next
	return nil
}

// Clock returns the timer view of the room's current round.
func (r *Room) Clock() RoundClock {
	return RoundClock{
		StartedAt: r.TimerStartedAt,
		PausedAt:  r.PausedAt,
		Duration:  time.Duration(r.TimerMinutes) * time.Minute,
	}
}

func ValidateTimerMinutes(minutes int) error {
	if minutes < MinTimerMinutes || minutes > MaxTimerMinutes {
		return ErrInvalidTimer
	}
	return nil
}

func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > MaxRoomNameLen {
		return ErrInvalidRoomName
	}
	return nil
}

// GenerateRoomCode returns a random join code without ambiguous glyphs.
func GenerateRoomCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(RoomCodeAlphabet)))
	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(RoomCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeRoomCode upper-cases and trims user input.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(RoomCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

type RoomPlayer struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoomID    uuid.UUID `json:"roomId" gorm:"type:uuid;not null;uniqueIndex:idx_room_player"`
	ProfileID uuid.UUID `json:"profileId" gorm:"type:uuid;not null;uniqueIndex:idx_room_player"`
	JoinedAt  time.Time `json:"joinedAt" gorm:"autoCreateTime"`

	Profile *UserProfile `json:"profile,omitempty" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
	Room    *Room        `json:"-" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

type RoomInvitation struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoomID      uuid.UUID        `json:"roomId" gorm:"type:uuid;not null;index"`
	InviterID   uuid.UUID        `json:"inviterId" gorm:"type:uuid;not null"`
	InviteeID   uuid.UUID        `json:"inviteeId" gorm:"type:uuid;not null;index"`
	Status      InvitationStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	CreatedAt   time.Time        `json:"createdAt"`
	RespondedAt *time.Time       `json:"respondedAt"`

	Room    *Room        `json:"room,omitempty" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	Inviter *UserProfile `json:"inviter,omitempty" gorm:"foreignKey:InviterID;constraint:OnDelete:CASCADE"`
	Invitee *UserProfile `json:"invitee,omitempty" gorm:"foreignKey:InviteeID;constraint:OnDelete:CASCADE"`
}
