package domain

import (
	"time"

	"github.com/google/uuid"
)

type GameSessionStatus string

const (
	GameSessionActive GameSessionStatus = "active"
	GameSessionEnded  GameSessionStatus = "ended"
)

// GameSession groups the rounds played in a room between a first start and
// the host ending the session.
type GameSession struct {
	ID        uuid.UUID         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoomID    uuid.UUID         `json:"roomId" gorm:"type:uuid;not null;index"`
	Status    GameSessionStatus `json:"status" gorm:"type:varchar(10);not null;default:'active'"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   *time.Time        `json:"endedAt"`

	Room *Room `json:"-" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

type SessionRound struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionID    uuid.UUID  `json:"sessionId" gorm:"type:uuid;not null;index"`
	SetID        uuid.UUID  `json:"setId" gorm:"type:uuid;not null"`
	RoundNumber  int        `json:"roundNumber" gorm:"not null"`
	TimerMinutes int        `json:"timerMinutes" gorm:"not null"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt"`
	RevealedAt   *time.Time `json:"revealedAt"`

	Participants []*RoundParticipant `json:"participants,omitempty" gorm:"foreignKey:RoundID;constraint:OnDelete:CASCADE"`
	Session      *GameSession        `json:"-" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Set          *RoomSet            `json:"-" gorm:"foreignKey:SetID"`
}

func (r *SessionRound) Ended() bool {
	return r.EndedAt != nil
}

func (r *SessionRound) Revealed() bool {
	return r.RevealedAt != nil
}

type RoundParticipant struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoundID   uuid.UUID `json:"roundId" gorm:"type:uuid;not null;uniqueIndex:idx_round_participant"`
	ProfileID uuid.UUID `json:"profileId" gorm:"type:uuid;not null;uniqueIndex:idx_round_participant"`

	Profile *UserProfile `json:"profile,omitempty" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
}

// RoundResult is one player's submission for a round. The unique index makes
// "each player submits once" a storage guarantee.
type RoundResult struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoundID      uuid.UUID `json:"roundId" gorm:"type:uuid;not null;uniqueIndex:idx_round_result"`
	ProfileID    uuid.UUID `json:"profileId" gorm:"type:uuid;not null;uniqueIndex:idx_round_result"`
	ElapsedMs    int64     `json:"elapsedMs" gorm:"not null"`
	CorrectCount int       `json:"correctCount" gorm:"not null"`
	TotalCount   int       `json:"totalCount" gorm:"not null"`
	Overtime     bool      `json:"overtime" gorm:"not null;default:false"`
	SubmittedAt  time.Time `json:"submittedAt"`

	Answers []*PlayerAnswer `json:"answers,omitempty" gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE"`
	Profile *UserProfile    `json:"profile,omitempty" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
	Round   *SessionRound   `json:"-" gorm:"foreignKey:RoundID;constraint:OnDelete:CASCADE"`
}

type PlayerAnswer struct {
	ID               uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ResultID         uuid.UUID `json:"resultId" gorm:"type:uuid;not null;index"`
	RowNumber        int       `json:"rowNumber" gorm:"not null"`
	SelectedPosition int       `json:"selectedPosition" gorm:"not null"`
	IsCorrect        bool      `json:"isCorrect" gorm:"not null"`
	IsOvertime       bool      `json:"isOvertime" gorm:"not null;default:false"`
	AnsweredAtMs     int64     `json:"answeredAtMs" gorm:"not null"`
}

// AnswerInput is a player's pick for one row. AnsweredAtMs is the timer
// elapsed time when the row was answered; zero means "at submission".
type AnswerInput struct {
	RowNumber        int   `json:"rowNumber"`
	SelectedPosition int   `json:"selectedPosition"`
	AnsweredAtMs     int64 `json:"answeredAtMs"`
}

// GradeAnswers scores a submission against the set. Answers are checked for
// rows 1-8 exactly once each. Rows answered after the timer are flagged as
// overtime; AnsweredAtMs is clamped to [0, elapsedMs].
func GradeAnswers(rows []*RoomSetRow, answers []AnswerInput, elapsedMs int64, timer time.Duration) ([]*PlayerAnswer, int, error) {
	if len(answers) != SetRowCount {
		return nil, 0, ErrInvalidAnswers
	}
	byRow := make(map[int]*RoomSetRow, len(rows))
	for _, r := range rows {
		byRow[r.RowNumber] = r
	}

	limitMs := timer.Milliseconds()
	seen := make(map[int]bool, SetRowCount)
	graded := make([]*PlayerAnswer, 0, len(answers))
	correct := 0
	for _, a := range answers {
		row, ok := byRow[a.RowNumber]
		if !ok || seen[a.RowNumber] {
			return nil, 0, ErrInvalidAnswers
		}
		if a.SelectedPosition < 1 || a.SelectedPosition > CupsPerRow {
			return nil, 0, ErrInvalidAnswers
		}
		seen[a.RowNumber] = true

		at := a.AnsweredAtMs
		if at <= 0 || at > elapsedMs {
			at = elapsedMs
		}
		isCorrect := a.SelectedPosition == row.OddPosition
		if isCorrect {
			correct++
		}
		graded = append(graded, &PlayerAnswer{
			ID:               uuid.New(),
			RowNumber:        a.RowNumber,
			SelectedPosition: a.SelectedPosition,
			IsCorrect:        isCorrect,
			IsOvertime:       at > limitMs,
			AnsweredAtMs:     at,
		})
	}
	return graded, correct, nil
}
