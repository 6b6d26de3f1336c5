package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
)

type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.UserProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error)
	GetByClerkID(ctx context.Context, clerkID string) (*domain.UserProfile, error)
	GetByUsername(ctx context.Context, username string) (*domain.UserProfile, error)
	SearchByUsername(ctx context.Context, prefix string, limit int) ([]*domain.UserProfile, error)
	Update(ctx context.Context, profile *domain.UserProfile) error
	DeleteByClerkID(ctx context.Context, clerkID string) error
}

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	UpdateSetup(ctx context.Context, room *domain.Room) (bool, error)
	// UpdateIfStatus persists room only when the stored status still equals
	// expected. It reports whether a row was updated.
	UpdateIfStatus(ctx context.Context, room *domain.Room, expected domain.RoomStatus) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByProfileID(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]*domain.Room, error)
	ListByStatus(ctx context.Context, statuses ...domain.RoomStatus) ([]*domain.Room, error)
}

type RoomPlayerRepository interface {
	Create(ctx context.Context, player *domain.RoomPlayer) error
	GetByRoomID(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomPlayer, error)
	GetByRoomAndProfile(ctx context.Context, roomID, profileID uuid.UUID) (*domain.RoomPlayer, error)
	Delete(ctx context.Context, roomID, profileID uuid.UUID) error
}

type InvitationRepository interface {
	Create(ctx context.Context, invitation *domain.RoomInvitation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RoomInvitation, error)
	GetPending(ctx context.Context, roomID, inviteeID uuid.UUID) (*domain.RoomInvitation, error)
	ListPendingByInvitee(ctx context.Context, inviteeID uuid.UUID) ([]*domain.RoomInvitation, error)
	Update(ctx context.Context, invitation *domain.RoomInvitation) error
}

type CoffeeRepository interface {
	Create(ctx context.Context, coffee *domain.RoomCoffee) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RoomCoffee, error)
	GetByRoomID(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomCoffee, error)
	IsReferenced(ctx context.Context, coffeeID uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type SetRepository interface {
	Create(ctx context.Context, set *domain.RoomSet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RoomSet, error)
	GetByRoomID(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomSet, error)
	NextNumber(ctx context.Context, roomID uuid.UUID) (int, error)
	UpdateRow(ctx context.Context, row *domain.RoomSetRow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type GameRepository interface {
	CreateSession(ctx context.Context, session *domain.GameSession) error
	GetActiveSession(ctx context.Context, roomID uuid.UUID) (*domain.GameSession, error)
	UpdateSession(ctx context.Context, session *domain.GameSession) error

	CreateRound(ctx context.Context, round *domain.SessionRound) error
	GetRound(ctx context.Context, id uuid.UUID) (*domain.SessionRound, error)
	GetLatestRound(ctx context.Context, roomID uuid.UUID) (*domain.SessionRound, error)
	CountRounds(ctx context.Context, sessionID uuid.UUID) (int, error)
	UpdateRound(ctx context.Context, round *domain.SessionRound) error
	IsSetUsed(ctx context.Context, setID uuid.UUID) (bool, error)
	IsSetRevealed(ctx context.Context, setID uuid.UUID) (bool, error)
	RemoveParticipant(ctx context.Context, roundID, profileID uuid.UUID) error

	CreateResult(ctx context.Context, result *domain.RoundResult) error
	GetResults(ctx context.Context, roundID uuid.UUID) ([]*domain.RoundResult, error)
	GetResultsByProfile(ctx context.Context, profileID uuid.UUID, since time.Time) ([]*domain.RoundResult, error)
}

type CuppingRepository interface {
	CreateSession(ctx context.Context, session *domain.CuppingSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*domain.CuppingSession, error)
	GetActiveSessionByRoom(ctx context.Context, roomID uuid.UUID) (*domain.CuppingSession, error)
	GetSessionsByProfile(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]*domain.CuppingSession, error)
	UpdateSession(ctx context.Context, session *domain.CuppingSession) error

	CreateSample(ctx context.Context, sample *domain.CuppingSample) error
	GetSample(ctx context.Context, id uuid.UUID) (*domain.CuppingSample, error)
	GetSamples(ctx context.Context, sessionID uuid.UUID) ([]*domain.CuppingSample, error)
	NextSampleNumber(ctx context.Context, sessionID uuid.UUID) (int, error)

	CreateScore(ctx context.Context, score *domain.CuppingScore) error
	GetScores(ctx context.Context, sessionID uuid.UUID) ([]*domain.CuppingScore, error)
	GetScoresByProfile(ctx context.Context, profileID uuid.UUID, since time.Time) ([]*domain.CuppingScore, error)
}

type Repositories struct {
	Profile    ProfileRepository
	Room       RoomRepository
	RoomPlayer RoomPlayerRepository
	Invitation InvitationRepository
	Coffee     CoffeeRepository
	Set        SetRepository
	Game       GameRepository
	Cupping    CuppingRepository
}
