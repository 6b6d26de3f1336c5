package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/gorm"
)

type gameRepository struct {
	db *gorm.DB
}

func NewGameRepository(db *gorm.DB) *gameRepository {
	return &gameRepository{db: db}
}

func (r *gameRepository) CreateSession(ctx context.Context, session *domain.GameSession) error {
	return r.db.WithContext(ctx).Omit("Room").Create(session).Error
}

func (r *gameRepository) GetActiveSession(ctx context.Context, roomID uuid.UUID) (*domain.GameSession, error) {
	var session domain.GameSession
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND status = ?", roomID, domain.GameSessionActive).
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *gameRepository) UpdateSession(ctx context.Context, session *domain.GameSession) error {
	return r.db.WithContext(ctx).Omit("Room").Save(session).Error
}

// CreateRound inserts the round and its participants.
func (r *gameRepository) CreateRound(ctx context.Context, round *domain.SessionRound) error {
	return r.db.WithContext(ctx).Omit("Session", "Set").Create(round).Error
}

func (r *gameRepository) GetRound(ctx context.Context, id uuid.UUID) (*domain.SessionRound, error) {
	var round domain.SessionRound
	err := r.db.WithContext(ctx).
		Preload("Session").
		Preload("Participants").
		Preload("Participants.Profile").
		First(&round, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func (r *gameRepository) GetLatestRound(ctx context.Context, roomID uuid.UUID) (*domain.SessionRound, error) {
	var round domain.SessionRound
	err := r.db.WithContext(ctx).
		Preload("Session").
		Preload("Participants").
		Preload("Participants.Profile").
		Where("session_id IN (?)", r.db.Model(&domain.GameSession{}).Select("id").Where("room_id = ?", roomID)).
		Order("created_at DESC").
		First(&round).Error
	if err != nil {
		return nil, err
	}
	return &round, nil
}

func (r *gameRepository) RemoveParticipant(ctx context.Context, roundID, profileID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("round_id = ? AND profile_id = ?", roundID, profileID).
		Delete(&domain.RoundParticipant{}).Error
}

func (r *gameRepository) CountRounds(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.SessionRound{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return int(count), err
}

func (r *gameRepository) UpdateRound(ctx context.Context, round *domain.SessionRound) error {
	return r.db.WithContext(ctx).
		Model(&domain.SessionRound{}).
		Where("id = ?", round.ID).
		Updates(map[string]interface{}{
			"started_at":  round.StartedAt,
			"ended_at":    round.EndedAt,
			"revealed_at": round.RevealedAt,
		}).Error
}

func (r *gameRepository) IsSetUsed(ctx context.Context, setID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.SessionRound{}).
		Where("set_id = ?", setID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gameRepository) IsSetRevealed(ctx context.Context, setID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.SessionRound{}).
		Where("set_id = ? AND revealed_at IS NOT NULL", setID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateResult inserts a result with its answers. A second submission for the
// same round and profile fails with gorm.ErrDuplicatedKey.
func (r *gameRepository) CreateResult(ctx context.Context, result *domain.RoundResult) error {
	return r.db.WithContext(ctx).Omit("Profile", "Round").Create(result).Error
}

func (r *gameRepository) GetResults(ctx context.Context, roundID uuid.UUID) ([]*domain.RoundResult, error) {
	var results []*domain.RoundResult
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("row_number") }).
		Where("round_id = ?", roundID).
		Order("submitted_at").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *gameRepository) GetResultsByProfile(ctx context.Context, profileID uuid.UUID, since time.Time) ([]*domain.RoundResult, error) {
	var results []*domain.RoundResult
	err := r.db.WithContext(ctx).
		Preload("Round").
		Where("profile_id = ? AND submitted_at >= ?", profileID, since).
		Order("submitted_at").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
