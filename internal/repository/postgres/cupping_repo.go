package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/gorm"
)

type cuppingRepository struct {
	db *gorm.DB
}

func NewCuppingRepository(db *gorm.DB) *cuppingRepository {
	return &cuppingRepository{db: db}
}

func (r *cuppingRepository) CreateSession(ctx context.Context, session *domain.CuppingSession) error {
	return r.db.WithContext(ctx).Omit("Host", "Room", "Samples").Create(session).Error
}

func (r *cuppingRepository) GetSession(ctx context.Context, id uuid.UUID) (*domain.CuppingSession, error) {
	var session domain.CuppingSession
	err := r.db.WithContext(ctx).
		Preload("Samples", func(db *gorm.DB) *gorm.DB { return db.Order("number") }).
		First(&session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *cuppingRepository) GetActiveSessionByRoom(ctx context.Context, roomID uuid.UUID) (*domain.CuppingSession, error) {
	var session domain.CuppingSession
	err := r.db.WithContext(ctx).
		Preload("Samples", func(db *gorm.DB) *gorm.DB { return db.Order("number") }).
		Where("room_id = ? AND status = ?", roomID, domain.CuppingSessionActive).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionsByProfile returns sessions the profile hosted or scored in.
func (r *cuppingRepository) GetSessionsByProfile(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]*domain.CuppingSession, error) {
	var sessions []*domain.CuppingSession
	err := r.db.WithContext(ctx).
		Where("host_id = ? OR id IN (?)", profileID,
			r.db.Model(&domain.CuppingScore{}).Select("session_id").Where("profile_id = ?", profileID)).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *cuppingRepository) UpdateSession(ctx context.Context, session *domain.CuppingSession) error {
	return r.db.WithContext(ctx).Omit("Host", "Room", "Samples").Save(session).Error
}

func (r *cuppingRepository) CreateSample(ctx context.Context, sample *domain.CuppingSample) error {
	return r.db.WithContext(ctx).Create(sample).Error
}

func (r *cuppingRepository) GetSample(ctx context.Context, id uuid.UUID) (*domain.CuppingSample, error) {
	var sample domain.CuppingSample
	err := r.db.WithContext(ctx).First(&sample, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

func (r *cuppingRepository) GetSamples(ctx context.Context, sessionID uuid.UUID) ([]*domain.CuppingSample, error) {
	var samples []*domain.CuppingSample
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("number").
		Find(&samples).Error
	if err != nil {
		return nil, err
	}
	return samples, nil
}

func (r *cuppingRepository) NextSampleNumber(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&domain.CuppingSample{}).
		Where("session_id = ?", sessionID).
		Select("MAX(number)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

func (r *cuppingRepository) CreateScore(ctx context.Context, score *domain.CuppingScore) error {
	return r.db.WithContext(ctx).Omit("Sample", "Profile").Create(score).Error
}

func (r *cuppingRepository) GetScores(ctx context.Context, sessionID uuid.UUID) ([]*domain.CuppingScore, error) {
	var scores []*domain.CuppingScore
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("session_id = ?", sessionID).
		Order("submitted_at").
		Find(&scores).Error
	if err != nil {
		return nil, err
	}
	return scores, nil
}

func (r *cuppingRepository) GetScoresByProfile(ctx context.Context, profileID uuid.UUID, since time.Time) ([]*domain.CuppingScore, error) {
	var scores []*domain.CuppingScore
	err := r.db.WithContext(ctx).
		Preload("Sample").
		Where("profile_id = ? AND submitted_at >= ?", profileID, since).
		Order("submitted_at").
		Find(&scores).Error
	if err != nil {
		return nil, err
	}
	return scores, nil
}
