package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type roomPlayerRepository struct {
	db *gorm.DB
}

func NewRoomPlayerRepository(db *gorm.DB) *roomPlayerRepository {
	return &roomPlayerRepository{db: db}
}

// Create is a no-op when the profile is already in the room.
func (r *roomPlayerRepository) Create(ctx context.Context, player *domain.RoomPlayer) error {
	return r.db.WithContext(ctx).
		Omit("Profile", "Room").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(player).Error
}

func (r *roomPlayerRepository) GetByRoomID(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomPlayer, error) {
	var players []*domain.RoomPlayer
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("room_id = ?", roomID).
		Order("joined_at").
		Find(&players).Error
	if err != nil {
		return nil, err
	}
	return players, nil
}

func (r *roomPlayerRepository) GetByRoomAndProfile(ctx context.Context, roomID, profileID uuid.UUID) (*domain.RoomPlayer, error) {
	var player domain.RoomPlayer
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND profile_id = ?", roomID, profileID).
		First(&player).Error
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (r *roomPlayerRepository) Delete(ctx context.Context, roomID, profileID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&domain.RoomPlayer{}, "room_id = ? AND profile_id = ?", roomID, profileID).Error
}
