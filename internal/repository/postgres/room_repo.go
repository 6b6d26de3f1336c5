package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/gorm"
)

type roomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) *roomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *domain.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		Preload("Host").
		First(&room, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *roomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	var room domain.Room
	err := r.db.WithContext(ctx).
		Preload("Host").
		First(&room, "code = ?", code).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateSetup writes the host-editable columns while the room is waiting.
// It reports false when the room has already left waiting.
func (r *roomRepository) UpdateSetup(ctx context.Context, room *domain.Room) (bool, error) {
	now := r.db.NowFunc()
	res := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ? AND status = ?", room.ID, domain.RoomStatusWaiting).
		Updates(map[string]interface{}{
			"name":          room.Name,
			"timer_minutes": room.TimerMinutes,
			"settings":      room.Settings,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		room.UpdatedAt = now
	}
	return res.RowsAffected == 1, nil
}

func (r *roomRepository) UpdateIfStatus(ctx context.Context, room *domain.Room, expected domain.RoomStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ? AND status = ?", room.ID, expected).
		Select("status", "timer_minutes", "timer_started_at", "paused_at", "countdown_started_at", "updated_at").
		Updates(map[string]interface{}{
			"status":               room.Status,
			"timer_minutes":        room.TimerMinutes,
			"timer_started_at":     room.TimerStartedAt,
			"paused_at":            room.PausedAt,
			"countdown_started_at": room.CountdownStartedAt,
			"updated_at":           r.db.NowFunc(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *roomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.Room{}, "id = ?", id).Error
}

// GetByProfileID returns rooms the profile hosts or has joined, newest first.
func (r *roomRepository) GetByProfileID(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]*domain.Room, error) {
	var rooms []*domain.Room
	err := r.db.WithContext(ctx).
		Preload("Host").
		Where("host_id = ? OR id IN (?)", profileID,
			r.db.Model(&domain.RoomPlayer{}).Select("room_id").Where("profile_id = ?", profileID)).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *roomRepository) ListByStatus(ctx context.Context, statuses ...domain.RoomStatus) ([]*domain.Room, error) {
	var rooms []*domain.Room
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}
