package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/gorm"
)

type setRepository struct {
	db *gorm.DB
}

func NewSetRepository(db *gorm.DB) *setRepository {
	return &setRepository{db: db}
}

// Create inserts the set together with its rows.
func (r *setRepository) Create(ctx context.Context, set *domain.RoomSet) error {
	return r.db.WithContext(ctx).Omit("Room").Create(set).Error
}

func orderedRows(db *gorm.DB) *gorm.DB {
	return db.Order("row_number")
}

func (r *setRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RoomSet, error) {
	var set domain.RoomSet
	err := r.db.WithContext(ctx).
		Preload("Rows", orderedRows).
		First(&set, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &set, nil
}

func (r *setRepository) GetByRoomID(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomSet, error) {
	var sets []*domain.RoomSet
	err := r.db.WithContext(ctx).
		Preload("Rows", orderedRows).
		Where("room_id = ?", roomID).
		Order("number").
		Find(&sets).Error
	if err != nil {
		return nil, err
	}
	return sets, nil
}

func (r *setRepository) NextNumber(ctx context.Context, roomID uuid.UUID) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&domain.RoomSet{}).
		Where("room_id = ?", roomID).
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

func (r *setRepository) UpdateRow(ctx context.Context, row *domain.RoomSetRow) error {
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *setRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.RoomSetRow{}, "set_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.RoomSet{}, "id = ?", id).Error
	})
}
