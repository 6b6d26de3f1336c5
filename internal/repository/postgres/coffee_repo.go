package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/gorm"
)

type coffeeRepository struct {
	db *gorm.DB
}

func NewCoffeeRepository(db *gorm.DB) *coffeeRepository {
	return &coffeeRepository{db: db}
}

func (r *coffeeRepository) Create(ctx context.Context, coffee *domain.RoomCoffee) error {
	return r.db.WithContext(ctx).Omit("Room").Create(coffee).Error
}

func (r *coffeeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RoomCoffee, error) {
	var coffee domain.RoomCoffee
	err := r.db.WithContext(ctx).First(&coffee, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &coffee, nil
}

func (r *coffeeRepository) GetByRoomID(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomCoffee, error) {
	var coffees []*domain.RoomCoffee
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("label").
		Find(&coffees).Error
	if err != nil {
		return nil, err
	}
	return coffees, nil
}

func (r *coffeeRepository) IsReferenced(ctx context.Context, coffeeID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.RoomSetRow{}).
		Where("pair_coffee_id = ? OR odd_coffee_id = ?", coffeeID, coffeeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *coffeeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.RoomCoffee{}, "id = ?", id).Error
}
