package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"gorm.io/gorm"
)

type invitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) *invitationRepository {
	return &invitationRepository{db: db}
}

func (r *invitationRepository) Create(ctx context.Context, invitation *domain.RoomInvitation) error {
	return r.db.WithContext(ctx).Omit("Room", "Inviter", "Invitee").Create(invitation).Error
}

func (r *invitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.RoomInvitation, error) {
	var invitation domain.RoomInvitation
	err := r.db.WithContext(ctx).
		Preload("Room").
		Preload("Inviter").
		Preload("Invitee").
		First(&invitation, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *invitationRepository) GetPending(ctx context.Context, roomID, inviteeID uuid.UUID) (*domain.RoomInvitation, error) {
	var invitation domain.RoomInvitation
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND invitee_id = ? AND status = ?", roomID, inviteeID, domain.InvitationPending).
		First(&invitation).Error
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *invitationRepository) ListPendingByInvitee(ctx context.Context, inviteeID uuid.UUID) ([]*domain.RoomInvitation, error) {
	var invitations []*domain.RoomInvitation
	err := r.db.WithContext(ctx).
		Preload("Room").
		Preload("Inviter").
		Where("invitee_id = ? AND status = ?", inviteeID, domain.InvitationPending).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *invitationRepository) Update(ctx context.Context, invitation *domain.RoomInvitation) error {
	return r.db.WithContext(ctx).Omit("Room", "Inviter", "Invitee").Save(invitation).Error
}
