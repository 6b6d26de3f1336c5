package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/repository"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

// RealtimeAuthorizer decides which realtime channels a connection may join:
// room channels for the host and players, invitation channels for their
// owner only.
type RealtimeAuthorizer struct {
	rooms   repository.RoomRepository
	players repository.RoomPlayerRepository
}

func NewRealtimeAuthorizer(repos *repository.Repositories) *RealtimeAuthorizer {
	return &RealtimeAuthorizer{rooms: repos.Room, players: repos.RoomPlayer}
}

func (a *RealtimeAuthorizer) AuthorizeChannel(ctx context.Context, id websocket.Identity, channel string) error {
	kind, key := websocket.ParseChannel(channel)
	switch kind {
	case websocket.ChannelInvitations:
		if key != id.ClerkID {
			return domain.ErrUnauthorized
		}
		return nil
	case websocket.ChannelRoom:
		roomID, err := uuid.Parse(key)
		if err != nil {
			return domain.ErrRoomNotFound
		}
		return isRoomMember(ctx, a.rooms, a.players, roomID, id.ProfileID)
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}
}

// isRoomMember returns nil when profileID hosts or has joined the room.
func isRoomMember(ctx context.Context, rooms repository.RoomRepository, players repository.RoomPlayerRepository, roomID, profileID uuid.UUID) error {
	room, err := rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrRoomNotFound
		}
		return err
	}
	if room.IsHost(profileID) {
		return nil
	}
	if _, err := players.GetByRoomAndProfile(ctx, roomID, profileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotRoomMember
		}
		return err
	}
	return nil
}
