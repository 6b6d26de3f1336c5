package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/metrics"
	"github.com/tastelab/cupping-rooms/internal/repository"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

const maxCodeAttempts = 10

// Reasons carried by room_updated events.
const (
	ReasonCreated         = "created"
	ReasonPlayerJoined    = "player_joined"
	ReasonPlayerLeft      = "player_left"
	ReasonSettingsChanged = "settings_changed"
	ReasonDeleted         = "deleted"
	ReasonCoffeesChanged  = "coffees_changed"
	ReasonSetsChanged     = "sets_changed"
	ReasonCountdownCancel = "countdown_cancelled"
	ReasonTimerStopped    = "timer_stopped"
	ReasonCuppingChanged  = "cupping_changed"
)

type RoomService struct {
	rooms       repository.RoomRepository
	players     repository.RoomPlayerRepository
	invitations repository.InvitationRepository
	profiles    repository.ProfileRepository
	events      *websocket.EventEmitter
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// Set by NewServices; drops leavers from an open round.
	game *GameService
}

func NewRoomService(repos *repository.Repositories, events *websocket.EventEmitter, m *metrics.Metrics, logger *slog.Logger) *RoomService {
	return &RoomService{
		rooms:       repos.Room,
		players:     repos.RoomPlayer,
		invitations: repos.Invitation,
		profiles:    repos.Profile,
		events:      events,
		metrics:     m,
		logger:      logger,
	}
}

type CreateRoomInput struct {
	Name         string                 `json:"name" validate:"required,max=60"`
	Mode         domain.RoomMode        `json:"mode" validate:"omitempty,oneof=triangulation cupping"`
	TimerMinutes int                    `json:"timerMinutes" validate:"omitempty,min=1,max=60"`
	FormType     domain.CuppingFormType `json:"formType" validate:"omitempty,oneof=sca simple"`
}

// UpdateRoomSettingsInput only changes the fields that are set
type UpdateRoomSettingsInput struct {
	Name         *string                 `json:"name" validate:"omitempty,max=60"`
	TimerMinutes *int                    `json:"timerMinutes" validate:"omitempty,min=1,max=60"`
	FormType     *domain.CuppingFormType `json:"formType" validate:"omitempty,oneof=sca simple"`
}

func (s *RoomService) CreateRoom(ctx context.Context, host *domain.UserProfile, input CreateRoomInput) (*domain.Room, error) {
	if !host.OnboardingCompleted {
		return nil, domain.ErrOnboardingRequired
	}
	if input.Mode == "" {
		input.Mode = domain.RoomModeTriangulation
	}
	if !input.Mode.Valid() {
		return nil, domain.ErrInvalidRoomMode
	}
	if input.TimerMinutes == 0 {
		input.TimerMinutes = 8
	}
	if err := domain.ValidateTimerMinutes(input.TimerMinutes); err != nil {
		return nil, err
	}
	if err := domain.ValidateRoomName(input.Name); err != nil {
		return nil, err
	}

	room := &domain.Room{
		Name:         strings.TrimSpace(input.Name),
		HostID:       host.ID,
		Mode:         input.Mode,
		Status:       domain.RoomStatusWaiting,
		TimerMinutes: input.TimerMinutes,
	}
	if input.Mode == domain.RoomModeCupping {
		form := input.FormType
		if form == "" {
			form = domain.CuppingFormSCA
		}
		if !form.Valid() {
			return nil, domain.ErrInvalidFormType
		}
		room.Settings = datatypes.NewJSONType(domain.RoomSettings{FormType: form})
	}

	if err := s.insertWithUniqueCode(ctx, room); err != nil {
		return nil, err
	}

	if err := s.players.Create(ctx, &domain.RoomPlayer{ID: uuid.New(), RoomID: room.ID, ProfileID: host.ID}); err != nil {
		if delErr := s.rooms.Delete(ctx, room.ID); delErr != nil {
			s.logger.Error("room_rollback_failed", "room_id", room.ID, "err", delErr)
		}
		return nil, fmt.Errorf("add host to room: %w", err)
	}

	room.Host = host
	if s.metrics != nil {
		s.metrics.RoomsCreated.Inc()
	}
	s.logger.Info("room_created", "room_id", room.ID, "code", room.Code, "mode", room.Mode, "host_id", host.ID)
	s.events.RoomUpdated(ctx, room.ID, string(room.Status), ReasonCreated)
	return room, nil
}

// insertWithUniqueCode retries code generation when the unique index
// reports a collision.
func (s *RoomService) insertWithUniqueCode(ctx context.Context, room *domain.Room) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := domain.GenerateRoomCode()
		if err != nil {
			return err
		}
		room.ID = uuid.New()
		room.Code = code

		err = s.rooms.Create(ctx, room)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("create room: %w", err)
		}
		s.logger.Debug("room_code_collision", "code", code, "attempt", attempt+1)
	}
	return domain.ErrCodeGenerationFailed
}

// GetRoom resolves a room by UUID or by join code, case-insensitively.
func (s *RoomService) GetRoom(ctx context.Context, idOrCode string) (*domain.Room, error) {
	var (
		room *domain.Room
		err  error
	)
	if id, parseErr := uuid.Parse(idOrCode); parseErr == nil {
		room, err = s.rooms.GetByID(ctx, id)
	} else {
		code := domain.NormalizeRoomCode(idOrCode)
		if !domain.IsValidRoomCode(code) {
			return nil, domain.ErrRoomNotFound
		}
		room, err = s.rooms.GetByCode(ctx, code)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (s *RoomService) getByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// GetRoomForMember loads a room the profile hosts or has joined.
func (s *RoomService) GetRoomForMember(ctx context.Context, roomID, profileID uuid.UUID) (*domain.Room, error) {
	room, err := s.getByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMember(ctx, room, profileID); err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoomForHost loads a room and requires profileID to be its host.
func (s *RoomService) GetRoomForHost(ctx context.Context, roomID, profileID uuid.UUID) (*domain.Room, error) {
	room, err := s.getByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsHost(profileID) {
		return nil, domain.ErrNotRoomHost
	}
	return room, nil
}

func (s *RoomService) checkMember(ctx context.Context, room *domain.Room, profileID uuid.UUID) error {
	if room.IsHost(profileID) {
		return nil
	}
	if _, err := s.players.GetByRoomAndProfile(ctx, room.ID, profileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotRoomMember
		}
		return err
	}
	return nil
}

// IsMember returns nil when profileID hosts or has joined the room.
func (s *RoomService) IsMember(ctx context.Context, roomID, profileID uuid.UUID) error {
	return isRoomMember(ctx, s.rooms, s.players, roomID, profileID)
}

// JoinRoom adds the profile to the room with the given code. Joining a room
// twice returns the room unchanged.
func (s *RoomService) JoinRoom(ctx context.Context, profile *domain.UserProfile, code string) (*domain.Room, error) {
	if !profile.OnboardingCompleted {
		return nil, domain.ErrOnboardingRequired
	}
	code = domain.NormalizeRoomCode(code)
	if !domain.IsValidRoomCode(code) {
		return nil, domain.ErrRoomNotFound
	}
	room, err := s.rooms.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return s.join(ctx, room, profile)
}

func (s *RoomService) join(ctx context.Context, room *domain.Room, profile *domain.UserProfile) (*domain.Room, error) {
	if err := s.checkMember(ctx, room, profile.ID); err == nil {
		return room, nil
	} else if !errors.Is(err, domain.ErrNotRoomMember) {
		return nil, err
	}
	if room.Status == domain.RoomStatusFinished {
		return nil, domain.ErrInvalidRoomState
	}

	if err := s.players.Create(ctx, &domain.RoomPlayer{ID: uuid.New(), RoomID: room.ID, ProfileID: profile.ID}); err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	s.logger.Info("room_joined", "room_id", room.ID, "profile_id", profile.ID)
	s.events.RoomUpdated(ctx, room.ID, string(room.Status), ReasonPlayerJoined)
	return room, nil
}

func (s *RoomService) LeaveRoom(ctx context.Context, roomID, profileID uuid.UUID) error {
	room, err := s.getByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsHost(profileID) {
		return domain.ErrHostCannotLeave
	}
	if err := s.checkMember(ctx, room, profileID); err != nil {
		return err
	}
	if err := s.players.Delete(ctx, roomID, profileID); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	if s.game != nil {
		if err := s.game.PlayerLeft(ctx, room, profileID); err != nil {
			s.logger.Warn("round_leave_failed", "room_id", room.ID, "profile_id", profileID, "err", err)
		}
	}
	s.events.RoomUpdated(ctx, room.ID, string(room.Status), ReasonPlayerLeft)
	return nil
}

// DeleteRoom removes a room that has never left the waiting state.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, profileID uuid.UUID) error {
	room, err := s.GetRoomForHost(ctx, roomID, profileID)
	if err != nil {
		return err
	}
	if room.Status != domain.RoomStatusWaiting {
		return domain.ErrInvalidRoomState
	}
	if err := s.rooms.Delete(ctx, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	s.logger.Info("room_deleted", "room_id", roomID)
	s.events.RoomUpdated(ctx, roomID, string(room.Status), ReasonDeleted)
	return nil
}

func (s *RoomService) ListMyRooms(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]*domain.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.rooms.GetByProfileID(ctx, profileID, limit, offset)
}

func (s *RoomService) ListPlayers(ctx context.Context, roomID, viewerID uuid.UUID) ([]*domain.RoomPlayer, error) {
	if _, err := s.GetRoomForMember(ctx, roomID, viewerID); err != nil {
		return nil, err
	}
	return s.players.GetByRoomID(ctx, roomID)
}

func (s *RoomService) UpdateSettings(ctx context.Context, roomID, profileID uuid.UUID, input UpdateRoomSettingsInput) (*domain.Room, error) {
	room, err := s.GetRoomForHost(ctx, roomID, profileID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomStatusWaiting {
		return nil, domain.ErrInvalidRoomState
	}

	if input.Name != nil {
		if err := domain.ValidateRoomName(*input.Name); err != nil {
			return nil, err
		}
		room.Name = strings.TrimSpace(*input.Name)
	}
	if input.TimerMinutes != nil {
		if err := domain.ValidateTimerMinutes(*input.TimerMinutes); err != nil {
			return nil, err
		}
		room.TimerMinutes = *input.TimerMinutes
	}
	if input.FormType != nil {
		if room.Mode != domain.RoomModeCupping {
			return nil, domain.ErrWrongRoomMode
		}
		if !input.FormType.Valid() {
			return nil, domain.ErrInvalidFormType
		}
		settings := room.Settings.Data()
		settings.FormType = *input.FormType
		room.Settings = datatypes.NewJSONType(settings)
	}

	// A round started since the read above wins.
	ok, err := s.rooms.UpdateSetup(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	if !ok {
		return nil, domain.ErrInvalidRoomState
	}
	s.events.RoomUpdated(ctx, room.ID, string(room.Status), ReasonSettingsChanged)
	return room, nil
}

// Invite creates a pending invitation from a room member to another user
// and notifies the invitee on their private channel.
func (s *RoomService) Invite(ctx context.Context, roomID uuid.UUID, inviter *domain.UserProfile, inviteeUsername string) (*domain.RoomInvitation, error) {
	room, err := s.GetRoomForMember(ctx, roomID, inviter.ID)
	if err != nil {
		return nil, err
	}
	if room.Status == domain.RoomStatusFinished {
		return nil, domain.ErrInvalidRoomState
	}

	invitee, err := s.profiles.GetByUsername(ctx, inviteeUsername)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	if invitee.ID == inviter.ID {
		return nil, domain.ErrCannotInviteSelf
	}
	if err := s.checkMember(ctx, room, invitee.ID); err == nil {
		return nil, domain.ErrAlreadyMember
	} else if !errors.Is(err, domain.ErrNotRoomMember) {
		return nil, err
	}
	if _, err := s.invitations.GetPending(ctx, room.ID, invitee.ID); err == nil {
		return nil, domain.ErrAlreadyInvited
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	invitation := &domain.RoomInvitation{
		ID:        uuid.New(),
		RoomID:    room.ID,
		InviterID: inviter.ID,
		InviteeID: invitee.ID,
		Status:    domain.InvitationPending,
	}
	if err := s.invitations.Create(ctx, invitation); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	invitation.Room = room
	invitation.Inviter = inviter
	invitation.Invitee = invitee

	s.events.InvitationCreated(ctx, invitee.ClerkID, websocket.InvitationCreatedPayload{
		InvitationID:    invitation.ID,
		RoomID:          room.ID,
		RoomName:        room.Name,
		RoomCode:        room.Code,
		InviterUsername: inviter.DisplayName(),
	})
	return invitation, nil
}

// RespondInvitation accepts or declines a pending invitation. Accepting
// joins the invitee to the room.
func (s *RoomService) RespondInvitation(ctx context.Context, invitationID uuid.UUID, profile *domain.UserProfile, accept bool) (*domain.RoomInvitation, error) {
	invitation, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, err
	}
	if invitation.InviteeID != profile.ID {
		return nil, domain.ErrInvitationNotFound
	}
	if invitation.Status != domain.InvitationPending {
		return nil, domain.ErrInvitationClosed
	}

	if accept {
		if invitation.Room == nil {
			return nil, domain.ErrRoomNotFound
		}
		if _, err := s.join(ctx, invitation.Room, profile); err != nil {
			return nil, err
		}
		invitation.Status = domain.InvitationAccepted
	} else {
		invitation.Status = domain.InvitationDeclined
	}
	now := time.Now().UTC()
	invitation.RespondedAt = &now

	if err := s.invitations.Update(ctx, invitation); err != nil {
		return nil, fmt.Errorf("update invitation: %w", err)
	}
	s.events.InvitationResponded(ctx, websocket.InvitationRespondedPayload{
		InvitationID: invitation.ID,
		RoomID:       invitation.RoomID,
		InviteeID:    profile.ID,
		Status:       string(invitation.Status),
	})
	return invitation, nil
}

func (s *RoomService) ListPendingInvitations(ctx context.Context, profileID uuid.UUID) ([]*domain.RoomInvitation, error) {
	return s.invitations.ListPendingByInvitee(ctx, profileID)
}
