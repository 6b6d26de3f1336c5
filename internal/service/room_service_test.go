package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
	"github.com/tastelab/cupping-rooms/internal/testutil"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

func TestRoomService_CreateRoom(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)

	tests := []struct {
		name    string
		input   service.CreateRoomInput
		wantErr error
	}{
		{
			name:  "triangulation with defaults",
			input: service.CreateRoomInput{Name: "Tuesday triangles"},
		},
		{
			name:  "cupping with simple form",
			input: service.CreateRoomInput{Name: "Farm lots", Mode: domain.RoomModeCupping, FormType: domain.CuppingFormSimple, TimerMinutes: 15},
		},
		{
			name:    "timer out of range",
			input:   service.CreateRoomInput{Name: "Too long", TimerMinutes: 61},
			wantErr: domain.ErrInvalidTimer,
		},
		{
			name:    "blank name",
			input:   service.CreateRoomInput{Name: "   "},
			wantErr: domain.ErrInvalidRoomName,
		},
		{
			name:    "unknown mode",
			input:   service.CreateRoomInput{Name: "Odd", Mode: "blind"},
			wantErr: domain.ErrInvalidRoomMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, err := env.Services.Room.CreateRoom(ctx, host, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, host.ID, room.HostID)
			assert.Equal(t, domain.RoomStatusWaiting, room.Status)
			assert.True(t, domain.IsValidRoomCode(room.Code), "code %q", room.Code)

			players, err := env.Services.Room.ListPlayers(ctx, room.ID, host.ID)
			require.NoError(t, err)
			require.Len(t, players, 1)
			assert.Equal(t, host.ID, players[0].ProfileID)

			if tt.input.Mode == domain.RoomModeCupping {
				assert.Equal(t, tt.input.FormType, room.Settings.Data().FormType)
			} else {
				assert.Equal(t, 8, room.TimerMinutes)
			}
		})
	}

	assert.NotEmpty(t, env.Events.named(websocket.EventRoomUpdated))
}

func TestRoomService_CreateRoomRequiresOnboarding(t *testing.T) {
	env := newServiceEnv(t)
	host := testutil.NewProfileBuilder().WithoutOnboarding().Build(t, env.DB.DB)

	_, err := env.Services.Room.CreateRoom(context.Background(), host, service.CreateRoomInput{Name: "Nope"})
	assert.ErrorIs(t, err, domain.ErrOnboardingRequired)
}

func TestRoomService_GetRoom(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	room := testutil.NewRoomBuilder().Build(t, env.DB.DB)

	tests := []struct {
		name     string
		idOrCode string
		wantErr  error
	}{
		{"by id", room.ID.String(), nil},
		{"by code", room.Code, nil},
		{"by lowercase code", strings.ToLower(room.Code), nil},
		{"by padded code", "  " + room.Code + " ", nil},
		{"unknown id", uuid.New().String(), domain.ErrRoomNotFound},
		{"malformed code", "I0I0I0", domain.ErrRoomNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.Services.Room.GetRoom(ctx, tt.idOrCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, room.ID, got.ID)
		})
	}
}

func TestRoomService_JoinAndLeave(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	player := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).Build(t, env.DB.DB)

	_, err := env.Services.Room.ListPlayers(ctx, room.ID, player.ID)
	assert.ErrorIs(t, err, domain.ErrNotRoomMember)

	joined, err := env.Services.Room.JoinRoom(ctx, player, strings.ToLower(room.Code))
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)

	// Joining again is a no-op
	_, err = env.Services.Room.JoinRoom(ctx, player, room.Code)
	require.NoError(t, err)

	players, err := env.Services.Room.ListPlayers(ctx, room.ID, player.ID)
	require.NoError(t, err)
	assert.Len(t, players, 2)

	assert.ErrorIs(t, env.Services.Room.LeaveRoom(ctx, room.ID, host.ID), domain.ErrHostCannotLeave)
	require.NoError(t, env.Services.Room.LeaveRoom(ctx, room.ID, player.ID))
	assert.ErrorIs(t, env.Services.Room.LeaveRoom(ctx, room.ID, player.ID), domain.ErrNotRoomMember)

	_, err = env.Services.Room.JoinRoom(ctx, player, "ZZZZZZ")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomService_JoinFinishedRoom(t *testing.T) {
	env := newServiceEnv(t)
	player := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithStatus(domain.RoomStatusFinished).Build(t, env.DB.DB)

	_, err := env.Services.Room.JoinRoom(context.Background(), player, room.Code)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomState)
}

func TestRoomService_DeleteRoom(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	player := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	waiting := testutil.NewRoomBuilder().WithHost(host).WithPlayers(player).Build(t, env.DB.DB)
	playing := testutil.NewRoomBuilder().WithHost(host).WithStatus(domain.RoomStatusPlaying).Build(t, env.DB.DB)

	assert.ErrorIs(t, env.Services.Room.DeleteRoom(ctx, waiting.ID, player.ID), domain.ErrNotRoomHost)
	assert.ErrorIs(t, env.Services.Room.DeleteRoom(ctx, playing.ID, host.ID), domain.ErrInvalidRoomState)

	require.NoError(t, env.Services.Room.DeleteRoom(ctx, waiting.ID, host.ID))
	_, err := env.Services.Room.GetRoom(ctx, waiting.ID.String())
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestRoomService_UpdateSettings(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).Build(t, env.DB.DB)
	cupping := testutil.NewRoomBuilder().WithHost(host).WithMode(domain.RoomModeCupping).Build(t, env.DB.DB)

	name, minutes := "Renamed", 12
	got, err := env.Services.Room.UpdateSettings(ctx, room.ID, host.ID, service.UpdateRoomSettingsInput{Name: &name, TimerMinutes: &minutes})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 12, got.TimerMinutes)

	zero := 0
	_, err = env.Services.Room.UpdateSettings(ctx, room.ID, host.ID, service.UpdateRoomSettingsInput{TimerMinutes: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidTimer)

	simple := domain.CuppingFormSimple
	_, err = env.Services.Room.UpdateSettings(ctx, room.ID, host.ID, service.UpdateRoomSettingsInput{FormType: &simple})
	assert.ErrorIs(t, err, domain.ErrWrongRoomMode)

	got, err = env.Services.Room.UpdateSettings(ctx, cupping.ID, host.ID, service.UpdateRoomSettingsInput{FormType: &simple})
	require.NoError(t, err)
	assert.Equal(t, domain.CuppingFormSimple, got.Settings.Data().FormType)
}

func TestRoomService_Invitations(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	guest := testutil.NewProfileBuilder().WithUsername("guest_cupper").Build(t, env.DB.DB)
	outsider := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).Build(t, env.DB.DB)

	_, err := env.Services.Room.Invite(ctx, room.ID, outsider, "guest_cupper")
	assert.ErrorIs(t, err, domain.ErrNotRoomMember)

	_, err = env.Services.Room.Invite(ctx, room.ID, host, *host.Username)
	assert.ErrorIs(t, err, domain.ErrCannotInviteSelf)

	invitation, err := env.Services.Room.Invite(ctx, room.ID, host, "GUEST_CUPPER")
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, invitation.Status)

	created := env.Events.named(websocket.EventInvitationCreated)
	require.Len(t, created, 1)
	assert.Equal(t, websocket.InvitationChannel(guest.ClerkID), created[0].Channel)

	_, err = env.Services.Room.Invite(ctx, room.ID, host, "guest_cupper")
	assert.ErrorIs(t, err, domain.ErrAlreadyInvited)

	pending, err := env.Services.Room.ListPendingInvitations(ctx, guest.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, room.ID, pending[0].RoomID)

	_, err = env.Services.Room.RespondInvitation(ctx, invitation.ID, outsider, true)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)

	accepted, err := env.Services.Room.RespondInvitation(ctx, invitation.ID, guest, true)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationAccepted, accepted.Status)
	require.NoError(t, env.Services.Room.IsMember(ctx, room.ID, guest.ID))

	_, err = env.Services.Room.RespondInvitation(ctx, invitation.ID, guest, false)
	assert.ErrorIs(t, err, domain.ErrInvitationClosed)

	_, err = env.Services.Room.Invite(ctx, room.ID, host, "guest_cupper")
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	responded := env.Events.named(websocket.EventInvitationResponded)
	require.Len(t, responded, 1)
	assert.Equal(t, websocket.RoomChannel(room.ID), responded[0].Channel)
}

func TestRoomService_ListMyRooms(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	me := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	testutil.NewRoomBuilder().WithHost(me).Build(t, env.DB.DB)
	testutil.NewRoomBuilder().WithPlayers(me).Build(t, env.DB.DB)
	testutil.NewRoomBuilder().Build(t, env.DB.DB)

	rooms, err := env.Services.Room.ListMyRooms(ctx, me.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)
}
