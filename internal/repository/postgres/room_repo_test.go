package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/repository/postgres"
	"github.com/tastelab/cupping-rooms/internal/testutil"
)

func TestRoomRepository_GetByIDAndCode(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRoomRepository(testDB.DB)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, testDB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).WithMode(domain.RoomModeCupping).Build(t, testDB.DB)

	tests := []struct {
		name    string
		get     func() (*domain.Room, error)
		wantErr error
	}{
		{"by id", func() (*domain.Room, error) { return repo.GetByID(ctx, room.ID) }, nil},
		{"by code", func() (*domain.Room, error) { return repo.GetByCode(ctx, room.Code) }, nil},
		{"missing id", func() (*domain.Room, error) { return repo.GetByID(ctx, uuid.New()) }, gorm.ErrRecordNotFound},
		{"missing code", func() (*domain.Room, error) { return repo.GetByCode(ctx, "ZZZZZZ") }, gorm.ErrRecordNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.get()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, room.ID, got.ID)
			assert.Equal(t, domain.RoomModeCupping, got.Mode)
			assert.Equal(t, domain.CuppingFormSCA, got.Settings.Data().FormType)
			require.NotNil(t, got.Host)
			assert.Equal(t, host.ID, got.Host.ID)
		})
	}
}

func TestRoomRepository_DuplicateCode(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRoomRepository(testDB.DB)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, testDB.DB)
	existing := testutil.NewRoomBuilder().WithHost(host).Build(t, testDB.DB)

	err := repo.Create(ctx, &domain.Room{
		ID:           uuid.New(),
		Code:         existing.Code,
		Name:         "Clash",
		HostID:       host.ID,
		Mode:         domain.RoomModeTriangulation,
		Status:       domain.RoomStatusWaiting,
		TimerMinutes: 8,
	})
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestRoomRepository_UpdateIfStatus(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRoomRepository(testDB.DB)
	ctx := context.Background()

	room := testutil.NewRoomBuilder().Build(t, testDB.DB)
	now := time.Now().UTC()

	room.Status = domain.RoomStatusCountdown
	room.CountdownStartedAt = &now
	ok, err := repo.UpdateIfStatus(ctx, room, domain.RoomStatusWaiting)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second writer expecting the old status loses
	room.Status = domain.RoomStatusFinished
	ok, err = repo.UpdateIfStatus(ctx, room, domain.RoomStatusWaiting)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusCountdown, got.Status)
	require.NotNil(t, got.CountdownStartedAt)
	assert.WithinDuration(t, now, *got.CountdownStartedAt, time.Millisecond)

	// Nil timestamps are written through
	got.Status = domain.RoomStatusWaiting
	got.CountdownStartedAt = nil
	ok, err = repo.UpdateIfStatus(ctx, got, domain.RoomStatusCountdown)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CountdownStartedAt)
}

func TestRoomRepository_UpdateSetup(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRoomRepository(testDB.DB)
	ctx := context.Background()

	waiting := testutil.NewRoomBuilder().WithMode(domain.RoomModeCupping).Build(t, testDB.DB)
	waiting.Name = "Renamed"
	waiting.TimerMinutes = 12
	waiting.Settings = datatypes.NewJSONType(domain.RoomSettings{FormType: domain.CuppingFormSimple})
	ok, err := repo.UpdateSetup(ctx, waiting)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 12, got.TimerMinutes)
	assert.Equal(t, domain.CuppingFormSimple, got.Settings.Data().FormType)
	assert.Equal(t, domain.RoomStatusWaiting, got.Status)

	// A stale snapshot cannot roll back a room that already started
	started := testutil.NewRoomBuilder().Build(t, testDB.DB)
	stale := *started
	now := time.Now().UTC()
	started.Status = domain.RoomStatusCountdown
	started.CountdownStartedAt = &now
	ok, err = repo.UpdateIfStatus(ctx, started, domain.RoomStatusWaiting)
	require.NoError(t, err)
	require.True(t, ok)

	stale.Name = "Too late"
	ok, err = repo.UpdateSetup(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.GetByID(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusCountdown, got.Status)
	assert.NotNil(t, got.CountdownStartedAt)
	assert.NotEqual(t, "Too late", got.Name)
}

func TestRoomRepository_GetByProfileID(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRoomRepository(testDB.DB)
	ctx := context.Background()

	alice := testutil.NewProfileBuilder().Build(t, testDB.DB)
	bob := testutil.NewProfileBuilder().Build(t, testDB.DB)

	hosted := testutil.NewRoomBuilder().WithHost(alice).WithName("Hosted").Build(t, testDB.DB)
	joined := testutil.NewRoomBuilder().WithHost(bob).WithName("Joined").WithPlayers(alice).Build(t, testDB.DB)
	testutil.NewRoomBuilder().WithHost(bob).WithName("Elsewhere").Build(t, testDB.DB)

	rooms, err := repo.GetByProfileID(ctx, alice.ID, 10, 0)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{hosted.ID, joined.ID}, ids)

	rooms, err = repo.GetByProfileID(ctx, alice.ID, 1, 1)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestRoomRepository_ListByStatusAndDelete(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRoomRepository(testDB.DB)
	players := postgres.NewRoomPlayerRepository(testDB.DB)
	ctx := context.Background()

	guest := testutil.NewProfileBuilder().Build(t, testDB.DB)
	playing := testutil.NewRoomBuilder().WithStatus(domain.RoomStatusPlaying).WithPlayers(guest).Build(t, testDB.DB)
	paused := testutil.NewRoomBuilder().WithStatus(domain.RoomStatusPaused).Build(t, testDB.DB)
	testutil.NewRoomBuilder().Build(t, testDB.DB)

	rooms, err := repo.ListByStatus(ctx, domain.RoomStatusPlaying, domain.RoomStatusPaused)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	require.NoError(t, repo.Delete(ctx, playing.ID))
	_, err = repo.GetByID(ctx, playing.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Players go with the room
	_, err = players.GetByRoomAndProfile(ctx, playing.ID, guest.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	rooms, err = repo.ListByStatus(ctx, domain.RoomStatusPlaying, domain.RoomStatusPaused)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, paused.ID, rooms[0].ID)
}
