package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
	"github.com/tastelab/cupping-rooms/internal/testutil"
)

func TestCoffeeService_AddAndListCoffees(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	player := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).WithPlayers(player).Build(t, env.DB.DB)

	for _, name := range []string{"Guji natural", "Huila washed", "Nyeri SL28"} {
		_, err := env.Services.Coffee.AddCoffee(ctx, room.ID, host.ID, name)
		require.NoError(t, err)
	}
	_, err := env.Services.Coffee.AddCoffee(ctx, room.ID, player.ID, "Sneaky")
	assert.ErrorIs(t, err, domain.ErrNotRoomHost)
	_, err = env.Services.Coffee.AddCoffee(ctx, room.ID, host.ID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCoffeeName)

	hostView, err := env.Services.Coffee.ListCoffees(ctx, room.ID, host.ID)
	require.NoError(t, err)
	require.Len(t, hostView, 3)
	labels := []string{hostView[0].Label, hostView[1].Label, hostView[2].Label}
	assert.Equal(t, []string{"A", "B", "C"}, labels)
	require.NotNil(t, hostView[0].Name)
	assert.Equal(t, "Guji natural", *hostView[0].Name)

	playerView, err := env.Services.Coffee.ListCoffees(ctx, room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, playerView, 3)
	for _, c := range playerView {
		assert.Nil(t, c.Name, "coffee %s name leaked", c.Label)
	}
}

func TestCoffeeService_CoffeeNamesRevealedWhenFinished(t *testing.T) {
	env := newServiceEnv(t)
	player := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().
		WithPlayers(player).
		WithStatus(domain.RoomStatusFinished).
		WithCoffees("Geisha", "Bourbon").
		Build(t, env.DB.DB)

	view, err := env.Services.Coffee.ListCoffees(context.Background(), room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, view, 2)
	require.NotNil(t, view[0].Name)
	assert.Equal(t, "Geisha", *view[0].Name)
}

func TestCoffeeService_DeleteCoffee(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).WithCoffees("One", "Two", "Three").Build(t, env.DB.DB)
	testutil.BuildSet(t, env.DB.DB, room)
	coffees := testutil.Coffees(t, env.DB.DB, room.ID)

	assert.ErrorIs(t, env.Services.Coffee.DeleteCoffee(ctx, room.ID, coffees[0].ID, host.ID), domain.ErrCoffeeInUse)
	require.NoError(t, env.Services.Coffee.DeleteCoffee(ctx, room.ID, coffees[2].ID, host.ID))

	// The freed label is reused
	added, err := env.Services.Coffee.AddCoffee(ctx, room.ID, host.ID, "Four")
	require.NoError(t, err)
	assert.Equal(t, "C", added.Label)
}

func TestCoffeeService_GenerateSet(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	lonely := testutil.NewRoomBuilder().WithHost(host).WithCoffees("Only").Build(t, env.DB.DB)
	_, err := env.Services.Coffee.GenerateSet(ctx, lonely.ID, host.ID)
	assert.ErrorIs(t, err, domain.ErrNotEnoughCoffees)

	room := testutil.NewRoomBuilder().WithHost(host).WithCoffees("A1", "B1", "C1", "D1").Build(t, env.DB.DB)
	known := map[string]bool{}
	for _, c := range testutil.Coffees(t, env.DB.DB, room.ID) {
		known[c.ID.String()] = true
	}

	for i := 1; i <= 5; i++ {
		set, err := env.Services.Coffee.GenerateSet(ctx, room.ID, host.ID)
		require.NoError(t, err)
		assert.Equal(t, i, set.Number)
		assert.Equal(t, domain.SetSourceRandom, set.Source)
		require.Len(t, set.Rows, domain.SetRowCount)
		for j, row := range set.Rows {
			assert.Equal(t, j+1, row.RowNumber)
			assert.NotEqual(t, row.PairCoffeeID, row.OddCoffeeID)
			assert.GreaterOrEqual(t, row.OddPosition, 1)
			assert.LessOrEqual(t, row.OddPosition, 3)
			assert.True(t, known[row.PairCoffeeID.String()])
			assert.True(t, known[row.OddCoffeeID.String()])
		}
	}
}

// manualRows builds a valid set over the room's first two coffees.
func manualRows(t *testing.T, env *serviceEnv, room *domain.Room) []service.SetRowInput {
	t.Helper()
	coffees := testutil.Coffees(t, env.DB.DB, room.ID)
	rows := make([]service.SetRowInput, 0, domain.SetRowCount)
	for i := 1; i <= domain.SetRowCount; i++ {
		rows = append(rows, service.SetRowInput{
			RowNumber:    i,
			PairCoffeeID: coffees[0].ID,
			OddCoffeeID:  coffees[1].ID,
			OddPosition:  testutil.ExpectedOddPosition(i),
		})
	}
	return rows
}

func TestCoffeeService_ManualSet(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).WithCoffees("Pair", "Odd").Build(t, env.DB.DB)
	coffees := testutil.Coffees(t, env.DB.DB, room.ID)

	t.Run("pair equal to odd is rejected", func(t *testing.T) {
		rows := manualRows(t, env, room)
		rows[3].OddCoffeeID = rows[3].PairCoffeeID
		_, err := env.Services.Coffee.CreateManualSet(ctx, room.ID, host.ID, rows)
		assert.ErrorIs(t, err, domain.ErrPairEqualsOdd)
	})

	t.Run("seven rows are rejected", func(t *testing.T) {
		rows := manualRows(t, env, room)
		_, err := env.Services.Coffee.CreateManualSet(ctx, room.ID, host.ID, rows[:7])
		assert.ErrorIs(t, err, domain.ErrInvalidSetRows)
	})

	t.Run("position out of range is rejected", func(t *testing.T) {
		rows := manualRows(t, env, room)
		rows[0].OddPosition = 4
		_, err := env.Services.Coffee.CreateManualSet(ctx, room.ID, host.ID, rows)
		assert.ErrorIs(t, err, domain.ErrInvalidOddPosition)
	})

	set, err := env.Services.Coffee.CreateManualSet(ctx, room.ID, host.ID, manualRows(t, env, room))
	require.NoError(t, err)
	assert.Equal(t, domain.SetSourceManual, set.Source)

	t.Run("update row enforces pair differs from odd", func(t *testing.T) {
		_, err := env.Services.Coffee.UpdateSetRow(ctx, room.ID, set.ID, host.ID, service.SetRowInput{
			RowNumber:    2,
			PairCoffeeID: coffees[1].ID,
			OddCoffeeID:  coffees[1].ID,
			OddPosition:  1,
		})
		assert.ErrorIs(t, err, domain.ErrPairEqualsOdd)
	})

	t.Run("update row swaps coffees", func(t *testing.T) {
		row, err := env.Services.Coffee.UpdateSetRow(ctx, room.ID, set.ID, host.ID, service.SetRowInput{
			RowNumber:    2,
			PairCoffeeID: coffees[1].ID,
			OddCoffeeID:  coffees[0].ID,
			OddPosition:  3,
		})
		require.NoError(t, err)
		assert.Equal(t, coffees[0].ID, row.OddCoffeeID)
		assert.Equal(t, 3, row.OddPosition)
	})

	t.Run("unknown row", func(t *testing.T) {
		_, err := env.Services.Coffee.UpdateSetRow(ctx, room.ID, set.ID, host.ID, service.SetRowInput{
			RowNumber:    9,
			PairCoffeeID: coffees[1].ID,
			OddCoffeeID:  coffees[0].ID,
			OddPosition:  1,
		})
		assert.ErrorIs(t, err, domain.ErrSetRowNotFound)
	})
}

func TestCoffeeService_SetVisibility(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	player := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).WithPlayers(player).WithCoffees("X", "Y").Build(t, env.DB.DB)
	set := testutil.BuildSet(t, env.DB.DB, room)

	hostView, err := env.Services.Coffee.GetSet(ctx, room.ID, set.ID, host.ID)
	require.NoError(t, err)
	require.NotNil(t, hostView.Rows[0].OddPosition)
	assert.False(t, hostView.Revealed)

	playerView, err := env.Services.Coffee.GetSet(ctx, room.ID, set.ID, player.ID)
	require.NoError(t, err)
	for _, row := range playerView.Rows {
		assert.Nil(t, row.OddPosition)
		assert.Nil(t, row.OddCoffeeID)
	}

	// Play and end a round on the set, then the answers are public.
	_, err = env.Services.Game.StartRound(ctx, room.ID, host.ID, set.ID)
	require.NoError(t, err)
	_, err = env.Services.Game.BeginPlaying(ctx, room.ID, host.ID)
	require.NoError(t, err)
	_, err = env.Services.Game.EndRound(ctx, room.ID, host.ID)
	require.NoError(t, err)

	playerView, err = env.Services.Coffee.GetSet(ctx, room.ID, set.ID, player.ID)
	require.NoError(t, err)
	assert.True(t, playerView.Revealed)
	require.NotNil(t, playerView.Rows[0].OddPosition)
	assert.Equal(t, testutil.ExpectedOddPosition(1), *playerView.Rows[0].OddPosition)

	names, err := env.Services.Coffee.ListCoffees(ctx, room.ID, player.ID)
	require.NoError(t, err)
	require.NotNil(t, names[0].Name)

	// A played set can no longer change
	assert.ErrorIs(t, env.Services.Coffee.DeleteSet(ctx, room.ID, set.ID, host.ID), domain.ErrSetInUse)

	assert.False(t, env.Timers.Pending(room.ID), "deadline timer should be cancelled")
}

func TestCoffeeService_CancelledSetStaysHidden(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	player := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).WithPlayers(player).WithCoffees("X", "Y").Build(t, env.DB.DB)
	cancelled := testutil.BuildSet(t, env.DB.DB, room)
	played := testutil.BuildSet(t, env.DB.DB, room)

	_, err := env.Services.Game.StartRound(ctx, room.ID, host.ID, cancelled.ID)
	require.NoError(t, err)
	_, err = env.Services.Game.CancelCountdown(ctx, room.ID, host.ID)
	require.NoError(t, err)

	_, err = env.Services.Game.StartRound(ctx, room.ID, host.ID, played.ID)
	require.NoError(t, err)
	_, err = env.Services.Game.BeginPlaying(ctx, room.ID, host.ID)
	require.NoError(t, err)
	_, err = env.Services.Game.EndRound(ctx, room.ID, host.ID)
	require.NoError(t, err)

	views, err := env.Services.Coffee.ListSets(ctx, room.ID, player.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, view := range views {
		if view.ID == played.ID {
			assert.True(t, view.Revealed)
			assert.NotNil(t, view.Rows[0].OddPosition)
			continue
		}
		assert.False(t, view.Revealed)
		for _, row := range view.Rows {
			assert.Nil(t, row.OddPosition)
			assert.Nil(t, row.OddCoffeeID)
		}
	}

	single, err := env.Services.Coffee.GetSet(ctx, room.ID, cancelled.ID, player.ID)
	require.NoError(t, err)
	assert.False(t, single.Revealed)
	assert.Nil(t, single.Rows[0].OddPosition)
}

func TestCoffeeService_SetupRequiresWaitingTriangulationRoom(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()

	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	cupping := testutil.NewRoomBuilder().WithHost(host).WithMode(domain.RoomModeCupping).Build(t, env.DB.DB)
	playing := testutil.NewRoomBuilder().WithHost(host).WithStatus(domain.RoomStatusPlaying).Build(t, env.DB.DB)

	_, err := env.Services.Coffee.AddCoffee(ctx, cupping.ID, host.ID, "Nope")
	assert.ErrorIs(t, err, domain.ErrWrongRoomMode)
	_, err = env.Services.Coffee.AddCoffee(ctx, playing.ID, host.ID, "Nope")
	assert.ErrorIs(t, err, domain.ErrInvalidRoomState)
}
