package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
	"github.com/tastelab/cupping-rooms/internal/testutil"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

func longCountdown(d *service.Deps) {
	d.Config.CountdownDuration = time.Minute
}

type gameFixture struct {
	host    *domain.UserProfile
	players []*domain.UserProfile
	room    *domain.Room
	set     *domain.RoomSet
}

func newGameFixture(t *testing.T, env *serviceEnv, players int) *gameFixture {
	t.Helper()
	f := &gameFixture{host: testutil.NewProfileBuilder().Build(t, env.DB.DB)}
	for i := 0; i < players; i++ {
		f.players = append(f.players, testutil.NewProfileBuilder().Build(t, env.DB.DB))
	}
	f.room = testutil.NewRoomBuilder().
		WithHost(f.host).
		WithPlayers(f.players...).
		WithCoffees("Kenya", "Colombia", "Ethiopia").
		Build(t, env.DB.DB)
	f.set = testutil.BuildSet(t, env.DB.DB, f.room)
	return f
}

func (f *gameFixture) startPlaying(t *testing.T, env *serviceEnv) *domain.SessionRound {
	t.Helper()
	ctx := context.Background()
	round, err := env.Services.Game.StartRound(ctx, f.room.ID, f.host.ID, f.set.ID)
	require.NoError(t, err)
	_, err = env.Services.Game.BeginPlaying(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)
	return round
}

func loadRoom(t *testing.T, env *serviceEnv, id uuid.UUID) *domain.Room {
	t.Helper()
	var room domain.Room
	require.NoError(t, env.DB.DB.First(&room, "id = ?", id).Error)
	return &room
}

func backdateTimer(t *testing.T, env *serviceEnv, roomID uuid.UUID, by time.Duration) {
	t.Helper()
	room := loadRoom(t, env, roomID)
	require.NotNil(t, room.TimerStartedAt)
	require.NoError(t, env.DB.DB.Model(&domain.Room{}).
		Where("id = ?", roomID).
		Update("timer_started_at", room.TimerStartedAt.Add(-by)).Error)
}

func submit(correct int) service.SubmitAnswersInput {
	return service.SubmitAnswersInput{Answers: testutil.Answers(correct)}
}

func TestGameService_FullRoundWithAutomaticCountdown(t *testing.T) {
	env := newServiceEnv(t)
	ctx := context.Background()
	f := newGameFixture(t, env, 2)

	round, err := env.Services.Game.StartRound(ctx, f.room.ID, f.host.ID, f.set.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, round.RoundNumber)
	assert.Len(t, round.Participants, 3)
	assert.Equal(t, domain.RoomStatusCountdown, loadRoom(t, env, f.room.ID).Status)

	start := env.Events.waitFor(t, websocket.EventGameStart, time.Second)
	var startPayload websocket.GameStartPayload
	require.NoError(t, json.Unmarshal(start.Payload, &startPayload))
	require.NotNil(t, startPayload.RoundID)
	assert.Equal(t, round.ID, *startPayload.RoundID)
	assert.False(t, startPayload.ServerNow.IsZero())

	// The server ends the countdown on its own
	env.Events.waitFor(t, websocket.EventGamePlaying, 2*time.Second)
	playing := loadRoom(t, env, f.room.ID)
	assert.Equal(t, domain.RoomStatusPlaying, playing.Status)
	require.NotNil(t, playing.TimerStartedAt)
	assert.True(t, env.Timers.Pending(f.room.ID), "deadline should be scheduled")

	first, err := env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[0], submit(6))
	require.NoError(t, err)
	assert.Equal(t, 6, first.CorrectCount)
	assert.Equal(t, domain.SetRowCount, first.TotalCount)
	assert.False(t, first.Overtime)

	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[0], submit(8))
	assert.ErrorIs(t, err, domain.ErrAlreadySubmitted)

	finished := env.Events.named(websocket.EventPlayerFinished)
	require.Len(t, finished, 1)
	var finishedPayload websocket.PlayerFinishedPayload
	require.NoError(t, json.Unmarshal(finished[0].Payload, &finishedPayload))
	assert.Equal(t, 1, finishedPayload.SubmittedCount)
	assert.Equal(t, 3, finishedPayload.ParticipantCount)

	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[1], submit(8))
	require.NoError(t, err)
	assert.Empty(t, env.Events.named(websocket.EventRoundEnded))

	// Last participant submitting ends the round
	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.host, submit(3))
	require.NoError(t, err)

	ended := env.Events.waitFor(t, websocket.EventRoundEnded, time.Second)
	var endedPayload websocket.RoundEndedPayload
	require.NoError(t, json.Unmarshal(ended.Payload, &endedPayload))
	require.Len(t, endedPayload.Results, 3)
	assert.Equal(t, f.players[1].ID, endedPayload.Results[0].ProfileID)
	assert.Equal(t, 8, endedPayload.Results[0].CorrectCount)
	assert.Equal(t, 3, endedPayload.Results[2].CorrectCount)

	room := loadRoom(t, env, f.room.ID)
	assert.Equal(t, domain.RoomStatusWaiting, room.Status)
	assert.Nil(t, room.TimerStartedAt)
	assert.False(t, env.Timers.Pending(f.room.ID))

	results, err := env.Services.Game.GetRoundResults(ctx, f.room.ID, round.ID, f.players[0].ID)
	require.NoError(t, err)
	assert.True(t, results.Revealed)
	assert.Len(t, results.Results, 3)
}

func TestGameService_StartRoundGuards(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)

	_, err := env.Services.Game.StartRound(ctx, f.room.ID, f.players[0].ID, f.set.ID)
	assert.ErrorIs(t, err, domain.ErrNotRoomHost)

	_, err = env.Services.Game.StartRound(ctx, f.room.ID, f.host.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrSetNotFound)

	_, err = env.Services.Game.StartRound(ctx, f.room.ID, f.host.ID, f.set.ID)
	require.NoError(t, err)

	_, err = env.Services.Game.StartRound(ctx, f.room.ID, f.host.ID, f.set.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomState)

	_, err = env.Services.Game.Pause(ctx, f.room.ID, f.host.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomState)
}

func TestGameService_PauseAndResume(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)
	f.startPlaying(t, env)

	backdateTimer(t, env, f.room.ID, 2*time.Minute)
	before := loadRoom(t, env, f.room.ID)

	paused, err := env.Services.Game.Pause(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusPaused, paused.Status)
	require.NotNil(t, paused.PausedAt)
	assert.False(t, env.Timers.Pending(f.room.ID), "paused rooms have no deadline")

	var pausePayload websocket.GamePausePayload
	require.NoError(t, json.Unmarshal(env.Events.waitFor(t, websocket.EventGamePause, time.Second).Payload, &pausePayload))
	assert.InDelta(t, (6 * time.Minute).Milliseconds(), pausePayload.RemainingMs, float64(5*time.Second/time.Millisecond))

	_, err = env.Services.Game.Pause(ctx, f.room.ID, f.host.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomState)

	// Pretend the pause lasted one minute
	require.NoError(t, env.DB.DB.Model(&domain.Room{}).
		Where("id = ?", f.room.ID).
		Update("paused_at", paused.PausedAt.Add(-time.Minute)).Error)

	resumed, err := env.Services.Game.Resume(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusPlaying, resumed.Status)
	assert.Nil(t, resumed.PausedAt)
	require.NotNil(t, resumed.TimerStartedAt)
	shift := resumed.TimerStartedAt.Sub(*before.TimerStartedAt)
	assert.InDelta(t, time.Minute.Seconds(), shift.Seconds(), 5)
	assert.True(t, env.Timers.Pending(f.room.ID))

	state, err := env.Services.Game.GetRoomState(ctx, f.room.ID, f.players[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusPlaying, state.Status)
	// 8 minute timer, 2 minutes consumed before the pause
	assert.InDelta(t, (6 * time.Minute).Milliseconds(), state.RemainingMs, float64(5*time.Second/time.Millisecond))
	assert.False(t, state.Overtime)
}

func TestGameService_SubmitWhilePausedFreezesElapsed(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)
	round := f.startPlaying(t, env)

	backdateTimer(t, env, f.room.ID, time.Minute)
	_, err := env.Services.Game.Pause(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)

	// Time spent paused is not counted
	room := loadRoom(t, env, f.room.ID)
	require.NoError(t, env.DB.DB.Model(&domain.Room{}).
		Where("id = ?", f.room.ID).
		Update("paused_at", room.PausedAt.Add(-20*time.Second)).Error)

	result, err := env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[0], submit(8))
	require.NoError(t, err)
	assert.InDelta(t, (40 * time.Second).Milliseconds(), result.ElapsedMs, 5000)
}

func TestGameService_DeadlineMovesToInputting(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)
	round := f.startPlaying(t, env)

	// Too early: nothing changes and the deadline stays armed
	require.NoError(t, env.Services.Game.ExpireTimer(ctx, f.room.ID))
	assert.Equal(t, domain.RoomStatusPlaying, loadRoom(t, env, f.room.ID).Status)
	assert.True(t, env.Timers.Pending(f.room.ID))

	backdateTimer(t, env, f.room.ID, 9*time.Minute)
	require.NoError(t, env.Services.Game.ExpireTimer(ctx, f.room.ID))
	assert.Equal(t, domain.RoomStatusInputting, loadRoom(t, env, f.room.ID).Status)
	env.Events.waitFor(t, websocket.EventTimerEnded, time.Second)

	// Submissions continue as overtime
	result, err := env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[0], submit(5))
	require.NoError(t, err)
	assert.True(t, result.Overtime)
	for _, a := range result.Answers {
		assert.True(t, a.IsOvertime, "row %d", a.RowNumber)
	}

	state, err := env.Services.Game.GetRoomState(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)
	assert.True(t, state.Overtime)
	assert.Zero(t, state.RemainingMs)
	require.NotNil(t, state.Round)
	assert.Equal(t, []uuid.UUID{f.players[0].ID}, state.Round.SubmittedIDs)
}

func TestGameService_SubmitAnswersGuards(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)
	round := f.startPlaying(t, env)

	late := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	_, err := env.Services.Room.JoinRoom(ctx, late, f.room.Code)
	require.NoError(t, err)

	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, late, submit(8))
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	short := service.SubmitAnswersInput{Answers: testutil.Answers(8)[:7]}
	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[0], short)
	assert.ErrorIs(t, err, domain.ErrInvalidAnswers)

	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, uuid.New(), f.players[0], submit(8))
	assert.ErrorIs(t, err, domain.ErrRoundNotFound)

	_, err = env.Services.Game.GetRoundResults(ctx, f.room.ID, round.ID, f.players[0].ID)
	assert.ErrorIs(t, err, domain.ErrRoundNotRevealed)

	_, err = env.Services.Game.EndRound(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)

	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[0], submit(8))
	assert.ErrorIs(t, err, domain.ErrRoundClosed)
}

func TestGameService_SecondRoundNumbering(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)
	f.startPlaying(t, env)
	_, err := env.Services.Game.EndRound(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)

	second := testutil.BuildSet(t, env.DB.DB, f.room)
	round, err := env.Services.Game.StartRound(ctx, f.room.ID, f.host.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, round.RoundNumber)
}

func TestGameService_CancelCountdown(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)

	_, err := env.Services.Game.StartRound(ctx, f.room.ID, f.host.ID, f.set.ID)
	require.NoError(t, err)
	assert.True(t, env.Timers.Pending(f.room.ID))

	room, err := env.Services.Game.CancelCountdown(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusWaiting, room.Status)
	assert.False(t, env.Timers.Pending(f.room.ID))

	_, err = env.Services.Game.BeginPlaying(ctx, f.room.ID, f.host.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomState)
}

func TestGameService_EndSessionMidRound(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)
	round := f.startPlaying(t, env)

	_, err := env.Services.Game.EndSession(ctx, f.room.ID, f.players[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotRoomHost)

	room, err := env.Services.Game.EndSession(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusFinished, room.Status)
	assert.False(t, env.Timers.Pending(f.room.ID))

	env.Events.waitFor(t, websocket.EventRoundEnded, time.Second)
	env.Events.waitFor(t, websocket.EventSessionEnded, time.Second)

	results, err := env.Services.Game.GetRoundResults(ctx, f.room.ID, round.ID, f.players[0].ID)
	require.NoError(t, err)
	assert.True(t, results.Revealed)

	_, err = env.Services.Game.EndSession(ctx, f.room.ID, f.host.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomState)
}

func TestGameService_Recover(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 1)
	f.startPlaying(t, env)

	// Simulate a restart losing the in-memory timers
	env.Timers.Cancel(f.room.ID)
	require.False(t, env.Timers.Pending(f.room.ID))

	require.NoError(t, env.Services.Game.Recover(ctx))
	assert.True(t, env.Timers.Pending(f.room.ID))
}

func TestGameService_CuppingRoomTimer(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	host := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	guest := testutil.NewProfileBuilder().Build(t, env.DB.DB)
	room := testutil.NewRoomBuilder().WithHost(host).WithPlayers(guest).WithMode(domain.RoomModeCupping).Build(t, env.DB.DB)

	_, err := env.Services.Game.StartTimer(ctx, room.ID, guest.ID)
	assert.ErrorIs(t, err, domain.ErrNotRoomHost)
	_, err = env.Services.Game.StartRound(ctx, room.ID, host.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrWrongRoomMode)

	started, err := env.Services.Game.StartTimer(ctx, room.ID, host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusCountdown, started.Status)
	assert.True(t, env.Timers.Pending(room.ID))

	start := env.Events.waitFor(t, websocket.EventGameStart, time.Second)
	var startPayload websocket.GameStartPayload
	require.NoError(t, json.Unmarshal(start.Payload, &startPayload))
	assert.Nil(t, startPayload.RoundID)
	assert.Nil(t, startPayload.SetID)

	_, err = env.Services.Game.BeginPlaying(ctx, room.ID, host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusPlaying, loadRoom(t, env, room.ID).Status)

	_, err = env.Services.Game.Pause(ctx, room.ID, host.ID)
	require.NoError(t, err)
	resumed, err := env.Services.Game.Resume(ctx, room.ID, host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusPlaying, resumed.Status)

	backdateTimer(t, env, room.ID, 9*time.Minute)
	require.NoError(t, env.Services.Game.ExpireTimer(ctx, room.ID))
	assert.Equal(t, domain.RoomStatusInputting, loadRoom(t, env, room.ID).Status)
	env.Events.waitFor(t, websocket.EventTimerEnded, time.Second)

	state, err := env.Services.Game.GetRoomState(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	assert.True(t, state.Overtime)
	assert.Nil(t, state.Round)

	_, err = env.Services.Game.EndRound(ctx, room.ID, host.ID)
	assert.ErrorIs(t, err, domain.ErrWrongRoomMode)

	stopped, err := env.Services.Game.StopTimer(ctx, room.ID, host.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusWaiting, stopped.Status)
	assert.Nil(t, stopped.TimerStartedAt)
	assert.False(t, env.Timers.Pending(room.ID))

	_, err = env.Services.Game.StopTimer(ctx, room.ID, host.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomState)
}

func TestGameService_LeaverDoesNotBlockAutoEnd(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 2)
	round := f.startPlaying(t, env)

	_, err := env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[0], submit(7))
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusPlaying, loadRoom(t, env, f.room.ID).Status)

	require.NoError(t, env.Services.Room.LeaveRoom(ctx, f.room.ID, f.players[1].ID))

	// The host and the first player remain; the host still has to submit
	state, err := env.Services.Game.GetRoomState(ctx, f.room.ID, f.host.ID)
	require.NoError(t, err)
	require.NotNil(t, state.Round)
	assert.NotContains(t, state.Round.ParticipantIDs, f.players[1].ID)
	assert.Equal(t, domain.RoomStatusPlaying, state.Status)

	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.host, submit(8))
	require.NoError(t, err)

	assert.Equal(t, domain.RoomStatusWaiting, loadRoom(t, env, f.room.ID).Status)
	ended := env.Events.waitFor(t, websocket.EventRoundEnded, time.Second)
	assert.Equal(t, websocket.RoomChannel(f.room.ID), ended.Channel)
}

func TestGameService_LastPendingLeaverEndsRound(t *testing.T) {
	env := newServiceEnv(t, longCountdown)
	ctx := context.Background()
	f := newGameFixture(t, env, 2)
	round := f.startPlaying(t, env)

	_, err := env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.host, submit(8))
	require.NoError(t, err)
	_, err = env.Services.Game.SubmitAnswers(ctx, f.room.ID, round.ID, f.players[0], submit(6))
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusPlaying, loadRoom(t, env, f.room.ID).Status)

	require.NoError(t, env.Services.Room.LeaveRoom(ctx, f.room.ID, f.players[1].ID))

	assert.Equal(t, domain.RoomStatusWaiting, loadRoom(t, env, f.room.ID).Status)
	results, err := env.Services.Game.GetRoundResults(ctx, f.room.ID, round.ID, f.players[0].ID)
	require.NoError(t, err)
	assert.True(t, results.Revealed)
	assert.Len(t, results.Results, 2)
}
