package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/metrics"
	"github.com/tastelab/cupping-rooms/internal/repository"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

const (
	casAttempts          = 3
	timerCallbackTimeout = 10 * time.Second
)

// GameService drives the room timer lifecycle: triangulation rounds, and the
// plain shared timer of cupping rooms. Room status changes go through
// compare-and-set updates so concurrent host actions, submissions and server
// timers settle on a single winner.
type GameService struct {
	rooms     repository.RoomRepository
	players   repository.RoomPlayerRepository
	sets      repository.SetRepository
	games     repository.GameRepository
	events    *websocket.EventEmitter
	timers    *websocket.TimerManager
	countdown time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	now func() time.Time
}

func NewGameService(repos *repository.Repositories, events *websocket.EventEmitter, timers *websocket.TimerManager, countdown time.Duration, m *metrics.Metrics, logger *slog.Logger) *GameService {
	return &GameService{
		rooms:     repos.Room,
		players:   repos.RoomPlayer,
		sets:      repos.Set,
		games:     repos.Game,
		events:    events,
		timers:    timers,
		countdown: countdown,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RoomState is the snapshot a client loads on (re)connect.
type RoomState struct {
	RoomID             uuid.UUID         `json:"roomId"`
	Status             domain.RoomStatus `json:"status"`
	ServerNow          time.Time         `json:"serverNow"`
	TimerMinutes       int               `json:"timerMinutes"`
	TimerStartedAt     *time.Time        `json:"timerStartedAt"`
	PausedAt           *time.Time        `json:"pausedAt"`
	CountdownStartedAt *time.Time        `json:"countdownStartedAt"`
	CountdownEndsAt    *time.Time        `json:"countdownEndsAt"`
	RemainingMs        int64             `json:"remainingMs"`
	Overtime           bool              `json:"overtime"`
	Round              *RoundState       `json:"round"`
}

type RoundState struct {
	ID             uuid.UUID   `json:"id"`
	Number         int         `json:"number"`
	SetID          uuid.UUID   `json:"setId"`
	StartedAt      *time.Time  `json:"startedAt"`
	EndedAt        *time.Time  `json:"endedAt"`
	Revealed       bool        `json:"revealed"`
	ParticipantIDs []uuid.UUID `json:"participantIds"`
	SubmittedIDs   []uuid.UUID `json:"submittedIds"`
}

type RoundResults struct {
	RoundID  uuid.UUID             `json:"roundId"`
	Revealed bool                  `json:"revealed"`
	Results  []*domain.RoundResult `json:"results"`
}

type SubmitAnswersInput struct {
	Answers []domain.AnswerInput `json:"answers" validate:"len=8,dive"`
}

func (s *GameService) loadRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (s *GameService) hostRoom(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsHost(hostID) {
		return nil, domain.ErrNotRoomHost
	}
	return room, nil
}

func (s *GameService) triangulationRoom(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.hostRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if room.Mode != domain.RoomModeTriangulation {
		return nil, domain.ErrWrongRoomMode
	}
	return room, nil
}

// currentRound returns the open round of a triangulation room. Cupping rooms
// run their timer without rounds and get nil.
func (s *GameService) currentRound(ctx context.Context, room *domain.Room) (*domain.SessionRound, error) {
	if room.Mode != domain.RoomModeTriangulation {
		return nil, nil
	}
	return s.latestRound(ctx, room.ID)
}

func roundRef(round *domain.SessionRound) *uuid.UUID {
	if round == nil {
		return nil
	}
	id := round.ID
	return &id
}

// transition applies the room's pending field changes only if the stored
// status is still expected.
func (s *GameService) transition(ctx context.Context, room *domain.Room, expected domain.RoomStatus) error {
	ok, err := s.rooms.UpdateIfStatus(ctx, room, expected)
	if err != nil {
		return fmt.Errorf("update room status: %w", err)
	}
	if !ok {
		return domain.ErrInvalidRoomState
	}
	return nil
}

func (s *GameService) latestRound(ctx context.Context, roomID uuid.UUID) (*domain.SessionRound, error) {
	round, err := s.games.GetLatestRound(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, err
	}
	return round, nil
}

// StartRound opens a round on setID and starts the pre-round countdown.
func (s *GameService) StartRound(ctx context.Context, roomID, hostID, setID uuid.UUID) (*domain.SessionRound, error) {
	room, err := s.triangulationRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomStatusWaiting {
		return nil, domain.ErrInvalidRoomState
	}

	set, err := s.sets.GetByID(ctx, setID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSetNotFound
		}
		return nil, err
	}
	if set.RoomID != room.ID {
		return nil, domain.ErrSetNotFound
	}
	if len(set.Rows) != domain.SetRowCount {
		return nil, domain.ErrInvalidSetRows
	}

	players, err := s.players.GetByRoomID(ctx, room.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := room.Transition(domain.RoomStatusCountdown); err != nil {
		return nil, err
	}
	room.CountdownStartedAt = &now
	room.TimerStartedAt = nil
	room.PausedAt = nil
	if err := s.transition(ctx, room, domain.RoomStatusWaiting); err != nil {
		return nil, err
	}

	round, err := s.openRound(ctx, room, set, players, now)
	if err != nil {
		room.Status = domain.RoomStatusWaiting
		room.CountdownStartedAt = nil
		if revertErr := s.transition(ctx, room, domain.RoomStatusCountdown); revertErr != nil {
			s.logger.Error("countdown_revert_failed", "room_id", room.ID, "err", revertErr)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RoundsStarted.Inc()
	}
	endsAt := now.Add(s.countdown)
	s.logger.Info("round_started", "room_id", room.ID, "round_id", round.ID, "round", round.RoundNumber, "set_id", set.ID)
	s.events.GameStart(ctx, websocket.GameStartPayload{
		RoomID:             room.ID,
		RoundID:            roundRef(round),
		RoundNumber:        round.RoundNumber,
		SetID:              &set.ID,
		TimerMinutes:       room.TimerMinutes,
		CountdownStartedAt: now,
		CountdownEndsAt:    endsAt,
		ServerNow:          s.now(),
	})
	s.scheduleBeginPlaying(room.ID, endsAt)
	return round, nil
}

func (s *GameService) openRound(ctx context.Context, room *domain.Room, set *domain.RoomSet, players []*domain.RoomPlayer, now time.Time) (*domain.SessionRound, error) {
	session, err := s.games.GetActiveSession(ctx, room.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		session = &domain.GameSession{
			ID:        uuid.New(),
			RoomID:    room.ID,
			Status:    domain.GameSessionActive,
			StartedAt: now,
		}
		if err := s.games.CreateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("create game session: %w", err)
		}
	}

	count, err := s.games.CountRounds(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	round := &domain.SessionRound{
		ID:           uuid.New(),
		SessionID:    session.ID,
		SetID:        set.ID,
		RoundNumber:  count + 1,
		TimerMinutes: room.TimerMinutes,
	}
	for _, p := range players {
		round.Participants = append(round.Participants, &domain.RoundParticipant{
			ID:        uuid.New(),
			RoundID:   round.ID,
			ProfileID: p.ProfileID,
		})
	}
	if err := s.games.CreateRound(ctx, round); err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}
	return round, nil
}

// StartTimer starts the countdown of a cupping room's shared timer. From
// there the room follows the triangulation round states, without a round.
func (s *GameService) StartTimer(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.hostRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if room.Mode != domain.RoomModeCupping {
		return nil, domain.ErrWrongRoomMode
	}
	if room.Status != domain.RoomStatusWaiting {
		return nil, domain.ErrInvalidRoomState
	}

	now := s.now()
	if err := room.Transition(domain.RoomStatusCountdown); err != nil {
		return nil, err
	}
	room.CountdownStartedAt = &now
	room.TimerStartedAt = nil
	room.PausedAt = nil
	if err := s.transition(ctx, room, domain.RoomStatusWaiting); err != nil {
		return nil, err
	}

	endsAt := now.Add(s.countdown)
	s.logger.Info("cupping_timer_started", "room_id", room.ID, "timer_minutes", room.TimerMinutes)
	s.events.GameStart(ctx, websocket.GameStartPayload{
		RoomID:             room.ID,
		TimerMinutes:       room.TimerMinutes,
		CountdownStartedAt: now,
		CountdownEndsAt:    endsAt,
		ServerNow:          s.now(),
	})
	s.scheduleBeginPlaying(room.ID, endsAt)
	return room, nil
}

// StopTimer returns a cupping room with a running, paused or expired timer
// to waiting.
func (s *GameService) StopTimer(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.hostRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if room.Mode != domain.RoomModeCupping {
		return nil, domain.ErrWrongRoomMode
	}
	if !room.Status.InRound() {
		return nil, domain.ErrInvalidRoomState
	}
	room, err = s.returnToWaiting(ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.events.RoomUpdated(ctx, room.ID, string(room.Status), ReasonTimerStopped)
	return room, nil
}

// BeginPlaying ends the countdown early at the host's request.
func (s *GameService) BeginPlaying(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	if _, err := s.hostRoom(ctx, roomID, hostID); err != nil {
		return nil, err
	}
	return s.beginPlaying(ctx, roomID)
}

func (s *GameService) beginPlaying(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomStatusCountdown {
		return nil, domain.ErrInvalidRoomState
	}
	round, err := s.currentRound(ctx, room)
	if err != nil {
		return nil, err
	}

	now := s.now()
	room.Status = domain.RoomStatusPlaying
	room.TimerStartedAt = &now
	room.PausedAt = nil
	if err := s.transition(ctx, room, domain.RoomStatusCountdown); err != nil {
		return nil, err
	}

	if round != nil {
		round.StartedAt = &now
		if err := s.games.UpdateRound(ctx, round); err != nil {
			s.logger.Error("round_update_failed", "round_id", round.ID, "err", err)
		}
	}

	s.events.GamePlaying(ctx, websocket.GamePlayingPayload{
		RoomID:         room.ID,
		RoundID:        roundRef(round),
		TimerStartedAt: now,
		TimerMinutes:   room.TimerMinutes,
		ServerNow:      s.now(),
	})
	s.scheduleDeadline(room.ID, room.Clock().Deadline())
	return room, nil
}

func (s *GameService) Pause(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.hostRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomStatusPlaying {
		return nil, domain.ErrInvalidRoomState
	}

	now := s.now()
	room.Status = domain.RoomStatusPaused
	room.PausedAt = &now
	if err := s.transition(ctx, room, domain.RoomStatusPlaying); err != nil {
		return nil, err
	}
	s.timers.Cancel(room.ID)

	s.events.GamePause(ctx, websocket.GamePausePayload{
		RoomID:      room.ID,
		PausedAt:    now,
		RemainingMs: room.Clock().DisplayRemaining(now).Milliseconds(),
		ServerNow:   s.now(),
	})
	return room, nil
}

// Resume restarts a paused timer, shifting its start by the pause length.
func (s *GameService) Resume(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.hostRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomStatusPaused || room.TimerStartedAt == nil || room.PausedAt == nil {
		return nil, domain.ErrInvalidRoomState
	}

	now := s.now()
	started := domain.ShiftForResume(*room.TimerStartedAt, *room.PausedAt, now)
	room.Status = domain.RoomStatusPlaying
	room.TimerStartedAt = &started
	room.PausedAt = nil
	if err := s.transition(ctx, room, domain.RoomStatusPaused); err != nil {
		return nil, err
	}

	s.events.GameResume(ctx, websocket.GameResumePayload{
		RoomID:         room.ID,
		TimerStartedAt: started,
		TimerMinutes:   room.TimerMinutes,
		RemainingMs:    room.Clock().DisplayRemaining(now).Milliseconds(),
		ServerNow:      s.now(),
	})
	s.scheduleDeadline(room.ID, room.Clock().Deadline())
	return room, nil
}

// ExpireTimer moves a playing room whose timer has run out to inputting.
// Called by the deadline timer; a premature call reschedules itself.
func (s *GameService) ExpireTimer(ctx context.Context, roomID uuid.UUID) error {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != domain.RoomStatusPlaying {
		return nil
	}
	now := s.now()
	clock := room.Clock()
	if clock.Remaining(now) > 0 {
		s.scheduleDeadline(room.ID, clock.Deadline())
		return nil
	}

	room.Status = domain.RoomStatusInputting
	if err := s.transition(ctx, room, domain.RoomStatusPlaying); err != nil {
		if errors.Is(err, domain.ErrInvalidRoomState) {
			return nil
		}
		return err
	}

	round, err := s.currentRound(ctx, room)
	if err != nil {
		return err
	}
	s.logger.Info("timer_ended", "room_id", room.ID, "round_id", roundRef(round))
	s.events.TimerEnded(ctx, websocket.TimerEndedPayload{
		RoomID:    room.ID,
		RoundID:   roundRef(round),
		ServerNow: s.now(),
	})
	return nil
}

// CancelCountdown returns a room in countdown to waiting. The opened round
// is closed without being revealed.
func (s *GameService) CancelCountdown(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.hostRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomStatusCountdown {
		return nil, domain.ErrInvalidRoomState
	}

	room.Status = domain.RoomStatusWaiting
	room.CountdownStartedAt = nil
	if err := s.transition(ctx, room, domain.RoomStatusCountdown); err != nil {
		return nil, err
	}
	s.timers.Cancel(room.ID)

	if round, err := s.currentRound(ctx, room); err == nil && round != nil && !round.Ended() {
		now := s.now()
		round.EndedAt = &now
		if err := s.games.UpdateRound(ctx, round); err != nil {
			s.logger.Error("round_update_failed", "round_id", round.ID, "err", err)
		}
	}

	s.events.RoomUpdated(ctx, room.ID, string(room.Status), ReasonCountdownCancel)
	return room, nil
}

// SubmitAnswers grades and stores a participant's answer sheet. Elapsed time
// comes from the server clock and excludes paused time.
func (s *GameService) SubmitAnswers(ctx context.Context, roomID, roundID uuid.UUID, player *domain.UserProfile, input SubmitAnswersInput) (*domain.RoundResult, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Mode != domain.RoomModeTriangulation {
		return nil, domain.ErrWrongRoomMode
	}

	round, err := s.games.GetRound(ctx, roundID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, err
	}
	if round.Session == nil || round.Session.RoomID != room.ID {
		return nil, domain.ErrRoundNotFound
	}
	if round.Ended() {
		return nil, domain.ErrRoundClosed
	}
	if !room.Status.InRound() {
		return nil, domain.ErrInvalidRoomState
	}
	if !isParticipant(round, player.ID) {
		return nil, domain.ErrNotParticipant
	}

	set, err := s.sets.GetByID(ctx, round.SetID)
	if err != nil {
		return nil, fmt.Errorf("load set: %w", err)
	}

	now := s.now()
	clock := room.Clock()
	elapsedMs := clock.Elapsed(now).Milliseconds()
	answers, correct, err := domain.GradeAnswers(set.Rows, input.Answers, elapsedMs, clock.Duration)
	if err != nil {
		return nil, err
	}

	result := &domain.RoundResult{
		ID:           uuid.New(),
		RoundID:      round.ID,
		ProfileID:    player.ID,
		ElapsedMs:    elapsedMs,
		CorrectCount: correct,
		TotalCount:   domain.SetRowCount,
		Overtime:     elapsedMs > clock.Duration.Milliseconds(),
		SubmittedAt:  now,
		Answers:      answers,
	}
	for _, a := range answers {
		a.ResultID = result.ID
	}
	if err := s.games.CreateResult(ctx, result); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("store result: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AnswersSubmitted.Inc()
	}

	results, err := s.games.GetResults(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	s.events.PlayerFinished(ctx, websocket.PlayerFinishedPayload{
		RoomID:           room.ID,
		RoundID:          round.ID,
		ProfileID:        player.ID,
		Username:         player.DisplayName(),
		SubmittedCount:   len(results),
		ParticipantCount: len(round.Participants),
	})

	if len(results) >= len(round.Participants) {
		if _, err := s.finishRound(ctx, room.ID, round); err != nil && !errors.Is(err, domain.ErrInvalidRoomState) {
			s.logger.Error("auto_end_round_failed", "room_id", room.ID, "round_id", round.ID, "err", err)
		}
	}
	return result, nil
}

// PlayerLeft drops a player who has not submitted from the room's open
// round. When everyone left in the round has already submitted, the round
// ends as it would on the last submission.
func (s *GameService) PlayerLeft(ctx context.Context, room *domain.Room, profileID uuid.UUID) error {
	round, err := s.currentRound(ctx, room)
	if errors.Is(err, domain.ErrRoundNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if round == nil || round.Ended() || !isParticipant(round, profileID) {
		return nil
	}

	results, err := s.games.GetResults(ctx, round.ID)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.ProfileID == profileID {
			return nil
		}
	}

	if err := s.games.RemoveParticipant(ctx, round.ID, profileID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	remaining := len(round.Participants) - 1
	s.logger.Info("participant_left", "room_id", room.ID, "round_id", round.ID, "profile_id", profileID, "remaining", remaining)

	if remaining == 0 || len(results) < remaining {
		return nil
	}
	current, err := s.loadRoom(ctx, room.ID)
	if err != nil {
		return err
	}
	if !current.Status.InRound() {
		return nil
	}
	if _, err := s.finishRound(ctx, room.ID, round); err != nil && !errors.Is(err, domain.ErrInvalidRoomState) {
		return err
	}
	return nil
}

func isParticipant(round *domain.SessionRound, profileID uuid.UUID) bool {
	for _, p := range round.Participants {
		if p.ProfileID == profileID {
			return true
		}
	}
	return false
}

// EndRound reveals the current round and returns the room to waiting.
func (s *GameService) EndRound(ctx context.Context, roomID, hostID uuid.UUID) (*RoundResults, error) {
	room, err := s.triangulationRoom(ctx, roomID, hostID)
	if err != nil {
		return nil, err
	}
	if !room.Status.InRound() {
		return nil, domain.ErrInvalidRoomState
	}
	round, err := s.latestRound(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.finishRound(ctx, roomID, round)
}

func (s *GameService) finishRound(ctx context.Context, roomID uuid.UUID, round *domain.SessionRound) (*RoundResults, error) {
	if _, err := s.returnToWaiting(ctx, roomID); err != nil {
		return nil, err
	}
	return s.revealRound(ctx, roomID, round)
}

// returnToWaiting moves any in-round status to waiting and clears the timer,
// retrying when a concurrent pause, resume or deadline changed the status
// underneath.
func (s *GameService) returnToWaiting(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		room, err := s.loadRoom(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if !room.Status.InRound() {
			return nil, domain.ErrInvalidRoomState
		}
		expected := room.Status
		room.Status = domain.RoomStatusWaiting
		room.TimerStartedAt = nil
		room.PausedAt = nil
		room.CountdownStartedAt = nil
		if err := s.transition(ctx, room, expected); err != nil {
			if errors.Is(err, domain.ErrInvalidRoomState) {
				continue
			}
			return nil, err
		}
		s.timers.Cancel(roomID)
		return room, nil
	}
	return nil, domain.ErrInvalidRoomState
}

func (s *GameService) revealRound(ctx context.Context, roomID uuid.UUID, round *domain.SessionRound) (*RoundResults, error) {
	now := s.now()
	round.EndedAt = &now
	round.RevealedAt = &now
	if err := s.games.UpdateRound(ctx, round); err != nil {
		return nil, fmt.Errorf("close round: %w", err)
	}

	results, err := s.games.GetResults(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	rankResults(results)

	s.logger.Info("round_ended", "room_id", roomID, "round_id", round.ID, "submissions", len(results))
	s.events.RoundEnded(ctx, websocket.RoundEndedPayload{
		RoomID:  roomID,
		RoundID: round.ID,
		Results: summarize(results),
	})
	return &RoundResults{RoundID: round.ID, Revealed: true, Results: results}, nil
}

// rankResults orders by correct answers, then by speed.
func rankResults(results []*domain.RoundResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CorrectCount != results[j].CorrectCount {
			return results[i].CorrectCount > results[j].CorrectCount
		}
		return results[i].ElapsedMs < results[j].ElapsedMs
	})
}

func summarize(results []*domain.RoundResult) []websocket.ResultSummary {
	out := make([]websocket.ResultSummary, 0, len(results))
	for _, r := range results {
		out = append(out, websocket.ResultSummary{
			ProfileID:    r.ProfileID,
			Username:     r.Profile.DisplayName(),
			CorrectCount: r.CorrectCount,
			TotalCount:   r.TotalCount,
			ElapsedMs:    r.ElapsedMs,
			Overtime:     r.Overtime,
		})
	}
	return out
}

// EndSession finishes the room in either mode. An unfinished round is
// revealed first.
func (s *GameService) EndSession(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsHost(hostID) {
		return nil, domain.ErrNotRoomHost
	}
	if room.Status == domain.RoomStatusFinished {
		return nil, domain.ErrInvalidRoomState
	}

	var (
		previous domain.RoomStatus
		done     bool
	)
	for attempt := 0; attempt < casAttempts && !done; attempt++ {
		if attempt > 0 {
			if room, err = s.loadRoom(ctx, roomID); err != nil {
				return nil, err
			}
		}
		previous = room.Status
		if err := room.Transition(domain.RoomStatusFinished); err != nil {
			return nil, domain.ErrInvalidRoomState
		}
		room.TimerStartedAt = nil
		room.PausedAt = nil
		room.CountdownStartedAt = nil
		if err := s.transition(ctx, room, previous); err != nil {
			if errors.Is(err, domain.ErrInvalidRoomState) {
				continue
			}
			return nil, err
		}
		done = true
	}
	if !done {
		return nil, domain.ErrInvalidRoomState
	}
	s.timers.Cancel(roomID)

	if round, err := s.latestRound(ctx, roomID); err == nil && !round.Ended() {
		if _, err := s.revealRound(ctx, roomID, round); err != nil {
			s.logger.Error("round_reveal_failed", "room_id", roomID, "round_id", round.ID, "err", err)
		}
	}

	now := s.now()
	session, err := s.games.GetActiveSession(ctx, roomID)
	switch {
	case err == nil:
		session.Status = domain.GameSessionEnded
		session.EndedAt = &now
		if err := s.games.UpdateSession(ctx, session); err != nil {
			return nil, fmt.Errorf("close game session: %w", err)
		}
		s.events.SessionEnded(ctx, websocket.SessionEndedPayload{
			RoomID:    roomID,
			SessionID: session.ID,
			ServerNow: now,
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.events.SessionEnded(ctx, websocket.SessionEndedPayload{RoomID: roomID, ServerNow: now})
	default:
		return nil, err
	}

	s.logger.Info("session_ended", "room_id", roomID, "previous_status", previous)
	return room, nil
}

// GetRoomState builds the synchronization snapshot for a room member.
func (s *GameService) GetRoomState(ctx context.Context, roomID, viewerID uuid.UUID) (*RoomState, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := isRoomMember(ctx, s.rooms, s.players, roomID, viewerID); err != nil {
		return nil, err
	}

	now := s.now()
	clock := room.Clock()
	state := &RoomState{
		RoomID:             room.ID,
		Status:             room.Status,
		ServerNow:          now,
		TimerMinutes:       room.TimerMinutes,
		TimerStartedAt:     room.TimerStartedAt,
		PausedAt:           room.PausedAt,
		CountdownStartedAt: room.CountdownStartedAt,
		RemainingMs:        clock.DisplayRemaining(now).Milliseconds(),
		Overtime:           clock.IsOvertime(now),
	}
	if room.CountdownStartedAt != nil && room.Status == domain.RoomStatusCountdown {
		ends := room.CountdownStartedAt.Add(s.countdown)
		state.CountdownEndsAt = &ends
	}

	round, err := s.latestRound(ctx, roomID)
	if errors.Is(err, domain.ErrRoundNotFound) {
		return state, nil
	}
	if err != nil {
		return nil, err
	}
	results, err := s.games.GetResults(ctx, round.ID)
	if err != nil {
		return nil, err
	}

	rs := &RoundState{
		ID:             round.ID,
		Number:         round.RoundNumber,
		SetID:          round.SetID,
		StartedAt:      round.StartedAt,
		EndedAt:        round.EndedAt,
		Revealed:       round.Revealed(),
		ParticipantIDs: make([]uuid.UUID, 0, len(round.Participants)),
		SubmittedIDs:   make([]uuid.UUID, 0, len(results)),
	}
	for _, p := range round.Participants {
		rs.ParticipantIDs = append(rs.ParticipantIDs, p.ProfileID)
	}
	for _, r := range results {
		rs.SubmittedIDs = append(rs.SubmittedIDs, r.ProfileID)
	}
	state.Round = rs
	return state, nil
}

// GetRoundResults returns a round's results. Before the reveal only the host
// may see them.
func (s *GameService) GetRoundResults(ctx context.Context, roomID, roundID, viewerID uuid.UUID) (*RoundResults, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := isRoomMember(ctx, s.rooms, s.players, roomID, viewerID); err != nil {
		return nil, err
	}
	round, err := s.games.GetRound(ctx, roundID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoundNotFound
		}
		return nil, err
	}
	if round.Session == nil || round.Session.RoomID != roomID {
		return nil, domain.ErrRoundNotFound
	}
	if !round.Revealed() && !room.IsHost(viewerID) {
		return nil, domain.ErrRoundNotRevealed
	}

	results, err := s.games.GetResults(ctx, roundID)
	if err != nil {
		return nil, err
	}
	rankResults(results)
	return &RoundResults{RoundID: round.ID, Revealed: round.Revealed(), Results: results}, nil
}

// Recover re-arms the countdown and deadline timers of rooms that were mid
// round when the process stopped.
func (s *GameService) Recover(ctx context.Context) error {
	rooms, err := s.rooms.ListByStatus(ctx, domain.RoomStatusCountdown, domain.RoomStatusPlaying)
	if err != nil {
		return fmt.Errorf("list active rooms: %w", err)
	}
	for _, room := range rooms {
		switch room.Status {
		case domain.RoomStatusCountdown:
			at := s.now()
			if room.CountdownStartedAt != nil {
				at = room.CountdownStartedAt.Add(s.countdown)
			}
			s.scheduleBeginPlaying(room.ID, at)
		case domain.RoomStatusPlaying:
			s.scheduleDeadline(room.ID, room.Clock().Deadline())
		}
	}
	s.logger.Info("timers_recovered", "rooms", len(rooms))
	return nil
}

func (s *GameService) scheduleBeginPlaying(roomID uuid.UUID, at time.Time) {
	s.timers.Schedule(roomID, at, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timerCallbackTimeout)
		defer cancel()
		if _, err := s.beginPlaying(ctx, roomID); err != nil && !errors.Is(err, domain.ErrInvalidRoomState) {
			s.logger.Error("begin_playing_failed", "room_id", roomID, "err", err)
		}
	})
}

func (s *GameService) scheduleDeadline(roomID uuid.UUID, at time.Time) {
	s.timers.Schedule(roomID, at, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timerCallbackTimeout)
		defer cancel()
		if err := s.ExpireTimer(ctx, roomID); err != nil {
			s.logger.Error("expire_timer_failed", "room_id", roomID, "err", err)
		}
	})
}
