package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/metrics"
	"github.com/tastelab/cupping-rooms/internal/repository"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

type CuppingService struct {
	rooms   repository.RoomRepository
	players repository.RoomPlayerRepository
	cupping repository.CuppingRepository
	events  *websocket.EventEmitter
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewCuppingService(repos *repository.Repositories, events *websocket.EventEmitter, m *metrics.Metrics) *CuppingService {
	return &CuppingService{
		rooms:   repos.Room,
		players: repos.RoomPlayer,
		cupping: repos.Cupping,
		events:  events,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type CreateCuppingSessionInput struct {
	Name     string                 `json:"name" validate:"required,max=80"`
	FormType domain.CuppingFormType `json:"formType" validate:"omitempty,oneof=sca simple"`
	RoomID   *uuid.UUID             `json:"roomId"`
}

type AddSampleInput struct {
	Name  string `json:"name" validate:"required,max=80"`
	Notes string `json:"notes" validate:"max=1000"`
}

type SubmitScoreInput struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// SampleSummary aggregates the visible scores of one sample.
type SampleSummary struct {
	SampleID uuid.UUID `json:"sampleId"`
	Number   int       `json:"number"`
	Name     string    `json:"name"`
	Count    int       `json:"count"`
	Average  float64   `json:"average"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
}

// CreateSession starts a solo session, or a shared one inside a cupping room
// the caller hosts.
func (s *CuppingService) CreateSession(ctx context.Context, host *domain.UserProfile, input CreateCuppingSessionInput) (*domain.CuppingSession, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || len([]rune(name)) > domain.MaxCoffeeNameLen {
		return nil, domain.ErrInvalidSampleName
	}

	session := &domain.CuppingSession{
		ID:       uuid.New(),
		HostID:   host.ID,
		Name:     name,
		FormType: input.FormType,
		Status:   domain.CuppingSessionActive,
	}

	if input.RoomID != nil {
		room, err := s.rooms.GetByID(ctx, *input.RoomID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, domain.ErrRoomNotFound
			}
			return nil, err
		}
		if !room.IsHost(host.ID) {
			return nil, domain.ErrNotRoomHost
		}
		if room.Mode != domain.RoomModeCupping {
			return nil, domain.ErrWrongRoomMode
		}
		if room.Status == domain.RoomStatusFinished {
			return nil, domain.ErrInvalidRoomState
		}
		if _, err := s.cupping.GetActiveSessionByRoom(ctx, room.ID); err == nil {
			return nil, domain.ErrInvalidRoomState
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if session.FormType == "" {
			session.FormType = room.Settings.Data().FormType
		}
		session.RoomID = &room.ID
	}

	if session.FormType == "" {
		session.FormType = domain.CuppingFormSCA
	}
	if !session.FormType.Valid() {
		return nil, domain.ErrInvalidFormType
	}

	if err := s.cupping.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create cupping session: %w", err)
	}
	if session.RoomID != nil {
		s.events.RoomUpdated(ctx, *session.RoomID, string(domain.RoomStatusWaiting), ReasonCuppingChanged)
	}
	return session, nil
}

func (s *CuppingService) loadSession(ctx context.Context, sessionID uuid.UUID) (*domain.CuppingSession, error) {
	session, err := s.cupping.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCuppingSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// viewableSession loads a session the viewer hosts or, for room sessions,
// is a member of. Other sessions are reported as missing.
func (s *CuppingService) viewableSession(ctx context.Context, sessionID, viewerID uuid.UUID) (*domain.CuppingSession, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HostID == viewerID {
		return session, nil
	}
	if session.RoomID == nil {
		return nil, domain.ErrCuppingSessionNotFound
	}
	if err := isRoomMember(ctx, s.rooms, s.players, *session.RoomID, viewerID); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *CuppingService) hostSession(ctx context.Context, sessionID, hostID uuid.UUID) (*domain.CuppingSession, error) {
	session, err := s.viewableSession(ctx, sessionID, hostID)
	if err != nil {
		return nil, err
	}
	if session.HostID != hostID {
		return nil, domain.ErrNotRoomHost
	}
	return session, nil
}

func (s *CuppingService) GetSession(ctx context.Context, sessionID, viewerID uuid.UUID) (*domain.CuppingSession, error) {
	return s.viewableSession(ctx, sessionID, viewerID)
}

// GetActiveRoomSession returns the running session of a cupping room.
func (s *CuppingService) GetActiveRoomSession(ctx context.Context, roomID, viewerID uuid.UUID) (*domain.CuppingSession, error) {
	if err := isRoomMember(ctx, s.rooms, s.players, roomID, viewerID); err != nil {
		return nil, err
	}
	session, err := s.cupping.GetActiveSessionByRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCuppingSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *CuppingService) ListMySessions(ctx context.Context, profileID uuid.UUID, limit, offset int) ([]*domain.CuppingSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.cupping.GetSessionsByProfile(ctx, profileID, limit, offset)
}

func (s *CuppingService) AddSample(ctx context.Context, sessionID, hostID uuid.UUID, input AddSampleInput) (*domain.CuppingSample, error) {
	session, err := s.hostSession(ctx, sessionID, hostID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.CuppingSessionActive {
		return nil, domain.ErrCuppingSessionClosed
	}
	name := strings.TrimSpace(input.Name)
	if err := domain.ValidateCoffeeName(name); err != nil {
		return nil, domain.ErrInvalidSampleName
	}

	number, err := s.cupping.NextSampleNumber(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	sample := &domain.CuppingSample{
		ID:        uuid.New(),
		SessionID: session.ID,
		Number:    number,
		Name:      name,
		Notes:     input.Notes,
	}
	if err := s.cupping.CreateSample(ctx, sample); err != nil {
		return nil, fmt.Errorf("create sample: %w", err)
	}
	if session.RoomID != nil {
		s.events.RoomUpdated(ctx, *session.RoomID, string(domain.RoomStatusWaiting), ReasonCuppingChanged)
	}
	return sample, nil
}

func (s *CuppingService) ListSamples(ctx context.Context, sessionID, viewerID uuid.UUID) ([]*domain.CuppingSample, error) {
	if _, err := s.viewableSession(ctx, sessionID, viewerID); err != nil {
		return nil, err
	}
	return s.cupping.GetSamples(ctx, sessionID)
}

// SubmitScore validates and stores one player's form for a sample. Each
// player scores a sample once.
func (s *CuppingService) SubmitScore(ctx context.Context, sessionID, sampleID uuid.UUID, player *domain.UserProfile, input SubmitScoreInput) (*domain.CuppingScore, error) {
	session, err := s.viewableSession(ctx, sessionID, player.ID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.CuppingSessionActive {
		return nil, domain.ErrCuppingSessionClosed
	}
	sample, err := s.cupping.GetSample(ctx, sampleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSampleNotFound
		}
		return nil, err
	}
	if sample.SessionID != session.ID {
		return nil, domain.ErrSampleNotFound
	}

	total, payload, err := domain.ScoreCuppingPayload(session.FormType, input.Payload)
	if err != nil {
		return nil, err
	}

	score := &domain.CuppingScore{
		ID:          uuid.New(),
		SessionID:   session.ID,
		SampleID:    sample.ID,
		ProfileID:   player.ID,
		FormType:    session.FormType,
		Payload:     payload,
		TotalScore:  total,
		SubmittedAt: s.now(),
	}
	if err := s.cupping.CreateScore(ctx, score); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.ErrScoreAlreadySubmitted
		}
		return nil, fmt.Errorf("store score: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CuppingScores.WithLabelValues(string(session.FormType)).Inc()
	}

	if session.RoomID != nil {
		s.events.CuppingScoreSubmitted(ctx, *session.RoomID, websocket.CuppingScoreSubmittedPayload{
			SessionID:  session.ID,
			SampleID:   sample.ID,
			ProfileID:  player.ID,
			Username:   player.DisplayName(),
			TotalScore: total,
		})
	}
	return score, nil
}

// ListScores returns the scores the viewer may see: all of them for the
// host or once the session is completed, otherwise only the viewer's own.
func (s *CuppingService) ListScores(ctx context.Context, sessionID, viewerID uuid.UUID) ([]*domain.CuppingScore, error) {
	session, err := s.viewableSession(ctx, sessionID, viewerID)
	if err != nil {
		return nil, err
	}
	scores, err := s.cupping.GetScores(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HostID == viewerID || session.Status == domain.CuppingSessionCompleted {
		return scores, nil
	}
	own := make([]*domain.CuppingScore, 0, len(scores))
	for _, sc := range scores {
		if sc.ProfileID == viewerID {
			own = append(own, sc)
		}
	}
	return own, nil
}

func (s *CuppingService) CompleteSession(ctx context.Context, sessionID, hostID uuid.UUID) (*domain.CuppingSession, error) {
	session, err := s.hostSession(ctx, sessionID, hostID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.CuppingSessionCompleted {
		return nil, domain.ErrCuppingSessionClosed
	}
	now := s.now()
	session.Status = domain.CuppingSessionCompleted
	session.CompletedAt = &now
	if err := s.cupping.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("complete cupping session: %w", err)
	}
	if session.RoomID != nil {
		s.events.RoomUpdated(ctx, *session.RoomID, string(domain.RoomStatusWaiting), ReasonCuppingChanged)
	}
	return session, nil
}

// SampleSummary reports count, average, min and max per sample over the
// scores visible to the viewer. Samples without scores have zero values.
func (s *CuppingService) SampleSummary(ctx context.Context, sessionID, viewerID uuid.UUID) ([]*SampleSummary, error) {
	scores, err := s.ListScores(ctx, sessionID, viewerID)
	if err != nil {
		return nil, err
	}
	samples, err := s.cupping.GetSamples(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return summarizeSamples(samples, scores), nil
}

func summarizeSamples(samples []*domain.CuppingSample, scores []*domain.CuppingScore) []*SampleSummary {
	bySample := make(map[uuid.UUID][]float64, len(samples))
	for _, sc := range scores {
		bySample[sc.SampleID] = append(bySample[sc.SampleID], sc.TotalScore)
	}

	out := make([]*SampleSummary, 0, len(samples))
	for _, sample := range samples {
		sum := &SampleSummary{SampleID: sample.ID, Number: sample.Number, Name: sample.Name}
		totals := bySample[sample.ID]
		if len(totals) > 0 {
			sum.Count = len(totals)
			sum.Min, sum.Max = math.Inf(1), math.Inf(-1)
			var acc float64
			for _, v := range totals {
				acc += v
				sum.Min = math.Min(sum.Min, v)
				sum.Max = math.Max(sum.Max, v)
			}
			sum.Average = domain.RoundTo2(acc / float64(len(totals)))
		}
		out = append(out, sum)
	}
	return out
}
