package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/repository"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

// CoffeeService manages the samples and triangulation sets of a room.
type CoffeeService struct {
	rooms   repository.RoomRepository
	players repository.RoomPlayerRepository
	coffees repository.CoffeeRepository
	sets    repository.SetRepository
	games   repository.GameRepository
	events  *websocket.EventEmitter

	mu  sync.Mutex
	rng *rand.Rand
}

func NewCoffeeService(repos *repository.Repositories, events *websocket.EventEmitter) *CoffeeService {
	seed := uint64(time.Now().UnixNano())
	return &CoffeeService{
		rooms:   repos.Room,
		players: repos.RoomPlayer,
		coffees: repos.Coffee,
		sets:    repos.Set,
		games:   repos.Game,
		events:  events,
		rng:     rand.New(rand.NewPCG(seed, seed>>32|1)),
	}
}

// CoffeeView is a coffee as a given viewer may see it. Name is nil while
// hidden.
type CoffeeView struct {
	ID     uuid.UUID `json:"id"`
	RoomID uuid.UUID `json:"roomId"`
	Label  string    `json:"label"`
	Name   *string   `json:"name"`
}

// SetRowView hides the answer fields while the set is not revealed.
type SetRowView struct {
	ID           uuid.UUID  `json:"id"`
	RowNumber    int        `json:"rowNumber"`
	PairCoffeeID uuid.UUID  `json:"pairCoffeeId"`
	OddCoffeeID  *uuid.UUID `json:"oddCoffeeId"`
	OddPosition  *int       `json:"oddPosition"`
}

type SetView struct {
	ID       uuid.UUID        `json:"id"`
	RoomID   uuid.UUID        `json:"roomId"`
	Number   int              `json:"number"`
	Source   domain.SetSource `json:"source"`
	Revealed bool             `json:"revealed"`
	Rows     []*SetRowView    `json:"rows"`
}

type SetRowInput struct {
	RowNumber    int       `json:"rowNumber" validate:"min=1,max=8"`
	PairCoffeeID uuid.UUID `json:"pairCoffeeId" validate:"required"`
	OddCoffeeID  uuid.UUID `json:"oddCoffeeId" validate:"required"`
	OddPosition  int       `json:"oddPosition" validate:"min=1,max=3"`
}

func (in SetRowInput) toRow() *domain.RoomSetRow {
	return &domain.RoomSetRow{
		ID:           uuid.New(),
		RowNumber:    in.RowNumber,
		PairCoffeeID: in.PairCoffeeID,
		OddCoffeeID:  in.OddCoffeeID,
		OddPosition:  in.OddPosition,
	}
}

func (s *CoffeeService) loadRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// setupRoom loads a triangulation room the host may still edit.
func (s *CoffeeService) setupRoom(ctx context.Context, roomID, hostID uuid.UUID) (*domain.Room, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsHost(hostID) {
		return nil, domain.ErrNotRoomHost
	}
	if room.Mode != domain.RoomModeTriangulation {
		return nil, domain.ErrWrongRoomMode
	}
	if room.Status != domain.RoomStatusWaiting {
		return nil, domain.ErrInvalidRoomState
	}
	return room, nil
}

func (s *CoffeeService) viewerRoom(ctx context.Context, roomID, viewerID uuid.UUID) (*domain.Room, error) {
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := isRoomMember(ctx, s.rooms, s.players, roomID, viewerID); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *CoffeeService) latestRound(ctx context.Context, roomID uuid.UUID) (*domain.SessionRound, error) {
	round, err := s.games.GetLatestRound(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return round, nil
}

// namesRevealed reports whether non-hosts may see coffee names: after the
// session is over, or between rounds once the last round was revealed.
func namesRevealed(room *domain.Room, latest *domain.SessionRound) bool {
	if room.Status == domain.RoomStatusFinished {
		return true
	}
	return room.Status == domain.RoomStatusWaiting && latest != nil && latest.Revealed()
}

func (s *CoffeeService) AddCoffee(ctx context.Context, roomID, hostID uuid.UUID, name string) (*domain.RoomCoffee, error) {
	if _, err := s.setupRoom(ctx, roomID, hostID); err != nil {
		return nil, err
	}
	if err := domain.ValidateCoffeeName(name); err != nil {
		return nil, err
	}
	existing, err := s.coffees.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	label, err := domain.NextCoffeeLabel(existing)
	if err != nil {
		return nil, err
	}

	coffee := &domain.RoomCoffee{
		ID:     uuid.New(),
		RoomID: roomID,
		Label:  label,
		Name:   strings.TrimSpace(name),
	}
	if err := s.coffees.Create(ctx, coffee); err != nil {
		return nil, fmt.Errorf("create coffee: %w", err)
	}
	s.events.RoomUpdated(ctx, roomID, string(domain.RoomStatusWaiting), ReasonCoffeesChanged)
	return coffee, nil
}

func (s *CoffeeService) ListCoffees(ctx context.Context, roomID, viewerID uuid.UUID) ([]*CoffeeView, error) {
	room, err := s.viewerRoom(ctx, roomID, viewerID)
	if err != nil {
		return nil, err
	}
	coffees, err := s.coffees.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	show := room.IsHost(viewerID)
	if !show {
		latest, err := s.latestRound(ctx, roomID)
		if err != nil {
			return nil, err
		}
		show = namesRevealed(room, latest)
	}

	views := make([]*CoffeeView, 0, len(coffees))
	for _, c := range coffees {
		v := &CoffeeView{ID: c.ID, RoomID: c.RoomID, Label: c.Label}
		if show {
			name := c.Name
			v.Name = &name
		}
		views = append(views, v)
	}
	return views, nil
}

// DeleteCoffee removes a coffee no set row refers to.
func (s *CoffeeService) DeleteCoffee(ctx context.Context, roomID, coffeeID, hostID uuid.UUID) error {
	if _, err := s.setupRoom(ctx, roomID, hostID); err != nil {
		return err
	}
	coffee, err := s.coffees.GetByID(ctx, coffeeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrCoffeeNotFound
		}
		return err
	}
	if coffee.RoomID != roomID {
		return domain.ErrCoffeeNotFound
	}
	used, err := s.coffees.IsReferenced(ctx, coffeeID)
	if err != nil {
		return err
	}
	if used {
		return domain.ErrCoffeeInUse
	}
	if err := s.coffees.Delete(ctx, coffeeID); err != nil {
		return fmt.Errorf("delete coffee: %w", err)
	}
	s.events.RoomUpdated(ctx, roomID, string(domain.RoomStatusWaiting), ReasonCoffeesChanged)
	return nil
}

// GenerateSet draws a random set over the room's coffees.
func (s *CoffeeService) GenerateSet(ctx context.Context, roomID, hostID uuid.UUID) (*domain.RoomSet, error) {
	if _, err := s.setupRoom(ctx, roomID, hostID); err != nil {
		return nil, err
	}
	coffees, err := s.coffees.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	rows, err := domain.GenerateSetRows(coffees, s.rng)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.createSet(ctx, roomID, domain.SetSourceRandom, rows)
}

func (s *CoffeeService) CreateManualSet(ctx context.Context, roomID, hostID uuid.UUID, inputs []SetRowInput) (*domain.RoomSet, error) {
	if _, err := s.setupRoom(ctx, roomID, hostID); err != nil {
		return nil, err
	}
	coffees, err := s.coffees.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(coffees) < 2 {
		return nil, domain.ErrNotEnoughCoffees
	}

	rows := make([]*domain.RoomSetRow, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, in.toRow())
	}
	if err := domain.ValidateSetRows(rows, coffees); err != nil {
		return nil, err
	}
	return s.createSet(ctx, roomID, domain.SetSourceManual, rows)
}

func (s *CoffeeService) createSet(ctx context.Context, roomID uuid.UUID, source domain.SetSource, rows []*domain.RoomSetRow) (*domain.RoomSet, error) {
	number, err := s.sets.NextNumber(ctx, roomID)
	if err != nil {
		return nil, err
	}
	set := &domain.RoomSet{
		ID:     uuid.New(),
		RoomID: roomID,
		Number: number,
		Source: source,
		Rows:   rows,
	}
	for _, r := range rows {
		r.SetID = set.ID
	}
	if err := s.sets.Create(ctx, set); err != nil {
		return nil, fmt.Errorf("create set: %w", err)
	}
	s.events.RoomUpdated(ctx, roomID, string(domain.RoomStatusWaiting), ReasonSetsChanged)
	return set, nil
}

func (s *CoffeeService) loadSet(ctx context.Context, roomID, setID uuid.UUID) (*domain.RoomSet, error) {
	set, err := s.sets.GetByID(ctx, setID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSetNotFound
		}
		return nil, err
	}
	if set.RoomID != roomID {
		return nil, domain.ErrSetNotFound
	}
	return set, nil
}

// UpdateSetRow replaces one row of a set that has not been played yet.
func (s *CoffeeService) UpdateSetRow(ctx context.Context, roomID, setID, hostID uuid.UUID, input SetRowInput) (*domain.RoomSetRow, error) {
	if _, err := s.setupRoom(ctx, roomID, hostID); err != nil {
		return nil, err
	}
	set, err := s.loadSet(ctx, roomID, setID)
	if err != nil {
		return nil, err
	}
	used, err := s.games.IsSetUsed(ctx, setID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, domain.ErrSetInUse
	}

	var row *domain.RoomSetRow
	for _, r := range set.Rows {
		if r.RowNumber == input.RowNumber {
			row = r
			break
		}
	}
	if row == nil {
		return nil, domain.ErrSetRowNotFound
	}

	row.PairCoffeeID = input.PairCoffeeID
	row.OddCoffeeID = input.OddCoffeeID
	row.OddPosition = input.OddPosition
	if err := row.Validate(); err != nil {
		return nil, err
	}
	coffees, err := s.coffees.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !coffeeInRoom(coffees, row.PairCoffeeID) || !coffeeInRoom(coffees, row.OddCoffeeID) {
		return nil, domain.ErrCoffeeNotInRoom
	}

	if err := s.sets.UpdateRow(ctx, row); err != nil {
		return nil, fmt.Errorf("update set row: %w", err)
	}
	s.events.RoomUpdated(ctx, roomID, string(domain.RoomStatusWaiting), ReasonSetsChanged)
	return row, nil
}

func coffeeInRoom(coffees []*domain.RoomCoffee, id uuid.UUID) bool {
	for _, c := range coffees {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *CoffeeService) DeleteSet(ctx context.Context, roomID, setID, hostID uuid.UUID) error {
	if _, err := s.setupRoom(ctx, roomID, hostID); err != nil {
		return err
	}
	if _, err := s.loadSet(ctx, roomID, setID); err != nil {
		return err
	}
	used, err := s.games.IsSetUsed(ctx, setID)
	if err != nil {
		return err
	}
	if used {
		return domain.ErrSetInUse
	}
	if err := s.sets.Delete(ctx, setID); err != nil {
		return fmt.Errorf("delete set: %w", err)
	}
	s.events.RoomUpdated(ctx, roomID, string(domain.RoomStatusWaiting), ReasonSetsChanged)
	return nil
}

func (s *CoffeeService) ListSets(ctx context.Context, roomID, viewerID uuid.UUID) ([]*SetView, error) {
	room, err := s.viewerRoom(ctx, roomID, viewerID)
	if err != nil {
		return nil, err
	}
	sets, err := s.sets.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	views := make([]*SetView, 0, len(sets))
	for _, set := range sets {
		revealed, err := s.setRevealed(ctx, room, set)
		if err != nil {
			return nil, err
		}
		views = append(views, toSetView(set, revealed || room.IsHost(viewerID), revealed))
	}
	return views, nil
}

func (s *CoffeeService) GetSet(ctx context.Context, roomID, setID, viewerID uuid.UUID) (*SetView, error) {
	room, err := s.viewerRoom(ctx, roomID, viewerID)
	if err != nil {
		return nil, err
	}
	set, err := s.loadSet(ctx, roomID, setID)
	if err != nil {
		return nil, err
	}
	revealed, err := s.setRevealed(ctx, room, set)
	if err != nil {
		return nil, err
	}
	return toSetView(set, revealed || room.IsHost(viewerID), revealed), nil
}

// setRevealed: a set's answers are public once the room is finished or a
// round that played it has been revealed. Rounds closed by a cancelled
// countdown never reveal.
func (s *CoffeeService) setRevealed(ctx context.Context, room *domain.Room, set *domain.RoomSet) (bool, error) {
	if room.Status == domain.RoomStatusFinished {
		return true, nil
	}
	return s.games.IsSetRevealed(ctx, set.ID)
}

func toSetView(set *domain.RoomSet, showAnswers, revealed bool) *SetView {
	view := &SetView{
		ID:       set.ID,
		RoomID:   set.RoomID,
		Number:   set.Number,
		Source:   set.Source,
		Revealed: revealed,
		Rows:     make([]*SetRowView, 0, len(set.Rows)),
	}
	for _, r := range set.Rows {
		rv := &SetRowView{ID: r.ID, RowNumber: r.RowNumber, PairCoffeeID: r.PairCoffeeID}
		if showAnswers {
			odd, pos := r.OddCoffeeID, r.OddPosition
			rv.OddCoffeeID = &odd
			rv.OddPosition = &pos
		}
		view.Rows = append(view.Rows, rv)
	}
	return view
}
