package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tastelab/cupping-rooms/internal/domain"
)

// ProfileBuilder creates test profiles with a builder pattern
type ProfileBuilder struct {
	clerkID   string
	username  string
	onboarded bool
}

// NewProfileBuilder creates an onboarded profile with a random username
func NewProfileBuilder() *ProfileBuilder {
	suffix := uuid.New().String()[:8]
	return &ProfileBuilder{
		clerkID:   "user_" + suffix,
		username:  "cupper_" + suffix,
		onboarded: true,
	}
}

func (b *ProfileBuilder) WithClerkID(clerkID string) *ProfileBuilder {
	b.clerkID = clerkID
	return b
}

func (b *ProfileBuilder) WithUsername(username string) *ProfileBuilder {
	b.username = username
	return b
}

// WithoutOnboarding leaves the profile without a username
func (b *ProfileBuilder) WithoutOnboarding() *ProfileBuilder {
	b.onboarded = false
	return b
}

// Build creates the profile in the database
func (b *ProfileBuilder) Build(t *testing.T, db *gorm.DB) *domain.UserProfile {
	t.Helper()

	profile := &domain.UserProfile{
		ID:      uuid.New(),
		ClerkID: b.clerkID,
	}
	if b.onboarded {
		username := b.username
		profile.Username = &username
		profile.OnboardingCompleted = true
	}

	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	return profile
}

// RoomBuilder creates test rooms with a builder pattern
type RoomBuilder struct {
	host         *domain.UserProfile
	name         string
	mode         domain.RoomMode
	status       domain.RoomStatus
	timerMinutes int
	players      []*domain.UserProfile
	coffees      []string
}

// NewRoomBuilder creates a waiting triangulation room with an 8 minute timer
func NewRoomBuilder() *RoomBuilder {
	return &RoomBuilder{
		name:         "Morning cupping",
		mode:         domain.RoomModeTriangulation,
		status:       domain.RoomStatusWaiting,
		timerMinutes: 8,
	}
}

func (b *RoomBuilder) WithHost(host *domain.UserProfile) *RoomBuilder {
	b.host = host
	return b
}

func (b *RoomBuilder) WithName(name string) *RoomBuilder {
	b.name = name
	return b
}

func (b *RoomBuilder) WithMode(mode domain.RoomMode) *RoomBuilder {
	b.mode = mode
	return b
}

func (b *RoomBuilder) WithStatus(status domain.RoomStatus) *RoomBuilder {
	b.status = status
	return b
}

func (b *RoomBuilder) WithTimerMinutes(minutes int) *RoomBuilder {
	b.timerMinutes = minutes
	return b
}

// WithPlayers adds non-host players
func (b *RoomBuilder) WithPlayers(players ...*domain.UserProfile) *RoomBuilder {
	b.players = append(b.players, players...)
	return b
}

// WithCoffees adds coffees labelled A, B, C... in order
func (b *RoomBuilder) WithCoffees(names ...string) *RoomBuilder {
	b.coffees = append(b.coffees, names...)
	return b
}

// Build creates the room, its players and coffees in the database
func (b *RoomBuilder) Build(t *testing.T, db *gorm.DB) *domain.Room {
	t.Helper()

	if b.host == nil {
		b.host = NewProfileBuilder().Build(t, db)
	}

	code, err := domain.GenerateRoomCode()
	if err != nil {
		t.Fatalf("failed to generate room code: %v", err)
	}

	room := &domain.Room{
		ID:           uuid.New(),
		Code:         code,
		Name:         b.name,
		HostID:       b.host.ID,
		Mode:         b.mode,
		Status:       b.status,
		TimerMinutes: b.timerMinutes,
	}
	if b.mode == domain.RoomModeCupping {
		room.Settings = datatypes.NewJSONType(domain.RoomSettings{FormType: domain.CuppingFormSCA})
	}
	if err := db.Omit("Host").Create(room).Error; err != nil {
		t.Fatalf("failed to create room: %v", err)
	}

	for _, p := range append([]*domain.UserProfile{b.host}, b.players...) {
		player := &domain.RoomPlayer{ID: uuid.New(), RoomID: room.ID, ProfileID: p.ID}
		if err := db.Omit("Profile", "Room").Create(player).Error; err != nil {
			t.Fatalf("failed to add player: %v", err)
		}
	}

	for i, name := range b.coffees {
		coffee := &domain.RoomCoffee{
			ID:     uuid.New(),
			RoomID: room.ID,
			Label:  string(rune('A' + i)),
			Name:   name,
		}
		if err := db.Omit("Room").Create(coffee).Error; err != nil {
			t.Fatalf("failed to create coffee: %v", err)
		}
	}

	return room
}

// Coffees returns the room's coffees ordered by label
func Coffees(t *testing.T, db *gorm.DB, roomID uuid.UUID) []*domain.RoomCoffee {
	t.Helper()

	var coffees []*domain.RoomCoffee
	if err := db.Where("room_id = ?", roomID).Order("label").Find(&coffees).Error; err != nil {
		t.Fatalf("failed to load coffees: %v", err)
	}
	return coffees
}

// BuildSet stores a manual set over the room's first two coffees. The odd
// cup of row n sits at position (n-1)%3+1.
func BuildSet(t *testing.T, db *gorm.DB, room *domain.Room) *domain.RoomSet {
	t.Helper()

	coffees := Coffees(t, db, room.ID)
	if len(coffees) < 2 {
		t.Fatalf("room %s needs at least 2 coffees for a set", room.ID)
	}

	var count int64
	db.Model(&domain.RoomSet{}).Where("room_id = ?", room.ID).Count(&count)

	set := &domain.RoomSet{
		ID:     uuid.New(),
		RoomID: room.ID,
		Number: int(count) + 1,
		Source: domain.SetSourceManual,
	}
	for i := 1; i <= domain.SetRowCount; i++ {
		pair, odd := coffees[0], coffees[1]
		if i%2 == 0 {
			pair, odd = odd, pair
		}
		set.Rows = append(set.Rows, &domain.RoomSetRow{
			ID:           uuid.New(),
			RowNumber:    i,
			PairCoffeeID: pair.ID,
			OddCoffeeID:  odd.ID,
			OddPosition:  ExpectedOddPosition(i),
		})
	}
	if err := db.Omit("Room").Create(set).Error; err != nil {
		t.Fatalf("failed to create set: %v", err)
	}
	return set
}

// ExpectedOddPosition is the odd cup position BuildSet uses for row.
func ExpectedOddPosition(row int) int {
	return (row-1)%domain.CupsPerRow + 1
}

// Answers builds a full answer sheet for a BuildSet set with the first
// correct rows answered correctly and the rest wrong.
func Answers(correct int) []domain.AnswerInput {
	answers := make([]domain.AnswerInput, 0, domain.SetRowCount)
	for i := 1; i <= domain.SetRowCount; i++ {
		pos := ExpectedOddPosition(i)
		if i > correct {
			pos = pos%domain.CupsPerRow + 1
		}
		answers = append(answers, domain.AnswerInput{RowNumber: i, SelectedPosition: pos})
	}
	return answers
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// Do sends an authenticated JSON request and returns the response. The
// body is closed at test cleanup.
func Do(t *testing.T, method, url string, body interface{}, token string) *http.Response {
	t.Helper()

	resp, err := http.DefaultClient.Do(CreateAuthenticatedRequest(t, method, url, body, token))
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// DoJSON sends the request, requires wantStatus and decodes the body into out.
func DoJSON(t *testing.T, method, url string, body interface{}, token string, wantStatus int, out interface{}) {
	t.Helper()

	resp := Do(t, method, url, body, token)
	if resp.StatusCode != wantStatus {
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", method, url, resp.StatusCode, wantStatus, buf.String())
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, url, err)
		}
	}
}

func RoomPath(roomID uuid.UUID, suffix string) string {
	return fmt.Sprintf("/rooms/%s%s", roomID, suffix)
}
