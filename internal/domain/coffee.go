package domain

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxCoffeesPerRoom = 26
	MaxCoffeeNameLen  = 80
	SetRowCount       = 8
	CupsPerRow        = 3
)

// RoomCoffee is a host-entered sample. Name is hidden from non-hosts until
// the round is revealed.
type RoomCoffee struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoomID    uuid.UUID `json:"roomId" gorm:"type:uuid;not null;uniqueIndex:idx_room_coffee_label"`
	Label     string    `json:"label" gorm:"type:varchar(2);not null;uniqueIndex:idx_room_coffee_label"`
	Name      string    `json:"name" gorm:"type:varchar(80);not null"`
	CreatedAt time.Time `json:"createdAt"`

	Room *Room `json:"-" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

func ValidateCoffeeName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > MaxCoffeeNameLen {
		return ErrInvalidCoffeeName
	}
	return nil
}

// NextCoffeeLabel returns the first unused letter A-Z.
func NextCoffeeLabel(existing []*RoomCoffee) (string, error) {
	used := make(map[string]bool, len(existing))
	for _, c := range existing {
		used[c.Label] = true
	}
	for ch := 'A'; ch <= 'Z'; ch++ {
		if !used[string(ch)] {
			return string(ch), nil
		}
	}
	return "", ErrTooManyCoffees
}

type SetSource string

const (
	SetSourceRandom SetSource = "random"
	SetSourceManual SetSource = "manual"
)

type RoomSet struct {
	ID        uuid.UUID     `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoomID    uuid.UUID     `json:"roomId" gorm:"type:uuid;not null;index"`
	Number    int           `json:"number" gorm:"not null"`
	Source    SetSource     `json:"source" gorm:"type:varchar(10);not null"`
	CreatedAt time.Time     `json:"createdAt"`
	Rows      []*RoomSetRow `json:"rows" gorm:"foreignKey:SetID;constraint:OnDelete:CASCADE"`

	Room *Room `json:"-" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

type RoomSetRow struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SetID        uuid.UUID `json:"setId" gorm:"type:uuid;not null;uniqueIndex:idx_set_row"`
	RowNumber    int       `json:"rowNumber" gorm:"not null;uniqueIndex:idx_set_row"`
	PairCoffeeID uuid.UUID `json:"pairCoffeeId" gorm:"type:uuid;not null"`
	OddCoffeeID  uuid.UUID `json:"oddCoffeeId" gorm:"type:uuid;not null"`
	OddPosition  int       `json:"oddPosition" gorm:"not null"`
}

// Validate checks the per-row invariants: pair and odd differ and the odd
// cup sits at position 1-3.
func (r *RoomSetRow) Validate() error {
	if r.PairCoffeeID == r.OddCoffeeID {
		return ErrPairEqualsOdd
	}
	if r.OddPosition < 1 || r.OddPosition > CupsPerRow {
		return ErrInvalidOddPosition
	}
	return nil
}

// ValidateSetRows checks a full set: exactly rows 1-8, each valid, every
// coffee belonging to the room.
func ValidateSetRows(rows []*RoomSetRow, roomCoffees []*RoomCoffee) error {
	if len(rows) != SetRowCount {
		return ErrInvalidSetRows
	}
	known := make(map[uuid.UUID]bool, len(roomCoffees))
	for _, c := range roomCoffees {
		known[c.ID] = true
	}
	seen := make(map[int]bool, SetRowCount)
	for _, row := range rows {
		if row.RowNumber < 1 || row.RowNumber > SetRowCount || seen[row.RowNumber] {
			return ErrInvalidSetRows
		}
		seen[row.RowNumber] = true
		if err := row.Validate(); err != nil {
			return err
		}
		if !known[row.PairCoffeeID] || !known[row.OddCoffeeID] {
			return ErrCoffeeNotInRoom
		}
	}
	return nil
}

// GenerateSetRows draws SetRowCount independent rows. Each row picks a random
// odd coffee, a distinct random pair coffee and a random odd cup position.
// Rows carry no coverage guarantee across the set.
func GenerateSetRows(coffees []*RoomCoffee, rng *rand.Rand) ([]*RoomSetRow, error) {
	if len(coffees) < 2 {
		return nil, ErrNotEnoughCoffees
	}
	rows := make([]*RoomSetRow, 0, SetRowCount)
	for i := 1; i <= SetRowCount; i++ {
		oddIdx := rng.IntN(len(coffees))
		pairIdx := rng.IntN(len(coffees) - 1)
		if pairIdx >= oddIdx {
			pairIdx++
		}
		rows = append(rows, &RoomSetRow{
			ID:           uuid.New(),
			RowNumber:    i,
			OddCoffeeID:  coffees[oddIdx].ID,
			PairCoffeeID: coffees[pairIdx].ID,
			OddPosition:  rng.IntN(CupsPerRow) + 1,
		})
	}
	return rows, nil
}
