package postgres

import (
	"time"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table in migration order.
func Models() []interface{} {
	return []interface{}{
		&domain.UserProfile{},
		&domain.Room{},
		&domain.RoomPlayer{},
		&domain.RoomInvitation{},
		&domain.RoomCoffee{},
		&domain.RoomSet{},
		&domain.RoomSetRow{},
		&domain.GameSession{},
		&domain.SessionRound{},
		&domain.RoundParticipant{},
		&domain.RoundResult{},
		&domain.PlayerAnswer{},
		&domain.CuppingSession{},
		&domain.CuppingSample{},
		&domain.CuppingScore{},
	}
}

func NewConnection(databaseURL string, debug bool) (*gorm.DB, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates every table plus the indexes gorm tags cannot
// express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_user_profiles_username_lower ON user_profiles (LOWER(username))").Error
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		Profile:    NewProfileRepository(db),
		Room:       NewRoomRepository(db),
		RoomPlayer: NewRoomPlayerRepository(db),
		Invitation: NewInvitationRepository(db),
		Coffee:     NewCoffeeRepository(db),
		Set:        NewSetRepository(db),
		Game:       NewGameRepository(db),
		Cupping:    NewCuppingRepository(db),
	}
}
