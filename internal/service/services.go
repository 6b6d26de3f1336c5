package service

import (
	"log/slog"

	"github.com/tastelab/cupping-rooms/internal/config"
	"github.com/tastelab/cupping-rooms/internal/metrics"
	"github.com/tastelab/cupping-rooms/internal/repository"
	"github.com/tastelab/cupping-rooms/internal/storage"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

// Deps carries the shared infrastructure every service is built from.
// Photos and Metrics may be nil.
type Deps struct {
	Repos   *repository.Repositories
	Config  *config.Config
	Events  *websocket.EventEmitter
	Timers  *websocket.TimerManager
	Photos  storage.PhotoStore
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Services struct {
	Profile   *ProfileService
	Room      *RoomService
	Coffee    *CoffeeService
	Game      *GameService
	Cupping   *CuppingService
	Dashboard *DashboardService
	Webhook   *WebhookService
}

func NewServices(deps Deps) *Services {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timers == nil {
		deps.Timers = websocket.NewTimerManager()
	}

	profile := NewProfileService(deps.Repos.Profile, deps.Photos, deps.Logger)
	room := NewRoomService(deps.Repos, deps.Events, deps.Metrics, deps.Logger)
	game := NewGameService(deps.Repos, deps.Events, deps.Timers, deps.Config.CountdownDuration, deps.Metrics, deps.Logger)
	room.game = game

	return &Services{
		Profile:   profile,
		Room:      room,
		Coffee:    NewCoffeeService(deps.Repos, deps.Events),
		Game:      game,
		Cupping:   NewCuppingService(deps.Repos, deps.Events, deps.Metrics),
		Dashboard: NewDashboardService(deps.Repos),
		Webhook:   NewWebhookService(deps.Config.WebhookSecret, profile, deps.Logger),
	}
}
