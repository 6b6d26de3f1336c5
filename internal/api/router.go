package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tastelab/cupping-rooms/internal/api/handlers"
	"github.com/tastelab/cupping-rooms/internal/api/middleware"
	"github.com/tastelab/cupping-rooms/internal/config"
	"github.com/tastelab/cupping-rooms/internal/metrics"
	"github.com/tastelab/cupping-rooms/internal/service"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

const requestTimeout = 30 * time.Second

type routeHandlers struct {
	profile   *handlers.ProfileHandler
	room      *handlers.RoomHandler
	coffee    *handlers.CoffeeHandler
	game      *handlers.GameHandler
	cupping   *handlers.CuppingHandler
	dashboard *handlers.DashboardHandler
	realtime  *handlers.RealtimeHandler
}

func NewRouter(services *service.Services, hub *websocket.Hub, verifier middleware.TokenVerifier, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.RequestLogger(&chiMiddleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	h := routeHandlers{
		profile:   handlers.NewProfileHandler(services.Profile, logger),
		room:      handlers.NewRoomHandler(services.Room, logger),
		coffee:    handlers.NewCoffeeHandler(services.Coffee, logger),
		game:      handlers.NewGameHandler(services.Game, logger),
		cupping:   handlers.NewCuppingHandler(services.Cupping, logger),
		dashboard: handlers.NewDashboardHandler(services.Dashboard, logger),
		realtime:  handlers.NewRealtimeHandler(hub, logger),
	}
	webhookHandler := handlers.NewWebhookHandler(services.Webhook, logger)

	auth := middleware.Auth(verifier, services.Profile, logger)
	realtimeAuth := middleware.RealtimeAuth(verifier, services.Profile, logger)
	joinLimiter := middleware.NewKeyedLimiter(cfg.JoinRatePerMinute)

	r.Post("/api/webhooks/auth", webhookHandler.Auth)

	// The web app and the mobile app share one API surface.
	for _, prefix := range []string{"/api/v1", "/api/mobile"} {
		r.Route(prefix, func(r chi.Router) {
			r.With(realtimeAuth).Get("/realtime", h.realtime.Connect)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(requestTimeout))
				r.Use(auth)
				mountAPI(r, h, joinLimiter)
			})
		})
	}

	return r
}

func mountAPI(r chi.Router, h routeHandlers, joinLimiter *middleware.KeyedLimiter) {
	// Profile routes
	r.Route("/profile", func(r chi.Router) {
		r.Get("/me", h.profile.Me)
		r.Patch("/me", h.profile.Update)
		r.Post("/me/photo", h.profile.UploadPhoto)
		r.Post("/onboarding", h.profile.CompleteOnboarding)
		r.Get("/username-check", h.profile.CheckUsername)
	})
	r.Route("/profiles", func(r chi.Router) {
		r.Get("/search", h.profile.Search)
		r.Get("/{username}", h.profile.GetByUsername)
	})

	// Invitation routes
	r.Route("/invitations", func(r chi.Router) {
		r.Get("/", h.room.PendingInvitations)
		r.Post("/{invitationId}/accept", h.room.AcceptInvitation)
		r.Post("/{invitationId}/decline", h.room.DeclineInvitation)
	})

	// Room routes
	r.Route("/rooms", func(r chi.Router) {
		r.Post("/", h.room.Create)
		r.Get("/", h.room.ListMine)
		r.With(middleware.RateLimit(joinLimiter)).Post("/join", h.room.Join)

		// {roomId} also accepts a join code on GET.
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", h.room.Get)
			r.Delete("/", h.room.Delete)
			r.Post("/leave", h.room.Leave)
			r.Patch("/settings", h.room.UpdateSettings)
			r.Get("/players", h.room.Players)
			r.Post("/invitations", h.room.Invite)

			// Coffees and sets
			r.Get("/coffees", h.coffee.List)
			r.Post("/coffees", h.coffee.Add)
			r.Delete("/coffees/{coffeeId}", h.coffee.Delete)
			r.Get("/sets", h.coffee.ListSets)
			r.Post("/sets", h.coffee.CreateManualSet)
			r.Post("/sets/generate", h.coffee.GenerateSet)
			r.Get("/sets/{setId}", h.coffee.GetSet)
			r.Put("/sets/{setId}/rows", h.coffee.UpdateSetRow)
			r.Delete("/sets/{setId}", h.coffee.DeleteSet)

			// Round lifecycle
			r.Get("/state", h.game.State)
			r.Post("/rounds", h.game.StartRound)
			r.Post("/begin", h.game.BeginPlaying())
			r.Post("/pause", h.game.Pause())
			r.Post("/resume", h.game.Resume())
			r.Post("/cancel-countdown", h.game.CancelCountdown())
			r.Post("/timer/start", h.game.StartTimer())
			r.Post("/timer/stop", h.game.StopTimer())
			r.Post("/end-round", h.game.EndRound)
			r.Post("/end-session", h.game.EndSession())
			r.Post("/rounds/{roundId}/answers", h.game.SubmitAnswers)
			r.Get("/rounds/{roundId}/results", h.game.Results)

			r.Get("/cupping", h.cupping.ActiveRoomSession)
		})
	})

	// Cupping routes
	r.Route("/cupping/sessions", func(r chi.Router) {
		r.Post("/", h.cupping.CreateSession)
		r.Get("/", h.cupping.ListMine)
		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", h.cupping.GetSession)
			r.Post("/complete", h.cupping.Complete)
			r.Get("/samples", h.cupping.ListSamples)
			r.Post("/samples", h.cupping.AddSample)
			r.Post("/samples/{sampleId}/scores", h.cupping.SubmitScore)
			r.Get("/scores", h.cupping.ListScores)
			r.Get("/summary", h.cupping.Summary)
		})
	})

	r.Get("/dashboard", h.dashboard.Overview)
}
