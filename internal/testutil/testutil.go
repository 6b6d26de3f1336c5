package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tastelab/cupping-rooms/internal/api"
	"github.com/tastelab/cupping-rooms/internal/auth"
	"github.com/tastelab/cupping-rooms/internal/config"
	"github.com/tastelab/cupping-rooms/internal/logging"
	"github.com/tastelab/cupping-rooms/internal/metrics"
	"github.com/tastelab/cupping-rooms/internal/repository"
	repoPostgres "github.com/tastelab/cupping-rooms/internal/repository/postgres"
	"github.com/tastelab/cupping-rooms/internal/service"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

const (
	TestDevSecret     = "test-dev-secret-for-testing-only"
	TestWebhookSecret = "whsec_dGVzdC13ZWJob29rLXNlY3JldA=="
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB starts a PostgreSQL container and returns a migrated connection.
// The test is skipped when no container runtime is available.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:16-alpine",
		tcPostgres.WithDatabase("test_cupping_rooms"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		ctx := context.Background()
		tdb.Container.Terminate(ctx)
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		Environment:       "test",
		AuthDevSecret:     TestDevSecret,
		WebhookSecret:     TestWebhookSecret,
		CountdownDuration: 50 * time.Millisecond,
		JoinRatePerMinute: 1000,
	}
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	DB       *TestDB
	Repos    *repository.Repositories
	Services *service.Services
	Hub      *websocket.Hub
	Timers   *websocket.TimerManager
	Metrics  *metrics.Metrics
	Config   *config.Config
}

// NewTestServer creates a complete test server with all dependencies
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	return NewTestServerWithConfig(t, TestConfig())
}

func NewTestServerWithConfig(t *testing.T, cfg *config.Config) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	logger := logging.Discard()
	m := metrics.New()

	repos := repoPostgres.NewRepositories(testDB.DB)
	hub := websocket.NewHub(websocket.NewMemoryBroker(), service.NewRealtimeAuthorizer(repos), m, logger)
	go hub.Run()
	timers := websocket.NewTimerManager()

	services := service.NewServices(service.Deps{
		Repos:   repos,
		Config:  cfg,
		Events:  websocket.NewEventEmitter(hub, logger),
		Timers:  timers,
		Metrics: m,
		Logger:  logger,
	})

	verifier, err := auth.NewVerifier("", cfg.AuthDevSecret, cfg.AuthIssuer)
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	router := api.NewRouter(services, hub, verifier, m, cfg, logger)
	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		DB:       testDB,
		Repos:    repos,
		Services: services,
		Hub:      hub,
		Timers:   timers,
		Metrics:  m,
		Config:   cfg,
	}

	t.Cleanup(func() {
		server.Close()
		timers.Stop()
		hub.Stop()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full web API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// MobileURL returns the full mobile API URL for a given path
func (ts *TestServer) MobileURL(path string) string {
	return fmt.Sprintf("%s/api/mobile%s", ts.Server.URL, path)
}

// RealtimeURL returns the realtime websocket URL with token
func (ts *TestServer) RealtimeURL(token string) string {
	wsURL := "ws" + strings.TrimPrefix(ts.Server.URL, "http")
	return fmt.Sprintf("%s/api/v1/realtime?token=%s", wsURL, token)
}

// Token mints a dev bearer token for clerkID.
func (ts *TestServer) Token(t *testing.T, clerkID string) string {
	t.Helper()
	return MintToken(t, clerkID)
}

func MintToken(t *testing.T, clerkID string) string {
	t.Helper()
	token, err := auth.MintDevToken(TestDevSecret, clerkID, "", time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return token
}
