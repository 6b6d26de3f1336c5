package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tastelab/cupping-rooms/internal/logging"
	"github.com/tastelab/cupping-rooms/internal/metrics"
	"github.com/tastelab/cupping-rooms/internal/repository/postgres"
	"github.com/tastelab/cupping-rooms/internal/service"
	"github.com/tastelab/cupping-rooms/internal/testutil"
	"github.com/tastelab/cupping-rooms/internal/websocket"
)

type recordedEvent struct {
	Channel string
	Event   string
	Payload json.RawMessage
}

// eventRecorder captures everything services publish.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Publish(_ context.Context, channel, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Channel: channel, Event: event, Payload: data})
	return nil
}

func (r *eventRecorder) named(event string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// waitFor polls until at least one event with the given name was published.
func (r *eventRecorder) waitFor(t *testing.T, event string, timeout time.Duration) recordedEvent {
	t.Helper()
	var found []recordedEvent
	require.Eventually(t, func() bool {
		found = r.named(event)
		return len(found) > 0
	}, timeout, 10*time.Millisecond, "event %s was not published", event)
	return found[len(found)-1]
}

type serviceEnv struct {
	DB       *testutil.TestDB
	Services *service.Services
	Events   *eventRecorder
	Timers   *websocket.TimerManager
	Metrics  *metrics.Metrics
}

func newServiceEnv(t *testing.T, opts ...func(*service.Deps)) *serviceEnv {
	t.Helper()

	testDB := testutil.NewTestDB(t)
	logger := logging.Discard()
	rec := &eventRecorder{}
	timers := websocket.NewTimerManager()
	t.Cleanup(timers.Stop)
	m := metrics.New()

	deps := service.Deps{
		Repos:   postgres.NewRepositories(testDB.DB),
		Config:  testutil.TestConfig(),
		Events:  websocket.NewEventEmitter(rec, logger),
		Timers:  timers,
		Metrics: m,
		Logger:  logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &serviceEnv{
		DB:       testDB,
		Services: service.NewServices(deps),
		Events:   rec,
		Timers:   timers,
		Metrics:  m,
	}
}
