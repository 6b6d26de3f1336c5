package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Exposed(t *testing.T) {
	m := New()
	m.RoomsCreated.Inc()
	m.Broadcasts.WithLabelValues("game_start").Add(2)
	m.RealtimeClients.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoomsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Broadcasts.WithLabelValues("game_start")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `cupping_broadcasts_total{event="game_start"} 2`)
	assert.Contains(t, string(body), "cupping_realtime_clients 3")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RoomsCreated.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RoomsCreated))
}
