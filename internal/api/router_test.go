package api_test

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/testutil"
)

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	ts := testutil.NewTestServer(t)

	resp, err := http.Get(ts.BaseURL() + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", readBody(t, resp))

	profile := testutil.NewProfileBuilder().Build(t, ts.DB.DB)
	token := testutil.MintToken(t, profile.ClerkID)
	testutil.DoJSON(t, http.MethodPost, ts.APIURL("/rooms"), map[string]string{"name": "Metered"}, token, http.StatusCreated, nil)

	resp, err = http.Get(ts.BaseURL() + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "cupping_rooms_created_total 1")
}

func TestRouter_MobilePrefixSharesRoutes(t *testing.T) {
	ts := testutil.NewTestServer(t)
	profile := testutil.NewProfileBuilder().Build(t, ts.DB.DB)
	token := testutil.MintToken(t, profile.ClerkID)

	var room domain.Room
	testutil.DoJSON(t, http.MethodPost, ts.MobileURL("/rooms"), map[string]string{"name": "From the phone"}, token, http.StatusCreated, &room)

	var rooms []domain.Room
	testutil.DoJSON(t, http.MethodGet, ts.APIURL("/rooms"), nil, token, http.StatusOK, &rooms)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	resp := testutil.Do(t, http.MethodGet, ts.MobileURL("/rooms"), nil, "")
	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "authorization token required")
}

func TestRouter_CORSPreflight(t *testing.T) {
	ts := testutil.NewTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.APIURL("/rooms"), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRouter_UnknownRoute(t *testing.T) {
	ts := testutil.NewTestServer(t)
	profile := testutil.NewProfileBuilder().Build(t, ts.DB.DB)

	resp := testutil.Do(t, http.MethodGet, ts.APIURL("/nowhere"), nil, testutil.MintToken(t, profile.ClerkID))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
