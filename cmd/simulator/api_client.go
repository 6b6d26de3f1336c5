package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tastelab/cupping-rooms/internal/auth"
	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/service"
)

// APIClient handles HTTP communication with the backend
type APIClient struct {
	baseURL    string
	devSecret  string
	issuer     string
	httpClient *http.Client
}

// NewAPIClient creates a new API client. Users are impersonated with dev
// tokens signed by devSecret, which the server must also be configured with.
func NewAPIClient(baseURL, devSecret, issuer string) *APIClient {
	return &APIClient{
		baseURL:   baseURL + "/api/v1",
		devSecret: devSecret,
		issuer:    issuer,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FakeUser is an onboarded simulator identity
type FakeUser struct {
	Profile domain.UserProfile
	Token   string
}

// NewUser mints a token for a fresh subject and completes onboarding.
func (c *APIClient) NewUser(baseName string) (*FakeUser, error) {
	suffix := uuid.New().String()[:6]
	token, err := auth.MintDevToken(c.devSecret, "sim_"+suffix, c.issuer, 12*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	user := &FakeUser{Token: token}
	body := service.OnboardingInput{Username: fmt.Sprintf("%s_%s", baseName, suffix)}
	if err := c.do(http.MethodPost, "/profile/onboarding", body, token, &user.Profile); err != nil {
		return nil, fmt.Errorf("onboarding failed: %w", err)
	}
	return user, nil
}

func (c *APIClient) CreateRoom(token, name string, timerMinutes int) (*domain.Room, error) {
	var room domain.Room
	body := service.CreateRoomInput{Name: name, TimerMinutes: timerMinutes}
	if err := c.do(http.MethodPost, "/rooms", body, token, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *APIClient) JoinRoom(token, code string) (*domain.Room, error) {
	var room domain.Room
	if err := c.do(http.MethodPost, "/rooms/join", map[string]string{"code": code}, token, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *APIClient) AddCoffee(token string, roomID uuid.UUID, name string) error {
	return c.do(http.MethodPost, roomPath(roomID, "/coffees"), map[string]string{"name": name}, token, nil)
}

func (c *APIClient) GenerateSet(token string, roomID uuid.UUID) (*service.SetView, error) {
	var set service.SetView
	if err := c.do(http.MethodPost, roomPath(roomID, "/sets/generate"), nil, token, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *APIClient) StartRound(token string, roomID, setID uuid.UUID) (*domain.SessionRound, error) {
	var round domain.SessionRound
	if err := c.do(http.MethodPost, roomPath(roomID, "/rounds"), map[string]uuid.UUID{"setId": setID}, token, &round); err != nil {
		return nil, err
	}
	return &round, nil
}

func (c *APIClient) State(token string, roomID uuid.UUID) (*service.RoomState, error) {
	var state service.RoomState
	if err := c.do(http.MethodGet, roomPath(roomID, "/state"), nil, token, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *APIClient) SubmitAnswers(token string, roomID, roundID uuid.UUID, answers []domain.AnswerInput) (*domain.RoundResult, error) {
	var result domain.RoundResult
	path := roomPath(roomID, "/rounds/"+roundID.String()+"/answers")
	if err := c.do(http.MethodPost, path, service.SubmitAnswersInput{Answers: answers}, token, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) EndRound(token string, roomID uuid.UUID) (*service.RoundResults, error) {
	var results service.RoundResults
	if err := c.do(http.MethodPost, roomPath(roomID, "/end-round"), nil, token, &results); err != nil {
		return nil, err
	}
	return &results, nil
}

func roomPath(roomID uuid.UUID, suffix string) string {
	return fmt.Sprintf("/rooms/%s%s", roomID, suffix)
}

// do sends a JSON request and decodes a 2xx response into out.
func (c *APIClient) do(method, path string, body interface{}, token string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s failed (status %d): %s", method, path, resp.StatusCode, string(bodyBytes))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
