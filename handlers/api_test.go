package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dosada05/rps-tournament-bot/brackets"
	"github.com/Dosada05/rps-tournament-bot/events"
	"github.com/Dosada05/rps-tournament-bot/handlers"
	"github.com/Dosada05/rps-tournament-bot/models"
	"github.com/Dosada05/rps-tournament-bot/repositories"
	"github.com/Dosada05/rps-tournament-bot/routes"
	"github.com/Dosada05/rps-tournament-bot/services"
)

const (
	testBotKey    = "bot-key"
	testJWTSecret = "test-secret"
)

type apiResponse struct {
	Tournament *models.Tournament `json:"tournament"`
	Match      *models.Match      `json:"match"`
	Choice     models.Choice      `json:"choice"`
	Duplicate  bool               `json:"duplicate"`
	Token      string             `json:"token"`
	Error      any                `json:"error"`
}

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	svc := services.NewTournamentService(services.TournamentServiceConfig{
		Engine: services.MatchEngineConfig{ChoiceTimeout: time.Minute},
	}, repositories.NewMemoryTournamentRepository(), events.NewRecorder(), clk, nil, logger)
	t.Cleanup(svc.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte(testBotKey), bcrypt.MinCost)
	require.NoError(t, err)
	auth := services.NewAuthService(string(hash), testJWTSecret, time.Hour, nil)

	hub := brackets.NewHub(logger)
	router := chi.NewRouter()
	routes.SetupRoutes(router, routes.Deps{
		JWTSecret:  testJWTSecret,
		Auth:       handlers.NewAuthHandler(auth),
		Tournament: handlers.NewTournamentHandler(svc, logger),
		WebSocket:  handlers.NewWebSocketHandler(hub, svc, nil, logger),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

func (c *apiClient) do(method, path, token string, body any) (int, apiResponse) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.srv.URL+path, reader)
	require.NoError(c.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (c *apiClient) token(userID string, admin bool) string {
	c.t.Helper()
	status, res := c.do(http.MethodPost, "/auth/token", "", services.TokenInput{BotKey: testBotKey, UserID: userID, IsAdmin: admin})
	require.Equal(c.t, http.StatusOK, status)
	require.NotEmpty(c.t, res.Token)
	return res.Token
}

func TestAPI_Authentication(t *testing.T) {
	api := newAPI(t)

	status, _ := api.do(http.MethodPost, "/auth/token", "", services.TokenInput{BotKey: "wrong", UserID: "A"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodPost, "/auth/token", "", services.TokenInput{BotKey: testBotKey})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(http.MethodGet, "/groups/g1/tournament", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodGet, "/groups/g1/tournament", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodGet, "/groups/g1/tournament", api.token("A", false), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_TournamentFlow(t *testing.T) {
	api := newAPI(t)
	admin := api.token("admin", true)
	alice := api.token("A", false)
	bob := api.token("B", false)

	status, _ := api.do(http.MethodPost, "/tournaments", alice, map[string]any{"group_id": "g1"})
	assert.Equal(t, http.StatusForbidden, status, "only admins create tournaments")

	status, res := api.do(http.MethodPost, "/tournaments", admin, map[string]any{"group_id": "g1", "capacity": 2, "registration_window": "2m"})
	require.Equal(t, http.StatusCreated, status)
	id := res.Tournament.ID
	assert.Equal(t, models.StatusRegistration, res.Tournament.Status)

	status, _ = api.do(http.MethodPost, "/tournaments", admin, map[string]any{"group_id": "g1"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = api.do(http.MethodPost, "/tournaments/"+id+"/players", alice, map[string]any{"display_name": "Alice"})
	require.Equal(t, http.StatusCreated, status)
	status, res = api.do(http.MethodPost, "/tournaments/"+id+"/players", bob, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.StatusInProgress, res.Tournament.Status, "a full roster starts the bracket")

	matchID := brackets.MatchID(id, 0, 0)

	status, _ = api.do(http.MethodPost, "/matches/"+matchID+"/choices", alice, map[string]any{"choice": "lizard"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, res = api.do(http.MethodPost, "/matches/"+matchID+"/choices", alice, map[string]any{"choice": "rock"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.ChoiceRock, res.Choice)
	assert.False(t, res.Duplicate)

	_, res = api.do(http.MethodGet, "/matches/"+matchID, bob, nil)
	require.Contains(t, res.Match.Choices, "A")
	assert.Empty(t, res.Match.Choices["A"].Choice, "opponent must not see a pending choice")

	_, res = api.do(http.MethodGet, "/matches/"+matchID, alice, nil)
	assert.Equal(t, models.ChoiceRock, res.Match.Choices["A"].Choice)

	status, _ = api.do(http.MethodPost, "/tournaments/"+id+"/pause", bob, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = api.do(http.MethodPost, "/matches/"+matchID+"/choices", bob, map[string]any{"choice": "scissors"})
	require.Equal(t, http.StatusOK, status)
	api.do(http.MethodPost, "/matches/"+matchID+"/choices", alice, map[string]any{"choice": "paper"})
	status, res = api.do(http.MethodPost, "/matches/"+matchID+"/choices", bob, map[string]any{"choice": "rock"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StatusCompleted, res.Tournament.Status)
	assert.Equal(t, "A", res.Tournament.ChampionID)

	status, _ = api.do(http.MethodPost, "/matches/"+matchID+"/choices", bob, map[string]any{"choice": "rock"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = api.do(http.MethodGet, "/tournaments/missing", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_AdminOperations(t *testing.T) {
	api := newAPI(t)
	admin := api.token("admin", true)
	alice := api.token("A", false)

	_, res := api.do(http.MethodPost, "/tournaments", admin, map[string]any{"group_id": "g2", "capacity": 4})
	id := res.Tournament.ID
	for _, p := range []string{"A", "B", "C"} {
		status, _ := api.do(http.MethodPost, "/tournaments/"+id+"/players", api.token(p, false), nil)
		require.Equal(t, http.StatusCreated, status)
	}

	status, _ := api.do(http.MethodPut, "/tournaments/"+id+"/seeds", admin, map[string]any{"player_ids": []string{"C", "A"}})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = api.do(http.MethodPut, "/tournaments/"+id+"/seeds", admin, map[string]any{"player_ids": []string{"C", "A", "B"}})
	require.Equal(t, http.StatusOK, status)

	status, res = api.do(http.MethodPost, "/tournaments/"+id+"/activate", admin, nil)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, res.Tournament.Bracket)

	status, res = api.do(http.MethodPost, "/tournaments/"+id+"/pause", admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StatusPaused, res.Tournament.Status)

	status, _ = api.do(http.MethodPost, "/matches/"+brackets.MatchID(id, 0, 1)+"/choices", alice, map[string]any{"choice": "rock"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = api.do(http.MethodPost, "/tournaments/"+id+"/resume", admin, nil)
	require.Equal(t, http.StatusOK, status)

	status, res = api.do(http.MethodPost, "/matches/"+brackets.MatchID(id, 0, 1)+"/result", admin, map[string]any{"winner_id": "A", "reason": "dispute"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.MethodAdminOverride, res.Match.Result.Method)

	status, res = api.do(http.MethodPost, "/tournaments/"+id+"/cancel", admin, map[string]any{"reason": "chat closed"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.StatusCancelled, res.Tournament.Status)

	status, _ = api.do(http.MethodGet, "/groups/g2/tournament", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
