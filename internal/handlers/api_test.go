// internal/handlers/api_test.go
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/auth"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheapHash = &auth.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type memoryPlayers struct {
	mu      sync.Mutex
	players map[uuid.UUID]*models.Player
	history map[uuid.UUID][]models.MatchRecord
	limits  []int
}

func newMemoryPlayers() *memoryPlayers {
	return &memoryPlayers{
		players: make(map[uuid.UUID]*models.Player),
		history: make(map[uuid.UUID][]models.MatchRecord),
	}
}

func (m *memoryPlayers) CreatePlayer(_ context.Context, username, email, password string) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.Username == username {
			return nil, apperrors.ErrUsernameTaken
		}
	}
	hash, err := auth.CreateHash(password, cheapHash)
	if err != nil {
		return nil, err
	}
	p := &models.Player{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Level:        1,
		Stats:        models.PlayerStats{CurrentRating: 1000, PeakRating: 1000},
	}
	m.players[p.ID] = p
	return p, nil
}

func (m *memoryPlayers) GetPlayerByID(_ context.Context, id uuid.UUID) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[id]; ok {
		return p, nil
	}
	return nil, apperrors.ErrPlayerNotFound
}

func (m *memoryPlayers) GetPlayerByUsername(_ context.Context, username string) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.Username == username {
			return p, nil
		}
	}
	return nil, apperrors.ErrPlayerNotFound
}

func (m *memoryPlayers) GetMatchHistory(_ context.Context, playerID uuid.UUID, limit int) ([]models.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, limit)
	return m.history[playerID], nil
}

type fixedPresence int

func (f fixedPresence) OnlineCount() int { return int(f) }

type fixedActive struct {
	n   int
	err error
}

func (f fixedActive) OnlinePlayerCount(context.Context) (int, error) { return f.n, f.err }

func newTestAPI(t *testing.T) (*API, http.Handler, *memoryPlayers) {
	t.Helper()
	issuer, err := auth.NewIssuer(time.Hour)
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	players := newMemoryPlayers()
	api := NewAPI(logger, players, issuer, time.Hour, fixedPresence(3), fixedActive{n: 2})
	r := chi.NewRouter()
	api.Routes(r)
	return api, r, players
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	_, h, _ := newTestAPI(t)

	w := do(t, h, http.MethodPost, "/api/auth/register", `{"username":"alice","email":"a@example.com","password":"correcthorse"}`, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.Equal(t, "alice", reg.Player.Username)
	assert.NotEmpty(t, reg.Token)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "auth_token=")

	w = do(t, h, http.MethodPost, "/api/auth/register", `{"username":"alice","email":"b@example.com","password":"correcthorse"}`, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"correcthorse"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, reg.Player.ID, login.Player.ID)

	w = do(t, h, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"wrongpassword"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodPost, "/api/auth/login", `{"username":"ghost","password":"whatever1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	_, h, _ := newTestAPI(t)

	cases := map[string]string{
		"missing fields": `{"username":"bob"}`,
		"short password": `{"username":"bob","email":"b@example.com","password":"short"}`,
		"bad json":       `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/auth/register", body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPlayerEndpointsRequireToken(t *testing.T) {
	_, h, _ := newTestAPI(t)

	w := do(t, h, http.MethodGet, "/api/player/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/player/profile", "", "not-a-jwt")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestProfileStatsAndHistory(t *testing.T) {
	api, h, players := newTestAPI(t)
	p, err := players.CreatePlayer(context.Background(), "carol", "c@example.com", "password123")
	require.NoError(t, err)
	p.Stats.CasualWins = 3
	p.Stats.TotalMatches = 4
	token, err := api.tokens.CreateJWT(p.ID, p.Username)
	require.NoError(t, err)

	w := do(t, h, http.MethodGet, "/api/player/profile", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "argon2id", "password hash never leaves the server")

	w = do(t, h, http.MethodGet, "/api/player/stats", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	var stats statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.CasualWins)
	assert.InDelta(t, 0.75, stats.WinRate, 1e-9)

	w = do(t, h, http.MethodGet, "/api/player/matches?limit=500", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	do(t, h, http.MethodGet, "/api/player/matches", "", token)
	assert.Equal(t, []int{maxHistoryLimit, 0}, players.limits)
}

func TestHealth(t *testing.T) {
	_, h, _ := newTestAPI(t)

	w := do(t, h, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.OnlinePlayers)
	assert.Equal(t, 2, resp.PlayersInGame)
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/duel/ws?token=from-query", nil)
	assert.Equal(t, "from-query", requestToken(r))

	r = httptest.NewRequest(http.MethodGet, "/duel/ws", nil)
	r.Header.Set("Cookie", "theme=dark; auth_token=from-cookie; other=1")
	assert.Equal(t, "from-cookie", requestToken(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", requestToken(r))
}
