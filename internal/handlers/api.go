// internal/handlers/api.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/auth"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/sirupsen/logrus"
)

// maxHistoryLimit caps GET /api/player/matches?limit=.
const maxHistoryLimit = 100

// PlayerStore is the persistence used by the HTTP API.
type PlayerStore interface {
	CreatePlayer(ctx context.Context, username, email, password string) (*models.Player, error)
	GetPlayerByID(ctx context.Context, id uuid.UUID) (*models.Player, error)
	GetPlayerByUsername(ctx context.Context, username string) (*models.Player, error)
	GetMatchHistory(ctx context.Context, playerID uuid.UUID, limit int) ([]models.MatchRecord, error)
}

// Tokens issues and verifies session tokens.
type Tokens interface {
	CreateJWT(playerID uuid.UUID, username string) (string, error)
	AuthenticateJWT(token string) (auth.Claims, error)
}

// Presence reports connected players.
type Presence interface {
	OnlineCount() int
}

// ActivePlayers reports players with a live match in the session store.
type ActivePlayers interface {
	OnlinePlayerCount(ctx context.Context) (int, error)
}

// API serves the account and profile endpoints.
type API struct {
	logger   *logrus.Logger
	players  PlayerStore
	tokens   Tokens
	tokenTTL time.Duration
	presence Presence
	active   ActivePlayers
}

func NewAPI(logger *logrus.Logger, players PlayerStore, tokens Tokens, tokenTTL time.Duration, presence Presence, active ActivePlayers) *API {
	return &API{
		logger:   logger,
		players:  players,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		presence: presence,
		active:   active,
	}
}

// Routes mounts every endpoint under /api.
func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", a.Register)
		r.Post("/auth/login", a.Login)
		r.Get("/health", a.Health)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/player/profile", a.Profile)
			r.Get("/player/stats", a.Stats)
			r.Get("/player/matches", a.Matches)
		})
	})
}

type claimsKey struct{}

func claimsFrom(ctx context.Context) auth.Claims {
	c, _ := ctx.Value(claimsKey{}).(auth.Claims)
	return c
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Missing token")
			return
		}
		claims, err := a.tokens.AuthenticateJWT(token)
		if err != nil {
			writeError(w, http.StatusForbidden, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type playerSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Level    int       `json:"level"`
	XP       int       `json:"xp"`
}

type authResponse struct {
	Player playerSummary `json:"player"`
	Token  string        `json:"token"`
}

// Register creates an account and signs the new player in.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.players.CreatePlayer(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperrors.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, apperrors.ErrUsernameTaken.Message)
			return
		}
		a.logger.WithError(err).Error("registration failed")
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}
	a.signIn(w, http.StatusCreated, p)
}

// Login exchanges a username and password for a session token.
//
// Request payload:
//
//	{
//	  "username": "someone",
//	  "password": "password"
//	}
//
// The token is returned in the body and also set as the auth_token cookie.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing username or password")
		return
	}

	p, err := a.players.GetPlayerByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, apperrors.ErrPlayerNotFound) {
		a.logger.WithError(err).Error("login lookup failed")
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if p == nil {
		writeError(w, http.StatusUnauthorized, apperrors.ErrInvalidCredentials.Message)
		return
	}
	// stored hashes that fail to decode (the bot's) never match
	if ok, err := auth.ComparePasswordAndHash(req.Password, p.PasswordHash); err != nil || !ok {
		writeError(w, http.StatusUnauthorized, apperrors.ErrInvalidCredentials.Message)
		return
	}
	a.signIn(w, http.StatusOK, p)
}

func (a *API) signIn(w http.ResponseWriter, status int, p *models.Player) {
	token, err := a.tokens.CreateJWT(p.ID, p.Username)
	if err != nil {
		a.logger.WithError(err).Error("failed to sign token")
		writeError(w, http.StatusInternalServerError, "Failed to sign token")
		return
	}

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	}
	if a.tokenTTL > 0 {
		cookie.MaxAge = int(a.tokenTTL.Seconds())
	}
	http.SetCookie(w, cookie)

	writeJSON(w, status, authResponse{
		Player: playerSummary{ID: p.ID, Username: p.Username, Level: p.Level, XP: p.XP},
		Token:  token,
	})
}

func (a *API) currentPlayer(w http.ResponseWriter, r *http.Request) (*models.Player, bool) {
	p, err := a.players.GetPlayerByID(r.Context(), claimsFrom(r.Context()).PlayerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrPlayerNotFound) {
			writeError(w, http.StatusNotFound, apperrors.ErrPlayerNotFound.Message)
			return nil, false
		}
		a.logger.WithError(err).Error("failed to load player")
		writeError(w, http.StatusInternalServerError, "Failed to fetch profile")
		return nil, false
	}
	return p, true
}

func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := a.currentPlayer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type statsResponse struct {
	Level         int     `json:"level"`
	XP            int     `json:"xp"`
	CasualWins    int     `json:"casual_wins"`
	CasualLosses  int     `json:"casual_losses"`
	RankedWins    int     `json:"ranked_wins"`
	RankedLosses  int     `json:"ranked_losses"`
	TotalMatches  int     `json:"total_matches"`
	CurrentRating int     `json:"current_rating"`
	PeakRating    int     `json:"peak_rating"`
	WinRate       float64 `json:"win_rate"`
}

func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	p, ok := a.currentPlayer(w, r)
	if !ok {
		return
	}
	s := p.Stats
	writeJSON(w, http.StatusOK, statsResponse{
		Level:         p.Level,
		XP:            p.XP,
		CasualWins:    s.CasualWins,
		CasualLosses:  s.CasualLosses,
		RankedWins:    s.RankedWins,
		RankedLosses:  s.RankedLosses,
		TotalMatches:  s.TotalMatches,
		CurrentRating: s.CurrentRating,
		PeakRating:    s.PeakRating,
		WinRate:       s.WinRate(),
	})
}

// Matches lists recent matches. An absent or invalid limit uses the store default.
func (a *API) Matches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	history, err := a.players.GetMatchHistory(r.Context(), claimsFrom(r.Context()).PlayerID, limit)
	if err != nil {
		a.logger.WithError(err).Error("failed to load match history")
		writeError(w, http.StatusInternalServerError, "Failed to fetch match history")
		return
	}
	if history == nil {
		history = []models.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

type healthResponse struct {
	Status        string `json:"status"`
	OnlinePlayers int    `json:"onlinePlayers"`
	PlayersInGame int    `json:"playersInGame"`
	Timestamp     int64  `json:"timestamp"`
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		OnlinePlayers: a.presence.OnlineCount(),
		Timestamp:     time.Now().UnixMilli(),
	}
	n, err := a.active.OnlinePlayerCount(r.Context())
	if err != nil {
		a.logger.WithError(err).Warn("session store unreachable")
		resp.Status = "degraded"
	}
	resp.PlayersInGame = n
	writeJSON(w, http.StatusOK, resp)
}
