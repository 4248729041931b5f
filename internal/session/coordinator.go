// internal/session/coordinator.go
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/auth"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/jason-s-yu/bladeduel/internal/matchmaking"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/jason-s-yu/bladeduel/internal/rating"
	"github.com/sirupsen/logrus"
)

// Identity verifies session tokens.
type Identity interface {
	AuthenticateJWT(token string) (auth.Claims, error)
}

// Persistence is the durable record of players and matches.
type Persistence interface {
	CreateMatch(ctx context.Context, player1, player2 uuid.UUID, mode game.Mode) (uuid.UUID, error)
	FinishMatch(ctx context.Context, matchID uuid.UUID, f models.MatchFinish) error
	LogAction(ctx context.Context, e models.MatchLogEntry) error
	UpdatePlayerStats(ctx context.Context, playerID uuid.UUID, mode game.Mode, won bool, change *rating.Change) error
	GetPlayerByID(ctx context.Context, id uuid.UUID) (*models.Player, error)
	GetPlayerByUsername(ctx context.Context, username string) (*models.Player, error)
	EnsureBotPlayer(ctx context.Context) (*models.Player, error)
}

// Store holds the serialized match between events.
type Store interface {
	StoreMatchState(ctx context.Context, m *game.MatchState) error
	GetMatchState(ctx context.Context, id uuid.UUID) (*game.MatchState, error)
	RemoveMatchState(ctx context.Context, id uuid.UUID) error
	SetPlayerActiveMatch(ctx context.Context, playerID, matchID uuid.UUID) error
	GetPlayerActiveMatch(ctx context.Context, playerID uuid.UUID) (uuid.UUID, error)
	ClearPlayerActiveMatch(ctx context.Context, playerID uuid.UUID) error
}

// Matchmaker is the per-mode waiting list.
type Matchmaker interface {
	Join(ctx context.Context, mode game.Mode, entry matchmaking.Entry) error
	TryPair(ctx context.Context, mode game.Mode) (*matchmaking.Pair, error)
	Requeue(ctx context.Context, mode game.Mode, entry matchmaking.Entry) error
	Waiting(ctx context.Context, mode game.Mode) (int, error)
}

// Timings are the fixed delays of the match lifecycle.
type Timings struct {
	TurnTimeout       time.Duration
	CountdownDelay    time.Duration
	BotCountdownDelay time.Duration
	BotThinkDelay     time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		TurnTimeout:       20 * time.Second,
		CountdownDelay:    3 * time.Second,
		BotCountdownDelay: 1500 * time.Millisecond,
		BotThinkDelay:     800 * time.Millisecond,
	}
}

// Deps are the collaborators of a Coordinator. Engine, TieBreaker, Logger and Now
// fall back to defaults when nil.
type Deps struct {
	Identity    Identity
	Persistence Persistence
	Store       Store
	Queue       Matchmaker
	Notifier    Notifier
	Engine      *game.Engine
	TieBreaker  game.TieBreaker
	Logger      *logrus.Logger
	Timings     Timings
	Now         func() time.Time
}

// Coordinator owns the lifecycle of every match in this process. Each trigger locks its
// match, re-reads the session record, mutates it and writes it back before unlocking.
type Coordinator struct {
	identity Identity
	db       Persistence
	store    Store
	queue    Matchmaker
	notifier Notifier
	engine   *game.Engine
	tie      game.TieBreaker
	logger   *logrus.Logger
	timings  Timings
	now      func() time.Time

	registry *Registry
	locks    *matchLocks
	timer    *TurnTimer

	botMu sync.Mutex
	bot   *models.Player

	closed atomic.Bool
}

func NewCoordinator(d Deps) *Coordinator {
	c := &Coordinator{
		identity: d.Identity,
		db:       d.Persistence,
		store:    d.Store,
		queue:    d.Queue,
		notifier: d.Notifier,
		engine:   d.Engine,
		tie:      d.TieBreaker,
		logger:   d.Logger,
		timings:  d.Timings,
		now:      d.Now,
		registry: NewRegistry(),
		locks:    newMatchLocks(),
		timer:    NewTurnTimer(),
	}
	if c.engine == nil {
		c.engine = game.NewEngine(nil)
	}
	if c.tie == nil {
		c.tie = game.CoinFlip{}
	}
	if c.logger == nil {
		c.logger = logrus.New()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.timings == (Timings{}) {
		c.timings = DefaultTimings()
	}
	return c
}

// Registry exposes the connection directory.
func (c *Coordinator) Registry() *Registry { return c.registry }

// Close stops every pending timer. Triggers that were already scheduled become no-ops.
func (c *Coordinator) Close() {
	c.closed.Store(true)
	c.timer.StopAll()
}

// background is the context for triggers that have no caller, such as timers.
func (c *Coordinator) background() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (c *Coordinator) nowMillis() int64 { return c.now().UnixMilli() }

func (c *Coordinator) authenticate(token string) (auth.Claims, error) {
	if token == "" {
		return auth.Claims{}, apperrors.ErrInvalidToken
	}
	claims, err := c.identity.AuthenticateJWT(token)
	if err != nil {
		return auth.Claims{}, &apperrors.Error{Kind: apperrors.KindAuth, Message: apperrors.ErrInvalidToken.Message, Err: err}
	}
	return claims, nil
}

// Register binds a connection to the player named by token.
func (c *Coordinator) Register(connID, token string) (auth.Claims, error) {
	claims, err := c.authenticate(token)
	if err != nil {
		return auth.Claims{}, err
	}
	c.registry.Bind(claims.PlayerID, connID)
	return claims, nil
}

func (c *Coordinator) loadPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	p, err := c.db.GetPlayerByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrPlayerNotFound) {
			return nil, apperrors.ErrPlayerNotFound
		}
		return nil, apperrors.Collaborator("Failed to load player", err)
	}
	return p, nil
}

func (c *Coordinator) botPlayer(ctx context.Context) (*models.Player, error) {
	c.botMu.Lock()
	defer c.botMu.Unlock()
	if c.bot != nil {
		return c.bot, nil
	}
	bot, err := c.db.EnsureBotPlayer(ctx)
	if err != nil {
		return nil, apperrors.Collaborator("Failed to create match", err)
	}
	c.bot = bot
	return bot, nil
}

func participant(p *models.Player) game.Participant {
	return game.Participant{ID: p.ID, Username: p.Username, Rating: p.Stats.CurrentRating}
}

// activeMatch returns the live match of playerID, clearing a pointer whose record expired.
func (c *Coordinator) activeMatch(ctx context.Context, playerID uuid.UUID) (uuid.UUID, error) {
	if id, ok := c.registry.MatchOf(playerID); ok {
		return id, nil
	}
	id, err := c.store.GetPlayerActiveMatch(ctx, playerID)
	if err != nil {
		return uuid.Nil, apperrors.Collaborator("Failed to read session", err)
	}
	if id == uuid.Nil {
		return uuid.Nil, nil
	}
	m, err := c.store.GetMatchState(ctx, id)
	if err != nil {
		return uuid.Nil, apperrors.Collaborator("Failed to read session", err)
	}
	if m == nil || m.Phase == game.PhaseResolution {
		_ = c.store.ClearPlayerActiveMatch(ctx, playerID)
		return uuid.Nil, nil
	}
	return id, nil
}

// JoinQueue enters playerID into the mode queue and pairs immediately when possible.
// A casual search with nobody waiting is matched against the bot right away.
func (c *Coordinator) JoinQueue(ctx context.Context, connID string, mode game.Mode, token string) error {
	claims, err := c.Register(connID, token)
	if err != nil {
		return err
	}
	if !mode.Queueable() {
		return apperrors.ErrInvalidMode
	}

	if id, err := c.activeMatch(ctx, claims.PlayerID); err != nil {
		return err
	} else if id != uuid.Nil {
		return apperrors.ErrAlreadyInMatch
	}

	player, err := c.loadPlayer(ctx, claims.PlayerID)
	if err != nil {
		return err
	}
	log := c.logger.WithFields(logrus.Fields{"playerID": player.ID, "mode": mode})

	if mode == game.ModeCasual {
		waiting, err := c.queue.Waiting(ctx, mode)
		if err != nil {
			return apperrors.Collaborator("Failed to join queue", err)
		}
		if waiting == 0 {
			bot, err := c.botPlayer(ctx)
			if err != nil {
				return err
			}
			log.Info("casual queue empty, matching against bot")
			botSeat := game.Participant{ID: bot.ID, Username: game.BotDisplayName, Rating: bot.Stats.CurrentRating, IsBot: true}
			return c.createMatch(ctx, participant(player), botSeat, mode)
		}
	}

	entry := matchmaking.Entry{
		PlayerID:  player.ID,
		Username:  player.Username,
		Rating:    player.Stats.CurrentRating,
		Timestamp: c.nowMillis(),
	}
	if err := c.queue.Join(ctx, mode, entry); err != nil {
		return apperrors.Collaborator("Failed to join queue", err)
	}

	pair, err := c.queue.TryPair(ctx, mode)
	if err != nil {
		return apperrors.Collaborator("Failed to join queue", err)
	}
	if pair == nil {
		c.send(player.ID, Event{Type: EventSearching, Payload: MessagePayload{Message: "Searching for opponent..."}})
		return nil
	}

	// Entries outlive their sockets for up to the queue TTL. A stale side is dropped and
	// the live one goes back to the head of the queue.
	firstOK, secondOK := c.available(ctx, pair.First.PlayerID), c.available(ctx, pair.Second.PlayerID)
	if !firstOK || !secondOK {
		requeue := func(e matchmaking.Entry) {
			if err := c.queue.Requeue(ctx, mode, e); err != nil {
				log.WithError(err).WithField("requeued", e.PlayerID).Warn("failed to re-queue player")
			}
		}
		// restored newest first so the older entry ends up at the head
		if secondOK {
			requeue(pair.Second)
		}
		if firstOK {
			requeue(pair.First)
		}
		log.Debug("dropped stale queue entry")
		if c.available(ctx, player.ID) {
			c.send(player.ID, Event{Type: EventSearching, Payload: MessagePayload{Message: "Searching for opponent..."}})
		}
		return nil
	}

	log.WithFields(logrus.Fields{"first": pair.First.Username, "second": pair.Second.Username}).Info("paired players")
	first := game.Participant{ID: pair.First.PlayerID, Username: pair.First.Username, Rating: pair.First.Rating}
	second := game.Participant{ID: pair.Second.PlayerID, Username: pair.Second.Username, Rating: pair.Second.Rating}
	return c.createMatch(ctx, first, second, mode)
}

// available reports whether a queued player is still connected and not already playing.
func (c *Coordinator) available(ctx context.Context, playerID uuid.UUID) bool {
	if !c.registry.Online(playerID) {
		return false
	}
	id, err := c.activeMatch(ctx, playerID)
	return err == nil && id == uuid.Nil
}

// Challenge starts a friends match against targetUsername, bypassing the queue.
func (c *Coordinator) Challenge(ctx context.Context, connID, token, targetUsername string) error {
	claims, err := c.Register(connID, token)
	if err != nil {
		return err
	}

	challenger, err := c.loadPlayer(ctx, claims.PlayerID)
	if err != nil {
		return err
	}
	target, err := c.db.GetPlayerByUsername(ctx, targetUsername)
	if err != nil {
		if errors.Is(err, apperrors.ErrPlayerNotFound) {
			return apperrors.ErrTargetNotFound
		}
		return apperrors.Collaborator("Failed to challenge player", err)
	}
	if target.ID == challenger.ID {
		return apperrors.ErrSelfChallenge
	}

	if id, err := c.activeMatch(ctx, target.ID); err != nil {
		return err
	} else if id != uuid.Nil {
		return apperrors.ErrTargetBusy
	}
	if !c.registry.Online(target.ID) {
		return apperrors.ErrTargetOffline
	}
	if id, err := c.activeMatch(ctx, challenger.ID); err != nil {
		return err
	} else if id != uuid.Nil {
		return apperrors.ErrAlreadyInMatch
	}

	return c.createMatch(ctx, participant(challenger), participant(target), game.ModeFriends)
}

// createMatch records, deals and announces a match, then schedules its start.
func (c *Coordinator) createMatch(ctx context.Context, p1, p2 game.Participant, mode game.Mode) error {
	matchID, err := c.db.CreateMatch(ctx, p1.ID, p2.ID, mode)
	if err != nil {
		return apperrors.Collaborator("Failed to create match", err)
	}

	now := c.now()
	m := c.engine.NewMatch(matchID, mode, p1, p2, now.UnixMilli())

	unlock := c.locks.Lock(matchID)
	defer unlock()

	if err := c.store.StoreMatchState(ctx, m); err != nil {
		return apperrors.Collaborator("Failed to create match", err)
	}

	delay := c.timings.CountdownDelay
	if _, hasBot := m.BotSlot(); hasBot {
		delay = c.timings.BotCountdownDelay
	}
	countdownStart := now.Add(delay).UnixMilli()

	for _, slot := range []game.Slot{game.Player1, game.Player2} {
		seat := m.Seat(slot)
		if seat.IsBot {
			continue
		}
		if err := c.store.SetPlayerActiveMatch(ctx, seat.ID, matchID); err != nil {
			c.logger.WithError(err).WithField("playerID", seat.ID).Warn("failed to record active match")
		}
		c.registry.SetMatch(seat.ID, matchID)
		c.send(seat.ID, Event{Type: EventMatchFound, Payload: game.BuildMatchFound(m, slot, countdownStart)})
	}

	c.logger.WithFields(logrus.Fields{
		"matchID": matchID,
		"mode":    mode,
		"player1": p1.Username,
		"player2": p2.Username,
	}).Info("match created")

	time.AfterFunc(delay, func() { c.startMatch(matchID) })
	return nil
}

// startMatch moves a match from countdown to gameplay.
func (c *Coordinator) startMatch(matchID uuid.UUID) {
	if c.closed.Load() {
		return
	}
	ctx, cancel := c.background()
	defer cancel()

	unlock := c.locks.Lock(matchID)
	defer unlock()

	m, err := c.store.GetMatchState(ctx, matchID)
	if err != nil {
		c.logger.WithError(err).WithField("matchID", matchID).Error("failed to load match for start")
		return
	}
	if m == nil || m.Phase != game.PhaseCountdown {
		return
	}

	m.Phase = game.PhaseGameplay
	c.engine.GrantSpecialCard(&m.Current().Hand)
	c.setDeadline(m)
	if err := c.store.StoreMatchState(ctx, m); err != nil {
		c.logger.WithError(err).WithField("matchID", matchID).Error("failed to store started match")
		return
	}
	c.armTurn(m)
	c.broadcast(m)
	c.maybeScheduleBot(m)
}

func (c *Coordinator) setDeadline(m *game.MatchState) {
	d := c.now().Add(c.timings.TurnTimeout).UnixMilli()
	m.TurnDeadline = &d
}

func (c *Coordinator) armTurn(m *game.MatchState) {
	c.timer.Arm(m.MatchID, m.TurnCount, c.timings.TurnTimeout, c.onTurnTimeout)
}

// send delivers ev to the connection of playerID, if it has one.
func (c *Coordinator) send(playerID uuid.UUID, ev Event) {
	if conn, ok := c.registry.ConnOf(playerID); ok {
		c.notifier.Send(conn, ev)
	}
}

// broadcast sends each human seat its own view of m.
func (c *Coordinator) broadcast(m *game.MatchState) {
	for _, slot := range []game.Slot{game.Player1, game.Player2} {
		seat := m.Seat(slot)
		if seat.IsBot {
			continue
		}
		c.send(seat.ID, Event{Type: EventGameUpdate, Payload: game.BuildView(m, slot)})
	}
}
