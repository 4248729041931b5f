package session

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/auth"
	"github.com/jason-s-yu/bladeduel/internal/cache"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/jason-s-yu/bladeduel/internal/matchmaking"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/jason-s-yu/bladeduel/internal/rating"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeIdentity struct {
	mu     sync.Mutex
	tokens map[string]auth.Claims
}

func (f *fakeIdentity) AuthenticateJWT(token string) (auth.Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.tokens[token]
	if !ok {
		return auth.Claims{}, apperrors.ErrInvalidToken
	}
	return c, nil
}

type statUpdate struct {
	PlayerID uuid.UUID
	Mode     game.Mode
	Won      bool
	Change   *rating.Change
}

type fakeDB struct {
	mu       sync.Mutex
	players  map[uuid.UUID]*models.Player
	matches  map[uuid.UUID]game.Mode
	finishes map[uuid.UUID][]models.MatchFinish
	logs     []models.MatchLogEntry
	stats    []statUpdate
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		players:  make(map[uuid.UUID]*models.Player),
		matches:  make(map[uuid.UUID]game.Mode),
		finishes: make(map[uuid.UUID][]models.MatchFinish),
	}
}

func (f *fakeDB) add(username string) *models.Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &models.Player{
		ID:       uuid.New(),
		Username: username,
		Stats:    models.PlayerStats{CurrentRating: 1000, PeakRating: 1000, RatingDeviation: 350, Volatility: 0.06},
	}
	f.players[p.ID] = p
	return p
}

func (f *fakeDB) CreateMatch(_ context.Context, _, _ uuid.UUID, mode game.Mode) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.matches[id] = mode
	return id, nil
}

func (f *fakeDB) FinishMatch(_ context.Context, matchID uuid.UUID, fin models.MatchFinish) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishes[matchID] = append(f.finishes[matchID], fin)
	return nil
}

func (f *fakeDB) LogAction(_ context.Context, e models.MatchLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, e)
	return nil
}

func (f *fakeDB) UpdatePlayerStats(_ context.Context, playerID uuid.UUID, mode game.Mode, won bool, change *rating.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, statUpdate{PlayerID: playerID, Mode: mode, Won: won, Change: change})
	return nil
}

func (f *fakeDB) GetPlayerByID(_ context.Context, id uuid.UUID) (*models.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return nil, apperrors.ErrPlayerNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeDB) GetPlayerByUsername(_ context.Context, username string) (*models.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.ErrPlayerNotFound
}

func (f *fakeDB) EnsureBotPlayer(ctx context.Context) (*models.Player, error) {
	if p, err := f.GetPlayerByUsername(ctx, game.BotUsername); err == nil {
		return p, nil
	}
	return f.add(game.BotUsername), nil
}

func (f *fakeDB) finished(matchID uuid.UUID) []models.MatchFinish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.MatchFinish(nil), f.finishes[matchID]...)
}

func (f *fakeDB) actions(matchID uuid.UUID) []models.MatchLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MatchLogEntry
	for _, e := range f.logs {
		if e.MatchID == matchID {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeDB) statUpdates() []statUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statUpdate(nil), f.stats...)
}

// recorder is a Notifier that keeps every event per connection.
type recorder struct {
	mu     sync.Mutex
	events map[string][]Event
}

func (r *recorder) Send(connID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[connID] = append(r.events[connID], ev)
}

func (r *recorder) of(connID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[connID]...)
}

func (r *recorder) count(connID, typ string) int {
	n := 0
	for _, ev := range r.of(connID) {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type countingQueue struct {
	Matchmaker
	joins atomic.Int32
}

func (q *countingQueue) Join(ctx context.Context, mode game.Mode, e matchmaking.Entry) error {
	q.joins.Add(1)
	return q.Matchmaker.Join(ctx, mode, e)
}

type harness struct {
	c     *Coordinator
	db    *fakeDB
	ids   *fakeIdentity
	out   *recorder
	queue *countingQueue
	store *cache.SessionStore
	mr    *miniredis.Miniredis
}

func fastTimings() Timings {
	return Timings{
		TurnTimeout:       time.Hour,
		CountdownDelay:    10 * time.Millisecond,
		BotCountdownDelay: 10 * time.Millisecond,
		BotThinkDelay:     10 * time.Millisecond,
	}
}

// newHarness deals every number card as 5 and every special as BURN; player1 always starts
// and ties go to player1.
func newHarness(t *testing.T, timings Timings) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := cache.NewSessionStore(rdb)
	h := &harness{
		db:    newFakeDB(),
		ids:   &fakeIdentity{tokens: make(map[string]auth.Claims)},
		out:   &recorder{events: make(map[string][]Event)},
		queue: &countingQueue{Matchmaker: matchmaking.NewQueue(store)},
		store: store,
		mr:    mr,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h.c = NewCoordinator(Deps{
		Identity:    h.ids,
		Persistence: h.db,
		Store:       store,
		Queue:       h.queue,
		Notifier:    h.out,
		Engine:      game.NewEngine(&game.SequenceRNG{Values: []int{4}}),
		TieBreaker:  game.Favor(game.Player1),
		Logger:      logger,
		Timings:     timings,
	})
	t.Cleanup(h.c.Close)
	return h
}

// player creates an account and returns it with its token and connection id.
func (h *harness) player(name string) (*models.Player, string, string) {
	p := h.db.add(name)
	token := "token-" + name
	h.ids.mu.Lock()
	h.ids.tokens[token] = auth.Claims{PlayerID: p.ID, Username: name}
	h.ids.mu.Unlock()
	return p, token, "conn-" + name
}

// online creates a player and registers its connection.
func (h *harness) online(t *testing.T, name string) (*models.Player, string, string) {
	t.Helper()
	p, token, conn := h.player(name)
	_, err := h.c.Register(conn, token)
	require.NoError(t, err)
	return p, token, conn
}

func hand(cards ...int) game.Hand {
	return game.Hand{
		NumberCards:  cards,
		SpecialCards: []game.SpecialCard{},
		Total:        game.CalculateTotal(cards),
		MaxAllowed:   game.DefaultMaxAllowed,
	}
}

// seed stores a match already in gameplay with player1 to move.
func (h *harness) seed(t *testing.T, mode game.Mode, a, b *models.Player, h1, h2 game.Hand) *game.MatchState {
	t.Helper()
	now := time.Now()
	deadline := now.Add(h.c.timings.TurnTimeout).UnixMilli()
	m := &game.MatchState{
		MatchID:      uuid.New(),
		Mode:         mode,
		Player1:      game.Seat{ID: a.ID, Username: a.Username, Rating: 1000, Hand: h1, VisibleCard: h2.NumberCards[0]},
		Player2:      game.Seat{ID: b.ID, Username: b.Username, Rating: 1000, Hand: h2, VisibleCard: h1.NumberCards[0]},
		CurrentTurn:  game.Player1,
		Phase:        game.PhaseGameplay,
		Effects:      make(map[string]int),
		Log:          []game.ActionEntry{},
		TurnDeadline: &deadline,
		CreatedAt:    now.UnixMilli(),
	}
	ctx := context.Background()
	require.NoError(t, h.store.StoreMatchState(ctx, m))
	for _, p := range []*models.Player{a, b} {
		require.NoError(t, h.store.SetPlayerActiveMatch(ctx, p.ID, m.MatchID))
		h.c.registry.SetMatch(p.ID, m.MatchID)
	}
	return m
}

func (h *harness) load(t *testing.T, id uuid.UUID) *game.MatchState {
	t.Helper()
	m, err := h.store.GetMatchState(context.Background(), id)
	require.NoError(t, err)
	return m
}

// waitEvent waits for the first event of typ on conn.
func (h *harness) waitEvent(t *testing.T, conn, typ string) Event {
	t.Helper()
	var found Event
	require.Eventually(t, func() bool {
		for _, ev := range h.out.of(conn) {
			if ev.Type == typ {
				found = ev
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %s event on %s", typ, conn)
	return found
}

// waitView waits for a game_update on conn satisfying ok.
func (h *harness) waitView(t *testing.T, conn string, ok func(game.View) bool) game.View {
	t.Helper()
	var found game.View
	require.Eventually(t, func() bool {
		for _, ev := range h.out.of(conn) {
			if v, isView := ev.Payload.(game.View); isView && ev.Type == EventGameUpdate && ok(v) {
				found = v
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no matching game_update on %s", conn)
	return found
}
