// internal/cache/session_store_test.go
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client), mr
}

func TestSessionStore_MatchStateRoundTrip(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	e := game.NewEngine(nil)
	m := e.NewMatch(uuid.New(), game.ModeRanked,
		game.Participant{ID: uuid.New(), Username: "alice", Rating: 1200},
		game.Participant{ID: uuid.New(), Username: "bob", Rating: 1100},
		time.Now().UnixMilli(),
	)
	m.Effects[game.EffectKey(game.EffectJam, game.Player2)] = 1

	require.NoError(t, store.StoreMatchState(ctx, m))
	assert.Equal(t, MatchTTL, mr.TTL("game:"+m.MatchID.String()))

	loaded, err := store.GetMatchState(ctx, m.MatchID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, m.Player1.Hand.NumberCards, loaded.Player1.Hand.NumberCards)
	assert.Equal(t, m.CurrentTurn, loaded.CurrentTurn)
	assert.True(t, loaded.HasEffect(game.EffectJam, game.Player2))

	require.NoError(t, store.RemoveMatchState(ctx, m.MatchID))
	loaded, err = store.GetMatchState(ctx, m.MatchID)
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSessionStore_MatchStateExpires(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	m := &game.MatchState{MatchID: uuid.New(), Phase: game.PhaseCountdown}
	require.NoError(t, store.StoreMatchState(ctx, m))

	mr.FastForward(MatchTTL + time.Second)
	loaded, err := store.GetMatchState(ctx, m.MatchID)
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSessionStore_PopPairIsArrivalOrder(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	for _, p := range []string{"p1", "p2", "p3"} {
		require.NoError(t, store.Enqueue(ctx, game.ModeRanked, []byte(p)))
	}
	n, err := store.QueueLength(ctx, game.ModeRanked)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	a, b, err := store.PopPair(ctx, game.ModeRanked)
	require.NoError(t, err)
	assert.Equal(t, "p1", string(a))
	assert.Equal(t, "p2", string(b))

	// lone entry is restored, not consumed
	a, b, err = store.PopPair(ctx, game.ModeRanked)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Nil(t, b)
	n, err = store.QueueLength(ctx, game.ModeRanked)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Enqueue(ctx, game.ModeRanked, []byte("p4")))
	a, b, err = store.PopPair(ctx, game.ModeRanked)
	require.NoError(t, err)
	assert.Equal(t, "p3", string(a))
	assert.Equal(t, "p4", string(b))
}

func TestSessionStore_RestoreGoesToHead(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, game.ModeCasual, []byte("p2")))
	require.NoError(t, store.Enqueue(ctx, game.ModeCasual, []byte("p3")))
	require.NoError(t, store.Restore(ctx, game.ModeCasual, []byte("p1")))

	a, b, err := store.PopPair(ctx, game.ModeCasual)
	require.NoError(t, err)
	assert.Equal(t, "p1", string(a))
	assert.Equal(t, "p2", string(b))
}

func TestSessionStore_QueuesArePerMode(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Enqueue(ctx, game.ModeCasual, []byte("c1")))
	n, err := store.QueueLength(ctx, game.ModeRanked)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, QueueTTL, mr.TTL("queue:casual"))

	mr.FastForward(QueueTTL + time.Second)
	n, err = store.QueueLength(ctx, game.ModeCasual)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionStore_PlayerActiveMatch(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()
	p1, p2, match := uuid.New(), uuid.New(), uuid.New()

	id, err := store.GetPlayerActiveMatch(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)

	require.NoError(t, store.SetPlayerActiveMatch(ctx, p1, match))
	require.NoError(t, store.SetPlayerActiveMatch(ctx, p2, match))

	id, err = store.GetPlayerActiveMatch(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, match, id)

	count, err := store.OnlinePlayerCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.ClearPlayerActiveMatch(ctx, p1))
	require.NoError(t, store.ClearPlayerActiveMatch(ctx, p1))
	id, err = store.GetPlayerActiveMatch(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)

	count, err = store.OnlinePlayerCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
