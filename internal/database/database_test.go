package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/auth"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/jason-s-yu/bladeduel/internal/rating"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestDB needs a disposable PostgreSQL; the suite is skipped without one.
func openTestDB(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migration must be re-runnable")
	return db
}

func uniqueName(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func TestCreateAndFetchPlayer(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	name := uniqueName("alice")

	p, err := db.CreatePlayer(ctx, name, name+"@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)

	_, err = db.CreatePlayer(ctx, name, "other@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, apperrors.ErrUsernameTaken)

	byName, err := db.GetPlayerByUsername(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)
	assert.Equal(t, 1000, byName.Stats.CurrentRating)

	ok, err := auth.ComparePasswordAndHash("hunter2hunter2", byName.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = db.GetPlayerByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrPlayerNotFound)
}

func TestEnsureBotPlayerIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a, err := db.EnsureBotPlayer(ctx)
	require.NoError(t, err)
	b, err := db.EnsureBotPlayer(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, game.BotUsername, b.Username)
}

func TestMatchLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p1, err := db.CreatePlayer(ctx, uniqueName("p1"), "p1@example.com", "password1")
	require.NoError(t, err)
	p2, err := db.CreatePlayer(ctx, uniqueName("p2"), "p2@example.com", "password2")
	require.NoError(t, err)

	matchID, err := db.CreateMatch(ctx, p1.ID, p2.ID, game.ModeRanked)
	require.NoError(t, err)

	card, total := 7, 18
	require.NoError(t, db.LogAction(ctx, models.MatchLogEntry{
		MatchID: matchID, TurnNumber: 0, PlayerID: p1.ID, Action: "HIT",
		CardValue: &card, NewTotal: &total, Timestamp: time.Now().UnixMilli(),
	}))

	finish := models.MatchFinish{
		WinnerID: p1.ID, Player1FinalTotal: 18, Player2FinalTotal: 17,
		Player1CardCount: 3, Player2CardCount: 2, DurationSeconds: 40,
	}
	require.NoError(t, db.FinishMatch(ctx, matchID, finish))
	require.NoError(t, db.FinishMatch(ctx, matchID, finish))

	abandoned, err := db.MarkAbandoned(ctx, matchID)
	require.NoError(t, err)
	assert.False(t, abandoned, "completed matches are never abandoned")

	wc, lc := rating.Duel(rating.Standing{Rating: 1000}, rating.Standing{Rating: 1000})
	require.NoError(t, db.UpdatePlayerStats(ctx, p1.ID, game.ModeRanked, true, &wc))
	require.NoError(t, db.UpdatePlayerStats(ctx, p2.ID, game.ModeRanked, false, &lc))

	w, err := db.GetPlayerByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Stats.RankedWins)
	assert.Equal(t, 1, w.Stats.TotalMatches)
	assert.Equal(t, 1000+wc.Delta, w.Stats.CurrentRating)
	assert.Equal(t, w.Stats.CurrentRating, w.Stats.PeakRating)

	l, err := db.GetPlayerByID(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Stats.RankedLosses)
	assert.Equal(t, 1000, l.Stats.PeakRating)

	history, err := db.GetMatchHistory(ctx, p2.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "completed", history[0].Status)
	assert.Equal(t, p1.Username, history[0].WinnerUsername)
	require.NotNil(t, history[0].DurationSeconds)
	assert.Equal(t, 40, *history[0].DurationSeconds)
}
