package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/auth"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/jason-s-yu/bladeduel/internal/rating"
)

const selectPlayer = `
	SELECT p.id, p.username, p.email, p.password_hash, p.level, p.xp, p.created_at,
	       COALESCE(ps.casual_wins, 0), COALESCE(ps.casual_losses, 0),
	       COALESCE(ps.ranked_wins, 0), COALESCE(ps.ranked_losses, 0),
	       COALESCE(ps.total_matches, 0),
	       COALESCE(ps.current_rating, 1000), COALESCE(ps.peak_rating, 1000),
	       COALESCE(ps.rating_deviation, 350), COALESCE(ps.volatility, 0.06)
	FROM players p
	LEFT JOIN player_stats ps ON p.id = ps.player_id
`

func scanPlayer(row pgx.Row) (*models.Player, error) {
	var p models.Player
	err := row.Scan(
		&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.Level, &p.XP, &p.CreatedAt,
		&p.Stats.CasualWins, &p.Stats.CasualLosses,
		&p.Stats.RankedWins, &p.Stats.RankedLosses,
		&p.Stats.TotalMatches,
		&p.Stats.CurrentRating, &p.Stats.PeakRating,
		&p.Stats.RatingDeviation, &p.Stats.Volatility,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlayer hashes password and inserts the player together with a fresh stats row.
func (p *Postgres) CreatePlayer(ctx context.Context, username, email, password string) (*models.Player, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	player := &models.Player{Username: username, Email: email, PasswordHash: hash, Level: 1}
	err = pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `INSERT INTO players (username, email, password_hash)
		      VALUES ($1, $2, $3)
		      RETURNING id, created_at`
		if err := tx.QueryRow(ctx, q, username, email, hash).Scan(&player.ID, &player.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO player_stats (player_id) VALUES ($1)`, player.ID)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperrors.ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to insert player: %w", err)
	}

	player.Stats = models.PlayerStats{
		CurrentRating:   1000,
		PeakRating:      1000,
		RatingDeviation: rating.DefaultPhi,
		Volatility:      rating.DefaultSigma,
	}
	return player, nil
}

func (p *Postgres) GetPlayerByID(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	return scanPlayer(p.pool.QueryRow(ctx, selectPlayer+` WHERE p.id = $1`, id))
}

func (p *Postgres) GetPlayerByUsername(ctx context.Context, username string) (*models.Player, error) {
	return scanPlayer(p.pool.QueryRow(ctx, selectPlayer+` WHERE p.username = $1`, username))
}

// EnsureBotPlayer provisions the standing bot account on first use and returns it.
// The stored password hash is not a valid argon2 string, so the account cannot log in.
func (p *Postgres) EnsureBotPlayer(ctx context.Context) (*models.Player, error) {
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO players (username, email, password_hash, level, xp)
			VALUES ($1, 'ai@bot.local', 'bot', 1, 0)
			ON CONFLICT (username) DO NOTHING
		`, game.BotUsername)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO player_stats (player_id)
			SELECT id FROM players WHERE username = $1
			ON CONFLICT (player_id) DO NOTHING
		`, game.BotUsername)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to provision bot player: %w", err)
	}
	return p.GetPlayerByUsername(ctx, game.BotUsername)
}

// UpdatePlayerStats counts a finished match for playerID. Ranked results also apply
// change to the stored rating; casual and friends matches only move the casual counters.
func (p *Postgres) UpdatePlayerStats(ctx context.Context, playerID uuid.UUID, mode game.Mode, won bool, change *rating.Change) error {
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var col string
		switch {
		case mode == game.ModeRanked && won:
			col = "ranked_wins"
		case mode == game.ModeRanked:
			col = "ranked_losses"
		case won:
			col = "casual_wins"
		default:
			col = "casual_losses"
		}
		q := fmt.Sprintf(`
			UPDATE player_stats
			SET %[1]s = %[1]s + 1, total_matches = total_matches + 1, updated_at = NOW()
			WHERE player_id = $1
		`, col)
		if _, err := tx.Exec(ctx, q, playerID); err != nil {
			return err
		}
		if mode == game.ModeRanked && change != nil {
			return applyRatingChange(ctx, tx, playerID, *change)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update stats for %s: %w", playerID, err)
	}
	return nil
}
