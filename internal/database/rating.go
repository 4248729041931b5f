package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/bladeduel/internal/rating"
)

// applyRatingChange moves a player's ranked rating inside tx and records the move in rating_history.
// The rating never drops below zero.
func applyRatingChange(ctx context.Context, tx pgx.Tx, playerID uuid.UUID, c rating.Change) error {
	var oldRating, newRating int
	err := tx.QueryRow(ctx,
		`SELECT current_rating FROM player_stats WHERE player_id = $1 FOR UPDATE`,
		playerID,
	).Scan(&oldRating)
	if err != nil {
		return err
	}

	q := `
		UPDATE player_stats
		SET current_rating   = GREATEST(0, current_rating + $2),
		    peak_rating      = GREATEST(peak_rating, current_rating + $2),
		    rating_deviation = $3,
		    volatility       = $4
		WHERE player_id = $1
		RETURNING current_rating
	`
	if err := tx.QueryRow(ctx, q, playerID, c.Delta, c.Deviation, c.Volatility).Scan(&newRating); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rating_history (player_id, old_rating, new_rating)
		VALUES ($1, $2, $3)
	`, playerID, oldRating, newRating)
	return err
}
