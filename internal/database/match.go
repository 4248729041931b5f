package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/jason-s-yu/bladeduel/internal/models"
)

// DefaultHistoryLimit caps GetMatchHistory when the caller passes no positive limit.
const DefaultHistoryLimit = 20

// CreateMatch inserts an active match row and returns its id.
func (p *Postgres) CreateMatch(ctx context.Context, player1, player2 uuid.UUID, mode game.Mode) (uuid.UUID, error) {
	var id uuid.UUID
	q := `INSERT INTO matches (player1_id, player2_id, mode) VALUES ($1, $2, $3) RETURNING id`
	if err := p.pool.QueryRow(ctx, q, player1, player2, string(mode)).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create match: %w", err)
	}
	return id, nil
}

// FinishMatch writes the final numbers and marks the match completed. Re-running it with
// the same values is harmless.
func (p *Postgres) FinishMatch(ctx context.Context, matchID uuid.UUID, f models.MatchFinish) error {
	q := `
		UPDATE matches
		SET winner_id = $2,
		    player1_final_total = $3,
		    player2_final_total = $4,
		    player1_card_count = $5,
		    player2_card_count = $6,
		    duration_seconds = $7,
		    status = 'completed',
		    finished_at = COALESCE(finished_at, NOW())
		WHERE id = $1
	`
	_, err := p.pool.Exec(ctx, q, matchID, f.WinnerID,
		f.Player1FinalTotal, f.Player2FinalTotal,
		f.Player1CardCount, f.Player2CardCount,
		f.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to finish match %s: %w", matchID, err)
	}
	return nil
}

// MarkAbandoned flags a match that is still active after its session went quiet.
func (p *Postgres) MarkAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE matches
		SET status = 'abandoned', finished_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, matchID)
	if err != nil {
		return false, fmt.Errorf("failed to mark match %s abandoned: %w", matchID, err)
	}
	return tag.RowsAffected() > 0, nil
}

const insertLog = `
	INSERT INTO match_log (match_id, turn_number, player_id, action, card_value, new_total, special_card_used, logged_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, to_timestamp($8::double precision / 1000))
`

func insertLogTx(ctx context.Context, tx pgx.Tx, e models.MatchLogEntry) error {
	_, err := tx.Exec(ctx, insertLog,
		e.MatchID, e.TurnNumber, e.PlayerID, e.Action,
		e.CardValue, e.NewTotal, e.SpecialCard, e.Timestamp,
	)
	return err
}

// LogAction appends one row to match_log.
func (p *Postgres) LogAction(ctx context.Context, e models.MatchLogEntry) error {
	return p.LogActions(ctx, []models.MatchLogEntry{e})
}

// LogActions inserts a batch of match_log rows in one transaction.
func (p *Postgres) LogActions(ctx context.Context, entries []models.MatchLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, e := range entries {
			if err := insertLogTx(ctx, tx, e); err != nil {
				return fmt.Errorf("insert log for match %s turn %d: %w", e.MatchID, e.TurnNumber, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to log actions: %w", err)
	}
	return nil
}

// GetMatchHistory lists a player's most recent matches, newest first.
func (p *Postgres) GetMatchHistory(ctx context.Context, playerID uuid.UUID, limit int) ([]models.MatchRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	q := `
		SELECT m.id, m.player1_id, m.player2_id, m.winner_id, m.mode, m.status,
		       m.player1_final_total, m.player2_final_total,
		       m.player1_card_count, m.player2_card_count,
		       m.duration_seconds, m.created_at,
		       p1.username, p2.username, COALESCE(pw.username, '')
		FROM matches m
		JOIN players p1 ON m.player1_id = p1.id
		JOIN players p2 ON m.player2_id = p2.id
		LEFT JOIN players pw ON m.winner_id = pw.id
		WHERE m.player1_id = $1 OR m.player2_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, q, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %w", err)
	}
	defer rows.Close()

	var out []models.MatchRecord
	for rows.Next() {
		var m models.MatchRecord
		if err := rows.Scan(
			&m.ID, &m.Player1ID, &m.Player2ID, &m.WinnerID, &m.Mode, &m.Status,
			&m.Player1FinalTotal, &m.Player2FinalTotal,
			&m.Player1CardCount, &m.Player2CardCount,
			&m.DurationSeconds, &m.CreatedAt,
			&m.Player1Username, &m.Player2Username, &m.WinnerUsername,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match history: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
