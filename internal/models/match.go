package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchRecord is a row of the matches table joined with player names.
type MatchRecord struct {
	ID        uuid.UUID  `json:"id"`
	Player1ID uuid.UUID  `json:"player1_id"`
	Player2ID uuid.UUID  `json:"player2_id"`
	WinnerID  *uuid.UUID `json:"winner_id,omitempty"`
	Mode      string     `json:"mode"`
	Status    string     `json:"status"` // 'active', 'completed'

	Player1FinalTotal *int `json:"player1_final_total,omitempty"`
	Player2FinalTotal *int `json:"player2_final_total,omitempty"`
	Player1CardCount  *int `json:"player1_card_count,omitempty"`
	Player2CardCount  *int `json:"player2_card_count,omitempty"`
	DurationSeconds   *int `json:"duration_seconds,omitempty"`

	Player1Username string `json:"player1_username"`
	Player2Username string `json:"player2_username"`
	WinnerUsername  string `json:"winner_username,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MatchFinish carries the final numbers written when a match resolves.
type MatchFinish struct {
	WinnerID          uuid.UUID
	Player1FinalTotal int
	Player2FinalTotal int
	Player1CardCount  int
	Player2CardCount  int
	DurationSeconds   int
}

// MatchLogEntry is one row of match_log.
type MatchLogEntry struct {
	MatchID     uuid.UUID `json:"match_id"`
	TurnNumber  int       `json:"turn_number"`
	PlayerID    uuid.UUID `json:"player_id"`
	Action      string    `json:"action"`
	CardValue   *int      `json:"card_value,omitempty"`
	NewTotal    *int      `json:"new_total,omitempty"`
	SpecialCard *string   `json:"special_card_used,omitempty"`
	Timestamp   int64     `json:"timestamp"`
}
