package models

import (
	"time"

	"github.com/google/uuid"
)

type Player struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`

	Level     int       `json:"level"`
	XP        int       `json:"xp"`
	CreatedAt time.Time `json:"created_at"`

	Stats PlayerStats `json:"stats"`
}

// PlayerStats aggregates results per mode. Rating fields are only moved by ranked matches.
type PlayerStats struct {
	CasualWins    int `json:"casual_wins"`
	CasualLosses  int `json:"casual_losses"`
	RankedWins    int `json:"ranked_wins"`
	RankedLosses  int `json:"ranked_losses"`
	TotalMatches  int `json:"total_matches"`
	CurrentRating int `json:"current_rating"`
	PeakRating    int `json:"peak_rating"`

	// Glicko2 deviation and volatility backing CurrentRating
	RatingDeviation float64 `json:"rating_deviation"`
	Volatility      float64 `json:"volatility"`
}

// WinRate is wins over total matches, 0 when nothing has been played.
func (s PlayerStats) WinRate() float64 {
	if s.TotalMatches == 0 {
		return 0
	}
	return float64(s.CasualWins+s.RankedWins) / float64(s.TotalMatches)
}
