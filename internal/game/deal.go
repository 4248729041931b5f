// internal/game/deal.go
package game

import "github.com/google/uuid"

// Participant is a player about to be seated in a new match.
type Participant struct {
	ID       uuid.UUID
	Username string
	Rating   int
	IsBot    bool
}

// NewMatch deals both hands, reveals one card of each hand to the other side and picks
// the starting turn at random. The match begins in the countdown phase.
func (e *Engine) NewMatch(id uuid.UUID, mode Mode, p1, p2 Participant, now int64) *MatchState {
	m := &MatchState{
		MatchID:   id,
		Mode:      mode,
		Player1:   newSeat(p1, e.CreateInitialHand()),
		Player2:   newSeat(p2, e.CreateInitialHand()),
		Phase:     PhaseInit,
		Effects:   make(map[string]int),
		Log:       []ActionEntry{},
		CreatedAt: now,
	}
	m.CurrentTurn = Player1
	if e.rng.IntN(2) == 1 {
		m.CurrentTurn = Player2
	}

	m.Player1.VisibleCard = m.Player2.Hand.NumberCards[0]
	m.Player2.VisibleCard = m.Player1.Hand.NumberCards[0]

	m.Phase = PhaseCountdown
	return m
}

func newSeat(p Participant, h Hand) Seat {
	return Seat{
		ID:       p.ID,
		Username: p.Username,
		Rating:   p.Rating,
		IsBot:    p.IsBot,
		Hand:     h,
	}
}
