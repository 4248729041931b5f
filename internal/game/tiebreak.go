// internal/game/tiebreak.go
package game

// TieBreaker picks the winner when two standing hands have equal totals and equal card counts.
//
// The reference rules flip a coin. That outcome cannot be verified by either player, so the
// policy is injected rather than hard-coded; product owners have not settled on a replacement.
type TieBreaker interface {
	BreakTie(m *MatchState) Slot
}

// CoinFlip is the reference tie-break: each slot wins with probability 1/2.
type CoinFlip struct {
	RNG RNG
}

func (c CoinFlip) BreakTie(*MatchState) Slot {
	rng := c.RNG
	if rng == nil {
		rng = defaultRNG{}
	}
	if rng.IntN(2) == 0 {
		return Player1
	}
	return Player2
}

// Favor always awards ties to one slot. Tests use it to pin outcomes.
type Favor Slot

func (f Favor) BreakTie(*MatchState) Slot {
	return Slot(f)
}

// Resolve turns a comparison into a winning slot, consulting tb on a tie.
func Resolve(m *MatchState, tb TieBreaker) Slot {
	switch CompareHands(
		m.Player1.Hand.Total, m.Player2.Hand.Total,
		m.Player1.Hand.CardCount(), m.Player2.Hand.CardCount(),
	) {
	case OutcomePlayer1:
		return Player1
	case OutcomePlayer2:
		return Player2
	}
	return tb.BreakTie(m)
}
