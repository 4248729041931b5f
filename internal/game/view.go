// internal/game/view.go
package game

import "github.com/google/uuid"

// Turn indicators relative to the viewer.
const (
	TurnYou      = "you"
	TurnOpponent = "opponent"
)

// View is one player's perspective of a match, sent as game_update.
type View struct {
	MatchID             uuid.UUID     `json:"matchId"`
	Mode                Mode          `json:"mode"`
	Phase               Phase         `json:"gamePhase"`
	CurrentTurn         string        `json:"currentTurn"`
	TurnCount           int           `json:"turnCount"`
	YourCards           []int         `json:"yourCards"`
	YourTotal           int           `json:"yourTotal"`
	YourMaxAllowed      int           `json:"yourMaxAllowed"`
	YourStanding        bool          `json:"yourStanding"`
	OpponentVisibleCard int           `json:"opponentVisibleCard"`
	OpponentTotal       int           `json:"opponentTotal"`
	OpponentStanding    bool          `json:"opponentStanding"`
	SpecialCards        []SpecialType `json:"specialCards"`
	OpponentName        string        `json:"opponentName"`
	TurnDeadline        *int64        `json:"turnDeadline,omitempty"`
}

// BuildView renders m as seen from slot s.
//
// The opponent total is always revealed. A pending DISTURB against the viewer replaces
// the viewer's own displayed total until the viewer's hand next changes.
func BuildView(m *MatchState, s Slot) View {
	you, opp := m.Seat(s), m.Seat(s.Other())

	turn := TurnOpponent
	if m.CurrentTurn == s {
		turn = TurnYou
	}

	yourTotal := you.Hand.Total
	if v, ok := m.Effects[EffectKey(EffectDisturb, s)]; ok {
		yourTotal = v
	}

	cards := make([]int, len(you.Hand.NumberCards))
	copy(cards, you.Hand.NumberCards)

	return View{
		MatchID:             m.MatchID,
		Mode:                m.Mode,
		Phase:               m.Phase,
		CurrentTurn:         turn,
		TurnCount:           m.TurnCount,
		YourCards:           cards,
		YourTotal:           yourTotal,
		YourMaxAllowed:      you.Hand.MaxAllowed,
		YourStanding:        you.Hand.Standing,
		OpponentVisibleCard: you.VisibleCard,
		OpponentTotal:       opp.Hand.Total,
		OpponentStanding:    opp.Hand.Standing,
		SpecialCards:        you.Hand.UnusedSpecials(),
		OpponentName:        opp.Username,
		TurnDeadline:        m.TurnDeadline,
	}
}

// MatchFound is the payload announcing a freshly created match to one player.
type MatchFound struct {
	MatchID             uuid.UUID `json:"matchId"`
	Mode                Mode      `json:"mode"`
	Opponent            string    `json:"opponent"`
	YourCards           []int     `json:"yourCards"`
	YourTotal           int       `json:"yourTotal"`
	OpponentVisibleCard int       `json:"opponentVisibleCard"`
	StartingTurn        string    `json:"startingTurn"`
	CountdownStart      int64     `json:"countdownStart"`
}

// BuildMatchFound renders the match_found payload for slot s.
func BuildMatchFound(m *MatchState, s Slot, countdownStart int64) MatchFound {
	you, opp := m.Seat(s), m.Seat(s.Other())
	turn := TurnOpponent
	if m.CurrentTurn == s {
		turn = TurnYou
	}
	cards := make([]int, len(you.Hand.NumberCards))
	copy(cards, you.Hand.NumberCards)
	return MatchFound{
		MatchID:             m.MatchID,
		Mode:                m.Mode,
		Opponent:            opp.Username,
		YourCards:           cards,
		YourTotal:           you.Hand.Total,
		OpponentVisibleCard: you.VisibleCard,
		StartingTurn:        turn,
		CountdownStart:      countdownStart,
	}
}
