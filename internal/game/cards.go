// internal/game/cards.go
package game

// SpecialType names one of the thirteen one-shot special cards.
type SpecialType string

const (
	SpecialOverclock  SpecialType = "OVERCLOCK"
	SpecialSwap       SpecialType = "SWAP"
	SpecialJam        SpecialType = "JAM"
	SpecialEcho       SpecialType = "ECHO"
	SpecialBurn       SpecialType = "BURN"
	SpecialBloodDraw  SpecialType = "BLOOD_DRAW"
	SpecialEdge       SpecialType = "EDGE"
	SpecialGreed      SpecialType = "GREED"
	SpecialDisturb    SpecialType = "DISTURB"
	SpecialFakeStand  SpecialType = "FAKE_STAND"
	SpecialDelay      SpecialType = "DELAY"
	SpecialDoubleEdge SpecialType = "DOUBLE_EDGE"
	SpecialLastBreath SpecialType = "LAST_BREATH"
)

// SpecialCards is the fixed draw pool for special cards.
var SpecialCards = []SpecialType{
	SpecialOverclock,
	SpecialSwap,
	SpecialJam,
	SpecialEcho,
	SpecialBurn,
	SpecialBloodDraw,
	SpecialEdge,
	SpecialGreed,
	SpecialDisturb,
	SpecialFakeStand,
	SpecialDelay,
	SpecialDoubleEdge,
	SpecialLastBreath,
}

// Valid reports whether t is one of the thirteen known types.
func (t SpecialType) Valid() bool {
	for _, s := range SpecialCards {
		if s == t {
			return true
		}
	}
	return false
}

const (
	MinCardValue       = 1
	MaxCardValue       = 11
	DefaultMaxAllowed  = 21
	OverclockMax       = 24
	MaxSpecialCardHeld = 5
)

// SpecialCard is a granted special. Once Used it can never be played again.
type SpecialCard struct {
	Type SpecialType `json:"type"`
	Used bool        `json:"used"`
}

// Hand is one player's cards. Total always equals the sum of NumberCards.
type Hand struct {
	NumberCards     []int         `json:"numberCards"`
	SpecialCards    []SpecialCard `json:"specialCards"`
	Total           int           `json:"total"`
	Standing        bool          `json:"standing"`
	MaxAllowed      int           `json:"maxAllowed"`
	SurviveOverdraw bool          `json:"surviveOverdraw"`
}

// CalculateTotal sums a slice of number cards.
func CalculateTotal(cards []int) int {
	total := 0
	for _, c := range cards {
		total += c
	}
	return total
}

// recompute keeps Total equal to the sum of NumberCards.
func (h *Hand) recompute() {
	h.Total = CalculateTotal(h.NumberCards)
}

// LastCard returns the most recently added number card, or 0 for an empty hand.
func (h *Hand) LastCard() int {
	if len(h.NumberCards) == 0 {
		return 0
	}
	return h.NumberCards[len(h.NumberCards)-1]
}

// CardCount is the number of number cards held.
func (h *Hand) CardCount() int {
	return len(h.NumberCards)
}

// UnusedSpecials lists the types of specials still playable, in grant order.
func (h *Hand) UnusedSpecials() []SpecialType {
	out := make([]SpecialType, 0, len(h.SpecialCards))
	for _, c := range h.SpecialCards {
		if !c.Used {
			out = append(out, c.Type)
		}
	}
	return out
}
