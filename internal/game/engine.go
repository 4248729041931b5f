// internal/game/engine.go
package game

import (
	"math/rand/v2"
	"sync"
)

// RNG is the randomness used for dealing. IntN returns a value in [0, n).
type RNG interface {
	IntN(n int) int
}

type defaultRNG struct{}

func (defaultRNG) IntN(n int) int { return rand.IntN(n) }

// Engine performs all hand arithmetic. It holds no match state of its own.
type Engine struct {
	rng RNG
}

// NewEngine returns an Engine drawing from rng, or from the runtime source when rng is nil.
func NewEngine(rng RNG) *Engine {
	if rng == nil {
		rng = defaultRNG{}
	}
	return &Engine{rng: rng}
}

// DrawNumberCard samples a number card uniformly from [1, 11].
func (e *Engine) DrawNumberCard() int {
	return MinCardValue + e.rng.IntN(MaxCardValue-MinCardValue+1)
}

// DrawSpecialCard samples a special card type uniformly.
func (e *Engine) DrawSpecialCard() SpecialType {
	return SpecialCards[e.rng.IntN(len(SpecialCards))]
}

// CreateInitialHand deals two number cards.
func (e *Engine) CreateInitialHand() Hand {
	h := Hand{
		NumberCards:  []int{e.DrawNumberCard(), e.DrawNumberCard()},
		SpecialCards: []SpecialCard{},
		MaxAllowed:   DefaultMaxAllowed,
	}
	h.recompute()
	return h
}

// DrawCard appends a fresh number card to h and returns it.
func (e *Engine) DrawCard(h *Hand) int {
	c := e.DrawNumberCard()
	h.NumberCards = append(h.NumberCards, c)
	h.recompute()
	return c
}

// GrantSpecialCard gives h one unused special unless it already holds the maximum.
// Nothing is ever discarded to make room.
func (e *Engine) GrantSpecialCard(h *Hand) bool {
	if len(h.SpecialCards) >= MaxSpecialCardHeld {
		return false
	}
	h.SpecialCards = append(h.SpecialCards, SpecialCard{Type: e.DrawSpecialCard()})
	return true
}

// UseSpecialCard marks the first unused card of type t as used.
// It returns false when no such card is held; the effect must not be applied then.
func UseSpecialCard(h *Hand, t SpecialType) bool {
	for i := range h.SpecialCards {
		if h.SpecialCards[i].Type == t && !h.SpecialCards[i].Used {
			h.SpecialCards[i].Used = true
			return true
		}
	}
	return false
}

// CheckBust reports whether total busts against maxAllowed. With survive set, a total of
// exactly maxAllowed+1 is forgiven; anything further over still busts.
func CheckBust(total, maxAllowed int, survive bool) bool {
	if total <= maxAllowed {
		return false
	}
	return !(survive && total == maxAllowed+1)
}

// ApplySpecialEffect resolves special t played by actor. Effects aimed at the opponent are
// written against the opponent's slot.
func (e *Engine) ApplySpecialEffect(m *MatchState, actor Slot, t SpecialType) {
	player := m.Seat(actor)
	opponent := actor.Other()

	switch t {
	case SpecialOverclock:
		player.Hand.MaxAllowed = OverclockMax
	case SpecialJam:
		m.setEffect(EffectJam, opponent, 1)
	case SpecialBurn:
		if n := len(player.Hand.NumberCards); n > 0 {
			player.Hand.NumberCards[n-1] = e.DrawNumberCard()
			player.Hand.recompute()
		}
	case SpecialEcho:
		if n := len(player.Hand.NumberCards); n > 0 {
			player.Hand.NumberCards = append(player.Hand.NumberCards, player.Hand.NumberCards[n-1])
			player.Hand.recompute()
		}
	case SpecialEdge:
		m.setEffect(EffectEdge, actor, 1)
	case SpecialDisturb:
		variance := 1 + e.rng.IntN(2)
		if e.rng.IntN(2) == 0 {
			variance = -variance
		}
		m.setEffect(EffectDisturb, opponent, m.Seat(opponent).Hand.Total+variance)
	case SpecialLastBreath:
		player.Hand.SurviveOverdraw = true
	case SpecialDoubleEdge:
		m.setEffect(EffectDoubleEdge, actor, 1)
	default:
		// SWAP, BLOOD_DRAW, GREED, FAKE_STAND and DELAY carry no state change.
	}
}

// Outcome is the result of comparing two standing hands.
type Outcome string

const (
	OutcomePlayer1 Outcome = "player1"
	OutcomePlayer2 Outcome = "player2"
	OutcomeTie     Outcome = "tie"
)

// CompareHands ranks two hands: higher total wins, then fewer cards, otherwise a tie.
func CompareHands(total1, total2, count1, count2 int) Outcome {
	switch {
	case total1 > total2:
		return OutcomePlayer1
	case total2 > total1:
		return OutcomePlayer2
	case count1 < count2:
		return OutcomePlayer1
	case count2 < count1:
		return OutcomePlayer2
	}
	return OutcomeTie
}

// SequenceRNG replays a fixed list of values, cycling when exhausted. Each value is taken
// modulo n. It makes deals reproducible in tests and replays.
type SequenceRNG struct {
	Values []int

	mu   sync.Mutex
	next int
}

func (s *SequenceRNG) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Values) == 0 || n <= 0 {
		return 0
	}
	v := s.Values[s.next%len(s.Values)]
	s.next++
	if v < 0 {
		v = -v
	}
	return v % n
}
