// internal/game/state.go
package game

import (
	"fmt"

	"github.com/google/uuid"
)

// Mode is the queue a match was made from.
type Mode string

const (
	ModeCasual  Mode = "casual"
	ModeRanked  Mode = "ranked"
	ModeFriends Mode = "friends"
)

// Queueable reports whether players may join a matchmaking queue for m.
// Friends matches are only made through challenges.
func (m Mode) Queueable() bool {
	return m == ModeCasual || m == ModeRanked
}

// Phase is a step of the match lifecycle. Resolution is terminal.
type Phase string

const (
	PhaseMatchmaking Phase = "matchmaking"
	PhaseInit        Phase = "init"
	PhaseCountdown   Phase = "countdown"
	PhaseGameplay    Phase = "gameplay"
	PhaseResolution  Phase = "resolution"
)

// Slot identifies one of the two seats of a match.
type Slot string

const (
	Player1 Slot = "player1"
	Player2 Slot = "player2"
)

// Other returns the opposing slot.
func (s Slot) Other() Slot {
	if s == Player1 {
		return Player2
	}
	return Player1
}

// Action is a logged or requested match action.
type Action string

const (
	ActionHit        Action = "HIT"
	ActionStand      Action = "STAND"
	ActionUseSpecial Action = "USE_SPECIAL"
)

// Seat is one player's side of a match.
type Seat struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Rating   int       `json:"rating"`
	IsBot    bool      `json:"isBot"`
	Hand     Hand      `json:"hand"`

	// VisibleCard is the one number card of the opposing hand this seat may see.
	VisibleCard int `json:"visibleCard"`
}

// ActionEntry is one row of the append-only match log.
type ActionEntry struct {
	Turn        int          `json:"turn"`
	Player      Slot         `json:"player"`
	Action      Action       `json:"action"`
	CardValue   *int         `json:"cardValue,omitempty"`
	NewTotal    *int         `json:"newTotal,omitempty"`
	SpecialCard *SpecialType `json:"specialCard,omitempty"`
	Timestamp   int64        `json:"timestamp"`
}

// MatchState is the authoritative record of a match. The session store holds its
// JSON form between events.
type MatchState struct {
	MatchID     uuid.UUID      `json:"matchId"`
	Mode        Mode           `json:"mode"`
	Player1     Seat           `json:"player1"`
	Player2     Seat           `json:"player2"`
	CurrentTurn Slot           `json:"currentTurn"`
	TurnCount   int            `json:"turnCount"`
	Phase       Phase          `json:"gamePhase"`
	Effects     map[string]int `json:"specialCardsInPlay"`
	Log         []ActionEntry  `json:"gameLog"`

	// TurnDeadline is unix millis; set if and only if Phase is gameplay.
	TurnDeadline *int64 `json:"turnDeadline,omitempty"`

	// CreatedAt is unix millis of match creation, used when the log is empty.
	CreatedAt int64 `json:"createdAt"`
}

// Seat returns a pointer to the seat in slot s.
func (m *MatchState) Seat(s Slot) *Seat {
	if s == Player1 {
		return &m.Player1
	}
	return &m.Player2
}

// Current returns the seat holding the turn.
func (m *MatchState) Current() *Seat {
	return m.Seat(m.CurrentTurn)
}

// SlotOf finds the slot of playerID.
func (m *MatchState) SlotOf(playerID uuid.UUID) (Slot, bool) {
	switch playerID {
	case m.Player1.ID:
		return Player1, true
	case m.Player2.ID:
		return Player2, true
	}
	return "", false
}

// BotSlot returns the slot of the automated opponent, if any.
func (m *MatchState) BotSlot() (Slot, bool) {
	if m.Player1.IsBot {
		return Player1, true
	}
	if m.Player2.IsBot {
		return Player2, true
	}
	return "", false
}

// AppendLog records an action for slot at the current turn counter.
func (m *MatchState) AppendLog(slot Slot, action Action, card *int, special *SpecialType, now int64) {
	total := m.Seat(slot).Hand.Total
	m.Log = append(m.Log, ActionEntry{
		Turn:        m.TurnCount,
		Player:      slot,
		Action:      action,
		CardValue:   card,
		NewTotal:    &total,
		SpecialCard: special,
		Timestamp:   now,
	})
}

// StartedAt is the timestamp of the first logged action, falling back to CreatedAt.
func (m *MatchState) StartedAt() int64 {
	if len(m.Log) > 0 {
		return m.Log[0].Timestamp
	}
	return m.CreatedAt
}

// EffectKey builds the Effects map key for a named effect scoped to a slot.
func EffectKey(name string, s Slot) string {
	return fmt.Sprintf("%s:%s", name, s)
}

// Effect names stored in MatchState.Effects.
const (
	EffectJam        = "jam"
	EffectEdge       = "edge"
	EffectDisturb    = "disturb"
	EffectDoubleEdge = "double_edge"
)

// HasEffect reports whether a flag effect is set for s.
func (m *MatchState) HasEffect(name string, s Slot) bool {
	_, ok := m.Effects[EffectKey(name, s)]
	return ok
}

// ClearEffect removes an effect for s.
func (m *MatchState) ClearEffect(name string, s Slot) {
	delete(m.Effects, EffectKey(name, s))
}

func (m *MatchState) setEffect(name string, s Slot, v int) {
	if m.Effects == nil {
		m.Effects = make(map[string]int)
	}
	m.Effects[EffectKey(name, s)] = v
}

// EndReason tells how a match resolved.
type EndReason string

const (
	EndBust    EndReason = "bust"
	EndCompare EndReason = "compare"
	EndTimeout EndReason = "timeout"
	EndForfeit EndReason = "forfeit"
)

// MatchResult is the immutable snapshot broadcast and persisted at resolution.
type MatchResult struct {
	MatchID         uuid.UUID `json:"matchId"`
	WinnerID        uuid.UUID `json:"winnerId"`
	WinnerUsername  string    `json:"winnerUsername"`
	LoserID         uuid.UUID `json:"loserId"`
	LoserUsername   string    `json:"loserUsername"`
	WinnerTotal     int       `json:"winnerTotal"`
	LoserTotal      int       `json:"loserTotal"`
	WinnerCardCount int       `json:"winnerCardCount"`
	LoserCardCount  int       `json:"loserCardCount"`
	Mode            Mode      `json:"mode"`
	DurationSeconds int       `json:"durationSeconds"`
	Reason          EndReason `json:"reason"`
}

// NewMatchResult snapshots m with winner in slot w.
func NewMatchResult(m *MatchState, w Slot, reason EndReason, durationSeconds int) MatchResult {
	win, lose := m.Seat(w), m.Seat(w.Other())
	return MatchResult{
		MatchID:         m.MatchID,
		WinnerID:        win.ID,
		WinnerUsername:  win.Username,
		LoserID:         lose.ID,
		LoserUsername:   lose.Username,
		WinnerTotal:     win.Hand.Total,
		LoserTotal:      lose.Hand.Total,
		WinnerCardCount: win.Hand.CardCount(),
		LoserCardCount:  lose.Hand.CardCount(),
		Mode:            m.Mode,
		DurationSeconds: durationSeconds,
		Reason:          reason,
	}
}
