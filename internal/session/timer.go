// internal/session/timer.go
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TurnTimer holds at most one deadline per match, tagged with the turn counter it was
// armed for. Handlers must still compare that turn against the live match before acting.
type TurnTimer struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*armedTurn
}

type armedTurn struct {
	turn  int
	timer *time.Timer
}

func NewTurnTimer() *TurnTimer {
	return &TurnTimer{timers: make(map[uuid.UUID]*armedTurn)}
}

// Arm schedules fire(matchID, turn) after d, cancelling any deadline already armed for matchID.
func (t *TurnTimer) Arm(matchID uuid.UUID, turn int, d time.Duration, fire func(matchID uuid.UUID, turn int)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.timers[matchID]; ok {
		prev.timer.Stop()
	}
	at := &armedTurn{turn: turn}
	at.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		current := t.timers[matchID] == at
		if current {
			delete(t.timers, matchID)
		}
		t.mu.Unlock()
		if current {
			fire(matchID, turn)
		}
	})
	t.timers[matchID] = at
}

// Cancel stops the deadline of matchID, if any.
func (t *TurnTimer) Cancel(matchID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if at, ok := t.timers[matchID]; ok {
		at.timer.Stop()
		delete(t.timers, matchID)
	}
}

// Armed returns the turn matchID is armed for.
func (t *TurnTimer) Armed(matchID uuid.UUID) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.timers[matchID]
	if !ok {
		return 0, false
	}
	return at.turn, true
}

// StopAll cancels every pending deadline.
func (t *TurnTimer) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, at := range t.timers {
		at.timer.Stop()
		delete(t.timers, id)
	}
}
