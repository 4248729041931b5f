// internal/session/actions.go
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/sirupsen/logrus"
)

// loadMatch reads the session record of matchID. The caller must hold the match lock.
func (c *Coordinator) loadMatch(ctx context.Context, matchID uuid.UUID) (*game.MatchState, error) {
	m, err := c.store.GetMatchState(ctx, matchID)
	if err != nil {
		return nil, apperrors.Collaborator("Action failed", err)
	}
	if m == nil {
		return nil, apperrors.ErrMatchNotFound
	}
	return m, nil
}

// GameAction applies a HIT, STAND or USE_SPECIAL sent by the turn holder.
//
// HIT and STAND are validated strictly. USE_SPECIAL is permissive: a special that is not
// held, already used, or blocked by JAM is silently dropped and the turn still passes.
func (c *Coordinator) GameAction(ctx context.Context, connID string, matchID uuid.UUID, token string, action game.Action, special game.SpecialType) error {
	claims, err := c.Register(connID, token)
	if err != nil {
		return err
	}
	switch action {
	case game.ActionHit, game.ActionStand, game.ActionUseSpecial:
	default:
		return apperrors.ErrUnknownAction
	}

	unlock := c.locks.Lock(matchID)
	defer unlock()

	m, err := c.loadMatch(ctx, matchID)
	if err != nil {
		return err
	}
	slot, ok := m.SlotOf(claims.PlayerID)
	if !ok {
		return apperrors.ErrNotInMatch
	}
	if m.Phase != game.PhaseGameplay {
		return apperrors.ErrNotInGameplay
	}
	if m.CurrentTurn != slot {
		return apperrors.ErrNotYourTurn
	}
	return c.play(ctx, m, slot, action, special)
}

// play resolves one move for slot and either ends the match or passes the turn.
func (c *Coordinator) play(ctx context.Context, m *game.MatchState, slot game.Slot, action game.Action, special game.SpecialType) error {
	seat := m.Seat(slot)
	now := c.nowMillis()

	switch action {
	case game.ActionHit:
		card := c.engine.DrawCard(&seat.Hand)
		m.ClearEffect(game.EffectDisturb, slot)
		c.record(ctx, m, slot, game.ActionHit, &card, nil, now)

		if busted(&seat.Hand) {
			return c.endMatch(ctx, m, slot.Other(), game.EndBust)
		}

	case game.ActionStand:
		seat.Hand.Standing = true
		c.record(ctx, m, slot, game.ActionStand, nil, nil, now)
		if m.Seat(slot.Other()).Hand.Standing {
			return c.endMatch(ctx, m, game.Resolve(m, c.tie), game.EndCompare)
		}

	case game.ActionUseSpecial:
		// BURN and ECHO change the hand and can bust it like a HIT
		if c.useSpecial(ctx, m, slot, special, now) && busted(&seat.Hand) {
			return c.endMatch(ctx, m, slot.Other(), game.EndBust)
		}

	default:
		return apperrors.ErrUnknownAction
	}

	return c.advanceTurn(ctx, m)
}

// busted reports whether h is over its limit. A hand saved by last breath spends it.
func busted(h *game.Hand) bool {
	if game.CheckBust(h.Total, h.MaxAllowed, h.SurviveOverdraw) {
		return true
	}
	if h.SurviveOverdraw && h.Total > h.MaxAllowed {
		h.SurviveOverdraw = false
	}
	return false
}

// useSpecial consumes and applies t for slot. It reports whether the number cards of slot
// changed.
func (c *Coordinator) useSpecial(ctx context.Context, m *game.MatchState, slot game.Slot, t game.SpecialType, now int64) bool {
	log := c.logger.WithFields(logrus.Fields{"matchID": m.MatchID, "slot": slot, "special": t})

	if !game.UseSpecialCard(&m.Seat(slot).Hand, t) {
		log.Debug("special not held, turn passes")
		return false
	}
	changed := false
	if m.HasEffect(game.EffectJam, slot) {
		m.ClearEffect(game.EffectJam, slot)
		log.Debug("special jammed")
	} else {
		c.engine.ApplySpecialEffect(m, slot, t)
		if t == game.SpecialBurn || t == game.SpecialEcho {
			m.ClearEffect(game.EffectDisturb, slot)
			changed = true
		}
	}
	c.record(ctx, m, slot, game.ActionUseSpecial, nil, &t, now)
	return changed
}

// record appends to the match log and forwards the row to persistence.
// A failed write is logged; the match carries on.
func (c *Coordinator) record(ctx context.Context, m *game.MatchState, slot game.Slot, action game.Action, card *int, special *game.SpecialType, now int64) {
	m.AppendLog(slot, action, card, special, now)
	e := m.Log[len(m.Log)-1]

	row := models.MatchLogEntry{
		MatchID:    m.MatchID,
		TurnNumber: e.Turn,
		PlayerID:   m.Seat(slot).ID,
		Action:     string(action),
		CardValue:  card,
		NewTotal:   e.NewTotal,
		Timestamp:  now,
	}
	if special != nil {
		s := string(*special)
		row.SpecialCard = &s
	}
	if err := c.db.LogAction(ctx, row); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{"matchID": m.MatchID, "action": action}).Warn("failed to log match action")
	}
}

// advanceTurn hands the turn over, grants the new holder a special and re-arms the deadline.
// The deadline is only re-armed once the new turn is stored, so a failed write leaves the
// previous turn and its timer in force.
func (c *Coordinator) advanceTurn(ctx context.Context, m *game.MatchState) error {
	m.CurrentTurn = m.CurrentTurn.Other()
	m.TurnCount++
	c.engine.GrantSpecialCard(&m.Current().Hand)
	c.setDeadline(m)

	if err := c.store.StoreMatchState(ctx, m); err != nil {
		return apperrors.Collaborator("Action failed", err)
	}
	c.armTurn(m)
	c.broadcast(m)
	c.maybeScheduleBot(m)
	return nil
}

// onTurnTimeout forfeits the turn holder if the match still sits on the turn the timer was
// armed for.
func (c *Coordinator) onTurnTimeout(matchID uuid.UUID, turn int) {
	if c.closed.Load() {
		return
	}
	ctx, cancel := c.background()
	defer cancel()

	unlock := c.locks.Lock(matchID)
	defer unlock()

	m, err := c.store.GetMatchState(ctx, matchID)
	if err != nil {
		c.logger.WithError(err).WithField("matchID", matchID).Error("failed to load match on timeout")
		return
	}
	if m == nil || m.Phase != game.PhaseGameplay || m.TurnCount != turn {
		return
	}

	loser := m.CurrentTurn
	c.logger.WithFields(logrus.Fields{"matchID": matchID, "turn": turn, "player": m.Seat(loser).Username}).Info("turn timed out")
	if err := c.endMatch(ctx, m, loser.Other(), game.EndTimeout); err != nil {
		c.logger.WithError(err).WithField("matchID", matchID).Error("failed to end timed out match")
	}
}

// maybeScheduleBot queues the bot's move when it holds the turn.
func (c *Coordinator) maybeScheduleBot(m *game.MatchState) {
	slot, ok := m.BotSlot()
	if !ok || m.Phase != game.PhaseGameplay || m.CurrentTurn != slot {
		return
	}
	matchID, turn := m.MatchID, m.TurnCount
	time.AfterFunc(c.timings.BotThinkDelay, func() { c.botMove(matchID, turn) })
}

func (c *Coordinator) botMove(matchID uuid.UUID, turn int) {
	if c.closed.Load() {
		return
	}
	ctx, cancel := c.background()
	defer cancel()

	unlock := c.locks.Lock(matchID)
	defer unlock()

	m, err := c.store.GetMatchState(ctx, matchID)
	if err != nil {
		c.logger.WithError(err).WithField("matchID", matchID).Error("failed to load match for bot")
		return
	}
	if m == nil || m.Phase != game.PhaseGameplay || m.TurnCount != turn {
		return
	}
	slot, ok := m.BotSlot()
	if !ok || m.CurrentTurn != slot {
		return
	}

	action := game.BotMove(m, slot)
	c.logger.WithFields(logrus.Fields{"matchID": matchID, "action": action, "total": m.Seat(slot).Hand.Total}).Debug("bot move")
	if err := c.play(ctx, m, slot, action, ""); err != nil {
		c.logger.WithError(err).WithField("matchID", matchID).Error("bot move failed")
	}
}
