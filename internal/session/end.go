// internal/session/end.go
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/jason-s-yu/bladeduel/internal/rating"
	"github.com/sirupsen/logrus"
)

// LeaveMatch forfeits the caller's active match. When the player has no recorded match,
// matchID is tried instead.
func (c *Coordinator) LeaveMatch(ctx context.Context, connID string, matchID uuid.UUID, token string) error {
	claims, err := c.Register(connID, token)
	if err != nil {
		return err
	}
	id, err := c.activeMatch(ctx, claims.PlayerID)
	if err != nil {
		return err
	}
	if id == uuid.Nil {
		id = matchID
	}
	if id == uuid.Nil {
		return nil
	}
	if err := c.forfeit(ctx, id, claims.PlayerID); err != nil {
		return err
	}
	c.registry.ClearMatch(claims.PlayerID, id)
	return nil
}

// Disconnect forgets connID. If it was the player's current connection, their active
// match is forfeited.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) error {
	playerID, ok := c.registry.Unbind(connID)
	if !ok {
		return nil
	}
	id, err := c.activeMatch(ctx, playerID)
	if err != nil {
		return err
	}
	if id == uuid.Nil {
		return nil
	}
	c.logger.WithFields(logrus.Fields{"playerID": playerID, "matchID": id}).Info("player disconnected mid-match")
	if err := c.forfeit(ctx, id, playerID); err != nil {
		return err
	}
	c.registry.ClearMatch(playerID, id)
	return nil
}

// forfeit ends matchID in favor of the opponent of playerID. A match that is gone or
// already resolved is left alone.
func (c *Coordinator) forfeit(ctx context.Context, matchID, playerID uuid.UUID) error {
	unlock := c.locks.Lock(matchID)
	defer unlock()

	m, err := c.store.GetMatchState(ctx, matchID)
	if err != nil {
		return apperrors.Collaborator("Failed to leave match", err)
	}
	if m == nil || m.Phase == game.PhaseResolution {
		return nil
	}
	slot, ok := m.SlotOf(playerID)
	if !ok {
		return apperrors.ErrNotInMatch
	}
	return c.endMatch(ctx, m, slot.Other(), game.EndForfeit)
}

// endMatch resolves m in favor of winner. The caller holds the match lock and loaded m
// under it. The resolution phase is written back before anything else so a later trigger
// that re-reads the record sees a finished match and does nothing.
//
// Persistence, broadcast and cleanup failures are logged; every step still runs and each is
// safe to repeat.
func (c *Coordinator) endMatch(ctx context.Context, m *game.MatchState, winner game.Slot, reason game.EndReason) error {
	if m.Phase == game.PhaseResolution {
		return nil
	}
	log := c.logger.WithFields(logrus.Fields{"matchID": m.MatchID, "reason": reason})

	m.Phase = game.PhaseResolution
	m.TurnDeadline = nil
	c.timer.Cancel(m.MatchID)
	if err := c.store.StoreMatchState(ctx, m); err != nil {
		log.WithError(err).Error("failed to store resolved match")
	}

	duration := int((c.nowMillis() - m.StartedAt()) / 1000)
	if duration < 0 {
		duration = 0
	}
	result := game.NewMatchResult(m, winner, reason, duration)

	finish := models.MatchFinish{
		WinnerID:          result.WinnerID,
		Player1FinalTotal: m.Player1.Hand.Total,
		Player2FinalTotal: m.Player2.Hand.Total,
		Player1CardCount:  m.Player1.Hand.CardCount(),
		Player2CardCount:  m.Player2.Hand.CardCount(),
		DurationSeconds:   duration,
	}
	if err := c.db.FinishMatch(ctx, m.MatchID, finish); err != nil {
		log.WithError(err).Error("failed to persist match result")
	}
	c.updateStats(ctx, m, winner, log)

	for _, slot := range []game.Slot{game.Player1, game.Player2} {
		seat := m.Seat(slot)
		if seat.IsBot {
			continue
		}
		c.send(seat.ID, Event{Type: EventMatchEnded, Payload: result})
		c.send(seat.ID, Event{Type: EventGameUpdate, Payload: game.BuildView(m, slot)})
	}

	if err := c.store.RemoveMatchState(ctx, m.MatchID); err != nil {
		log.WithError(err).Warn("failed to evict match record")
	}
	for _, slot := range []game.Slot{game.Player1, game.Player2} {
		seat := m.Seat(slot)
		if seat.IsBot {
			continue
		}
		if err := c.store.ClearPlayerActiveMatch(ctx, seat.ID); err != nil {
			log.WithError(err).WithField("playerID", seat.ID).Warn("failed to clear active match")
		}
		c.registry.ClearMatch(seat.ID, m.MatchID)
	}

	log.WithFields(logrus.Fields{
		"winner":   result.WinnerUsername,
		"loser":    result.LoserUsername,
		"duration": duration,
	}).Info("match ended")
	return nil
}

// updateStats records the result for both players. Ranked matches also move ratings.
func (c *Coordinator) updateStats(ctx context.Context, m *game.MatchState, winner game.Slot, log *logrus.Entry) {
	win, lose := m.Seat(winner), m.Seat(winner.Other())

	var winChange, loseChange *rating.Change
	if m.Mode == game.ModeRanked {
		wc, lc := rating.Duel(c.standing(ctx, win), c.standing(ctx, lose))
		winChange, loseChange = &wc, &lc
	}

	if err := c.db.UpdatePlayerStats(ctx, win.ID, m.Mode, true, winChange); err != nil {
		log.WithError(err).WithField("playerID", win.ID).Error("failed to update winner stats")
	}
	if err := c.db.UpdatePlayerStats(ctx, lose.ID, m.Mode, false, loseChange); err != nil {
		log.WithError(err).WithField("playerID", lose.ID).Error("failed to update loser stats")
	}
}

// standing reads the stored rating of a seat, falling back to the rating it was seated with.
func (c *Coordinator) standing(ctx context.Context, seat *game.Seat) rating.Standing {
	p, err := c.db.GetPlayerByID(ctx, seat.ID)
	if err != nil {
		return rating.Standing{Rating: seat.Rating}
	}
	return rating.Standing{
		Rating:     p.Stats.CurrentRating,
		Deviation:  p.Stats.RatingDeviation,
		Volatility: p.Stats.Volatility,
	}
}
