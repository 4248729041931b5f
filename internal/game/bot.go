// internal/game/bot.go
package game

// Bot identity of the standing automated opponent.
const (
	BotUsername    = "AIBot"
	BotDisplayName = "A.I. Sever"
)

// DecideBotAction is the bot's whole strategy. It only ever hits or stands.
//
//	total <= 16          hit
//	17..18               hit when the visible opposing card is 9 or more
//	total >= 19          stand
func DecideBotAction(total, opponentVisible int) Action {
	switch {
	case total <= 16:
		return ActionHit
	case total <= 18:
		if opponentVisible >= 9 {
			return ActionHit
		}
		return ActionStand
	default:
		return ActionStand
	}
}

// BotMove computes the bot's action for the seat in slot s.
func BotMove(m *MatchState, s Slot) Action {
	seat := m.Seat(s)
	return DecideBotAction(seat.Hand.Total, seat.VisibleCard)
}
