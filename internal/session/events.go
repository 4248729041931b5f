// internal/session/events.go
package session

// Outbound event types.
const (
	EventSearching  = "searching"
	EventMatchFound = "match_found"
	EventGameUpdate = "game_update"
	EventMatchEnded = "match_ended"
	EventError      = "error"
	EventPong       = "pong"
)

// Event is one outbound message to a connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// MessagePayload carries the text of searching and error events.
type MessagePayload struct {
	Message string `json:"message"`
}

// ErrorEvent builds the generic error event reported to the originator of a trigger.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Payload: MessagePayload{Message: message}}
}

// Notifier delivers events to connections. Send must not block on slow peers.
type Notifier interface {
	Send(connID string, ev Event)
}
