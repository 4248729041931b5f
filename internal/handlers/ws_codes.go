// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom websocket close codes sent by the duel handler.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected without the duel subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Token given at connect time was invalid or expired.
)
