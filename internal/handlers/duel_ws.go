// internal/handlers/duel_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/apperrors"
	"github.com/jason-s-yu/bladeduel/internal/auth"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/jason-s-yu/bladeduel/internal/middleware"
	"github.com/jason-s-yu/bladeduel/internal/session"
	"github.com/sirupsen/logrus"
)

// DuelSubprotocol is the websocket subprotocol clients must request.
const DuelSubprotocol = "duel"

// Sessions is the part of session.Coordinator the socket handler drives.
type Sessions interface {
	Register(connID, token string) (auth.Claims, error)
	JoinQueue(ctx context.Context, connID string, mode game.Mode, token string) error
	GameAction(ctx context.Context, connID string, matchID uuid.UUID, token string, action game.Action, special game.SpecialType) error
	LeaveMatch(ctx context.Context, connID string, matchID uuid.UUID, token string) error
	Challenge(ctx context.Context, connID, token, targetUsername string) error
	Disconnect(ctx context.Context, connID string) error
}

// DuelMessage is an inbound event. Only the fields of its Type are read.
type DuelMessage struct {
	Type string `json:"type"`

	// Token overrides the token the socket was opened with.
	Token string `json:"token,omitempty"`

	Mode           string `json:"mode,omitempty"`
	MatchID        string `json:"matchId,omitempty"`
	Action         string `json:"action,omitempty"`
	SpecialCard    string `json:"specialCard,omitempty"`
	TargetUsername string `json:"targetUsername,omitempty"`
}

// DuelWSHandler upgrades to a websocket speaking the duel protocol. A token may be given
// up front through the token query parameter or the auth_token cookie; otherwise every
// message must carry one.
func DuelWSHandler(logger *logrus.Logger, hub *Hub, sessions Sessions, origins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{DuelSubprotocol},
			OriginPatterns: origins,
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept error")
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != DuelSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the duel subprotocol")
			return
		}

		cl := hub.add(c)
		defer hub.remove(cl)
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		token := requestToken(r)
		if token != "" {
			if _, err := sessions.Register(cl.id, token); err != nil {
				logger.WithError(err).WithField("remote", r.RemoteAddr).Warn("rejected websocket token")
				c.Close(InvalidAuthTokenError, "invalid auth token")
				return
			}
		}

		readErr := readDuelMessages(r.Context(), c, cl.id, token, hub, sessions, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sessions.Disconnect(ctx, cl.id); err != nil {
			logger.WithError(err).WithField("conn", cl.id).Error("disconnect cleanup failed")
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readDuelMessages dispatches inbound events until the socket closes. Failures of one event
// are reported to this connection only.
func readDuelMessages(ctx context.Context, c *websocket.Conn, connID, token string, hub *Hub, sessions Sessions, logger *logrus.Logger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			logger.WithField("conn", connID).Debug("ignoring non-text message")
			continue
		}

		var msg DuelMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			hub.Send(connID, session.ErrorEvent("Invalid JSON format"))
			continue
		}
		if msg.Token == "" {
			msg.Token = token
		}

		if err := dispatch(ctx, connID, msg, hub, sessions); err != nil {
			entry := logger.WithError(err).WithFields(logrus.Fields{"conn": connID, "type": msg.Type})
			switch apperrors.KindOf(err) {
			case apperrors.KindCollaborator, "":
				entry.Error("event failed")
			default:
				entry.Debug("event rejected")
			}
			hub.Send(connID, session.ErrorEvent(apperrors.ClientMessage(err, fallbackMessage(msg.Type))))
		}
	}
}

func dispatch(ctx context.Context, connID string, msg DuelMessage, hub *Hub, sessions Sessions) error {
	switch msg.Type {
	case "join_queue":
		return sessions.JoinQueue(ctx, connID, game.Mode(msg.Mode), msg.Token)

	case "game_action":
		matchID, err := uuid.Parse(msg.MatchID)
		if err != nil {
			return apperrors.ErrMatchNotFound
		}
		return sessions.GameAction(ctx, connID, matchID, msg.Token, game.Action(msg.Action), game.SpecialType(msg.SpecialCard))

	case "leave_match":
		matchID, _ := uuid.Parse(msg.MatchID)
		return sessions.LeaveMatch(ctx, connID, matchID, msg.Token)

	case "challenge_player":
		return sessions.Challenge(ctx, connID, msg.Token, msg.TargetUsername)

	case "ping":
		hub.Send(connID, session.Event{Type: session.EventPong})
		return nil
	}
	return &apperrors.Error{Kind: apperrors.KindIllegalAction, Message: "Unknown message type: " + msg.Type}
}

func fallbackMessage(msgType string) string {
	switch msgType {
	case "join_queue":
		return "Failed to join queue"
	case "game_action":
		return "Action failed"
	case "leave_match":
		return "Failed to leave match"
	case "challenge_player":
		return "Failed to challenge player"
	}
	return "Request failed"
}
