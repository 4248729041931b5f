// internal/handlers/hub.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/session"
	"github.com/sirupsen/logrus"
)

// sendBuffer is how many outbound events a connection may queue before it is treated as stalled.
const sendBuffer = 32

const writeTimeout = 5 * time.Second

// client is one accepted websocket. All writes go through its send channel so the
// coordinator never blocks on a slow peer.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed sync.Once
}

func (c *client) close() {
	c.closed.Do(func() { close(c.done) })
}

// Hub tracks live duel connections and implements session.Notifier.
type Hub struct {
	logger *logrus.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[string]*client)}
}

// add registers conn under a fresh connection id and starts its writer.
func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writeLoop(c)
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

// Send queues ev for connID. Events for unknown connections are dropped; a full buffer
// drops the event and logs it.
func (h *Hub) Send(connID string, ev session.Event) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).WithField("type", ev.Type).Error("failed to marshal event")
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	default:
		h.logger.WithFields(logrus.Fields{"conn": connID, "type": ev.Type}).Warn("send buffer full, dropping event")
	}
}

// Count is the number of open sockets.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				status := websocket.CloseStatus(err)
				if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
					h.logger.WithError(err).WithField("conn", c.id).Warn("failed to write event")
				}
				// unblocks the read loop, which then runs the disconnect path
				c.conn.CloseNow()
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
