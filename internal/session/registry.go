// internal/session/registry.go
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the process-local directory of player connections and active matches.
//
// It is only valid for a single instance. Running several instances requires moving these
// maps into a shared directory keyed by player id, or pinning a match to one instance.
type Registry struct {
	mu      sync.RWMutex
	conns   map[uuid.UUID]string    // player -> connection
	players map[string]uuid.UUID    // connection -> player
	matches map[uuid.UUID]uuid.UUID // player -> match
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[uuid.UUID]string),
		players: make(map[string]uuid.UUID),
		matches: make(map[uuid.UUID]uuid.UUID),
	}
}

// Bind associates playerID with connID. The newest connection of a player wins.
func (r *Registry) Bind(playerID uuid.UUID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.players[connID]; ok && prev != playerID {
		if r.conns[prev] == connID {
			delete(r.conns, prev)
		}
	}
	if old, ok := r.conns[playerID]; ok && old != connID {
		delete(r.players, old)
	}
	r.conns[playerID] = connID
	r.players[connID] = playerID
}

// Unbind forgets connID. It returns the player only when connID was that player's
// current connection, so a stale socket closing never affects a newer one.
func (r *Registry) Unbind(connID string) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	playerID, ok := r.players[connID]
	if !ok {
		return uuid.Nil, false
	}
	delete(r.players, connID)
	if r.conns[playerID] != connID {
		return uuid.Nil, false
	}
	delete(r.conns, playerID)
	return playerID, true
}

func (r *Registry) ConnOf(playerID uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[playerID]
	return c, ok
}

func (r *Registry) PlayerOf(connID string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[connID]
	return p, ok
}

// Online reports whether playerID has a live connection.
func (r *Registry) Online(playerID uuid.UUID) bool {
	_, ok := r.ConnOf(playerID)
	return ok
}

func (r *Registry) SetMatch(playerID, matchID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches[playerID] = matchID
}

func (r *Registry) MatchOf(playerID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[playerID]
	return m, ok
}

// ClearMatch removes the player's match only if it still points at matchID.
func (r *Registry) ClearMatch(playerID, matchID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.matches[playerID] == matchID {
		delete(r.matches, playerID)
	}
}

// OnlineCount is the number of players with a live connection.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
