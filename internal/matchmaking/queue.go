// internal/matchmaking/queue.go
package matchmaking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/game"
)

// Entry is one waiting player. Rating is carried for display only; pairing ignores it.
type Entry struct {
	PlayerID  uuid.UUID `json:"playerId"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	Timestamp int64     `json:"timestamp"`
}

// Pair holds the two longest-waiting entries, oldest first.
type Pair struct {
	First  Entry
	Second Entry
}

// Backend is the shared list storage behind the queue. cache.SessionStore implements it.
type Backend interface {
	Enqueue(ctx context.Context, mode game.Mode, entry []byte) error
	PopPair(ctx context.Context, mode game.Mode) ([]byte, []byte, error)
	Restore(ctx context.Context, mode game.Mode, entry []byte) error
	QueueLength(ctx context.Context, mode game.Mode) (int64, error)
}

// Queue pairs players per mode in arrival order.
type Queue struct {
	backend Backend

	// pairing per mode is serialized within this process so two concurrent
	// attempts never split a pair between them
	mu    sync.Mutex
	modes map[game.Mode]*sync.Mutex
}

func NewQueue(backend Backend) *Queue {
	return &Queue{backend: backend, modes: make(map[game.Mode]*sync.Mutex)}
}

func (q *Queue) modeLock(mode game.Mode) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok := q.modes[mode]
	if !ok {
		l = &sync.Mutex{}
		q.modes[mode] = l
	}
	return l
}

// Join appends entry to the mode queue.
func (q *Queue) Join(ctx context.Context, mode game.Mode, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}
	return q.backend.Enqueue(ctx, mode, data)
}

// TryPair removes and returns the two oldest entries, or nil when fewer than two wait.
// A lone entry is left in place. When the same player sits at the head twice, the older
// search is dropped and pairing carries on with the next entry.
func (q *Queue) TryPair(ctx context.Context, mode game.Mode) (*Pair, error) {
	l := q.modeLock(mode)
	l.Lock()
	defer l.Unlock()

	for {
		a, b, err := q.backend.PopPair(ctx, mode)
		if err != nil {
			return nil, err
		}
		if a == nil || b == nil {
			return nil, nil
		}

		var p Pair
		if err := json.Unmarshal(a, &p.First); err != nil {
			return nil, fmt.Errorf("failed to decode queue entry: %w", err)
		}
		if err := json.Unmarshal(b, &p.Second); err != nil {
			return nil, fmt.Errorf("failed to decode queue entry: %w", err)
		}
		if p.First.PlayerID != p.Second.PlayerID {
			return &p, nil
		}
		if err := q.backend.Restore(ctx, mode, b); err != nil {
			return nil, err
		}
	}
}

// Requeue puts entry back at the head of the mode queue, keeping its place in line.
func (q *Queue) Requeue(ctx context.Context, mode game.Mode, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}
	return q.backend.Restore(ctx, mode, data)
}

// Waiting reports how many entries are queued for mode.
func (q *Queue) Waiting(ctx context.Context, mode game.Mode) (int, error) {
	n, err := q.backend.QueueLength(ctx, mode)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
