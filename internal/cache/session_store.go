// internal/cache/session_store.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/game"
	"github.com/redis/go-redis/v9"
)

const (
	// MatchTTL bounds how long an abandoned session record survives.
	MatchTTL = time.Hour
	// QueueTTL lets stale searches expire on their own.
	QueueTTL = 2 * time.Minute
)

func matchKey(id uuid.UUID) string { return "game:" + id.String() }
func queueKey(mode game.Mode) string { return "queue:" + string(mode) }
func playerMatchKey(id uuid.UUID) string { return "player:" + id.String() + ":match" }

// SessionStore keeps match records, matchmaking queues and player->match pointers in Redis.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// StoreMatchState writes the full match record, resetting its TTL.
func (s *SessionStore) StoreMatchState(ctx context.Context, m *game.MatchState) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal match %s: %w", m.MatchID, err)
	}
	if err := s.rdb.Set(ctx, matchKey(m.MatchID), data, MatchTTL).Err(); err != nil {
		return fmt.Errorf("failed to store match %s: %w", m.MatchID, err)
	}
	return nil
}

// GetMatchState loads a match record. A missing or expired record yields (nil, nil).
func (s *SessionStore) GetMatchState(ctx context.Context, id uuid.UUID) (*game.MatchState, error) {
	data, err := s.rdb.Get(ctx, matchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load match %s: %w", id, err)
	}
	var m game.MatchState
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode match %s: %w", id, err)
	}
	if m.Effects == nil {
		m.Effects = make(map[string]int)
	}
	return &m, nil
}

func (s *SessionStore) RemoveMatchState(ctx context.Context, id uuid.UUID) error {
	if err := s.rdb.Del(ctx, matchKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove match %s: %w", id, err)
	}
	return nil
}

// Enqueue pushes a serialized entry onto the newest end of the mode queue and refreshes
// the queue TTL.
func (s *SessionStore) Enqueue(ctx context.Context, mode game.Mode, entry []byte) error {
	key := queueKey(mode)
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, entry)
	pipe.Expire(ctx, key, QueueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue into %s: %w", key, err)
	}
	return nil
}

// Restore puts an entry back at the oldest end of the mode queue so it is paired next.
func (s *SessionStore) Restore(ctx context.Context, mode game.Mode, entry []byte) error {
	key := queueKey(mode)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, entry)
	pipe.Expire(ctx, key, QueueTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to restore entry to %s: %w", key, err)
	}
	return nil
}

// PopPair takes the two oldest entries of the mode queue. When only one is waiting it is
// put back at the oldest end and PopPair returns (nil, nil, nil).
func (s *SessionStore) PopPair(ctx context.Context, mode game.Mode) ([]byte, []byte, error) {
	key := queueKey(mode)
	first, err := s.rdb.RPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pop from %s: %w", key, err)
	}

	second, err := s.rdb.RPop(ctx, key).Bytes()
	if err != nil {
		if rerr := s.rdb.RPush(ctx, key, first).Err(); rerr != nil {
			return nil, nil, fmt.Errorf("failed to restore entry to %s: %w", key, rerr)
		}
		if errors.Is(err, redis.Nil) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	return first, second, nil
}

func (s *SessionStore) QueueLength(ctx context.Context, mode game.Mode) (int64, error) {
	n, err := s.rdb.LLen(ctx, queueKey(mode)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", queueKey(mode), err)
	}
	return n, nil
}

func (s *SessionStore) SetPlayerActiveMatch(ctx context.Context, playerID, matchID uuid.UUID) error {
	if err := s.rdb.Set(ctx, playerMatchKey(playerID), matchID.String(), MatchTTL).Err(); err != nil {
		return fmt.Errorf("failed to set active match for %s: %w", playerID, err)
	}
	return nil
}

// GetPlayerActiveMatch returns uuid.Nil when the player has no active match.
func (s *SessionStore) GetPlayerActiveMatch(ctx context.Context, playerID uuid.UUID) (uuid.UUID, error) {
	v, err := s.rdb.Get(ctx, playerMatchKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get active match for %s: %w", playerID, err)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt active match for %s: %w", playerID, err)
	}
	return id, nil
}

func (s *SessionStore) ClearPlayerActiveMatch(ctx context.Context, playerID uuid.UUID) error {
	if err := s.rdb.Del(ctx, playerMatchKey(playerID)).Err(); err != nil {
		return fmt.Errorf("failed to clear active match for %s: %w", playerID, err)
	}
	return nil
}

// OnlinePlayerCount counts players currently bound to a match.
func (s *SessionStore) OnlinePlayerCount(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "player:*:match", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan active players: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
