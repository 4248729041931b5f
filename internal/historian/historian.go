// internal/historian/historian.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bladeduel/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Publisher pushes match log entries onto a Redis list for the historian to drain.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

func NewPublisher(rdb *redis.Client, queue string) *Publisher {
	return &Publisher{rdb: rdb, queue: queue}
}

// LogAction serializes e and pushes it to the queue. It only costs one round trip.
func (p *Publisher) LogAction(ctx context.Context, e models.MatchLogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// Sink is where drained entries end up. database.Postgres implements it.
type Sink interface {
	LogActions(ctx context.Context, entries []models.MatchLogEntry) error
	MarkAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error)
}

// Options tune a Service.
type Options struct {
	Queue      string
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a match may go without actions before it is marked abandoned.
	Inactivity time.Duration
}

// Service drains the action queue into the Sink in batches and marks quiet matches abandoned.
type Service struct {
	rdb    *redis.Client
	sink   Sink
	opts   Options
	logger *logrus.Logger

	lastActivity sync.Map // uuid.UUID -> time.Time

	batchMu sync.Mutex
	batch   []models.MatchLogEntry
}

func NewService(rdb *redis.Client, sink Sink, opts Options, logger *logrus.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	return &Service{
		rdb:    rdb,
		sink:   sink,
		opts:   opts,
		logger: logger,
		batch:  make([]models.MatchLogEntry, 0, opts.BatchSize),
	}
}

// Run blocks until ctx is cancelled, then flushes whatever is still batched.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.logger.Info("historian started")
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(flushCtx)
	s.logger.Info("historian stopped")
}

func (s *Service) readLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		default:
			// short block so the ticker and cancellation are still observed; Redis
			// blocking timeouts have one-second granularity
			res, err := s.rdb.BLPop(ctx, max(time.Second, s.opts.FlushDelay), s.opts.Queue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					s.logger.WithError(err).Error("BLPop failed")
					time.Sleep(s.opts.FlushDelay)
				}
				continue
			}
			if len(res) < 2 {
				continue
			}

			var e models.MatchLogEntry
			if err := json.Unmarshal([]byte(res[1]), &e); err != nil {
				s.logger.WithError(err).Warn("dropping invalid log entry")
				continue
			}
			s.lastActivity.Store(e.MatchID, time.Now())
			s.add(ctx, e)
		}
	}
}

func (s *Service) add(ctx context.Context, e models.MatchLogEntry) {
	s.batchMu.Lock()
	s.batch = append(s.batch, e)
	full := len(s.batch) >= s.opts.BatchSize
	s.batchMu.Unlock()

	if full {
		s.flush(ctx)
	}
}

// flush writes the current batch in one transaction. A failed batch is put back in front
// of anything that arrived meanwhile so ordering within a match is kept.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	if len(s.batch) == 0 {
		return
	}
	pending := make([]models.MatchLogEntry, len(s.batch))
	copy(pending, s.batch)

	if err := s.sink.LogActions(ctx, pending); err != nil {
		s.logger.WithError(err).WithField("count", len(pending)).Error("failed to flush log batch")
		return
	}
	s.batch = s.batch[:0]
	s.logger.WithField("count", len(pending)).Debug("flushed log batch")
}

func (s *Service) inactivityLoop(ctx context.Context) {
	if s.opts.Inactivity <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(min(time.Minute, s.opts.Inactivity/2))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweepInactive(ctx, now)
		}
	}
}

// sweepInactive marks every match quiet since before now-Inactivity as abandoned.
func (s *Service) sweepInactive(ctx context.Context, now time.Time) {
	s.lastActivity.Range(func(key, val any) bool {
		matchID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= s.opts.Inactivity {
			return true
		}
		s.lastActivity.Delete(matchID)

		marked, err := s.sink.MarkAbandoned(ctx, matchID)
		log := s.logger.WithField("matchID", matchID)
		switch {
		case err != nil:
			log.WithError(err).Error("failed to mark match abandoned")
		case marked:
			log.Info("marked match abandoned due to inactivity")
		}
		return true
	})
}
