package application

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"reminder-bot/internal/domain/ports/adapter"
	"reminder-bot/internal/infra/logging"
)

type Handler interface {
	Dispatch(ctx context.Context, in adapter.Inbound) error
}

var ErrSourceClosed = errors.New("update source closed")

// IngestionLoop pulls inbound messages and fans them out to workers sharded by user id,
// so one user's commands are handled in arrival order while users proceed in parallel.
type IngestionLoop struct {
	src     adapter.UpdateSource
	handler Handler
	workers int
	log     *zerolog.Logger
}

func NewIngestionLoop(src adapter.UpdateSource, handler Handler, workers int, logger *zerolog.Logger) *IngestionLoop {
	if workers <= 0 {
		workers = 4
	}
	l := logger.With().Str("component", "IngestionLoop").Logger()
	return &IngestionLoop{src: src, handler: handler, workers: workers, log: &l}
}

// Run blocks until ctx is cancelled or the source closes. Messages already handed to a
// worker are finished before Run returns. A source that closes before ctx ends yields
// ErrSourceClosed so the process does not keep running without a command loop.
func (l *IngestionLoop) Run(ctx context.Context) error {
	shards := make([]chan adapter.Inbound, l.workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan adapter.Inbound, 16)
		wg.Add(1)
		go func(id int, in <-chan adapter.Inbound) {
			defer wg.Done()
			for m := range in {
				l.handle(ctx, id, m)
			}
		}(i, shards[i])
	}
	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
		l.log.Info().Msg("ingestion stopped")
	}()

	l.log.Info().Int("workers", l.workers).Msg("ingestion started")
	updates := l.src.Updates(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSourceClosed
			}
			shard := shards[shardOf(m.UserID, l.workers)]
			select {
			case shard <- m:
			default:
				// shard backlog full: wait, unless shutting down
				select {
				case shard <- m:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func shardOf(userID int64, n int) int {
	s := int(userID % int64(n))
	if s < 0 {
		s = -s
	}
	return s
}

func (l *IngestionLoop) handle(ctx context.Context, worker int, m adapter.Inbound) {
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	defer func() {
		if r := recover(); r != nil {
			logging.With(ctx, l.log).Error().Interface("panic", r).Int("worker", worker).Msg("handler panicked")
		}
	}()
	// shutdown does not abort a command mid-way: persist and scheduler calls complete
	if err := l.handler.Dispatch(context.WithoutCancel(ctx), m); err != nil {
		logging.With(ctx, l.log).Warn().Err(err).Int("worker", worker).Int64("user_id", m.UserID).Msg("command failed")
	}
}
