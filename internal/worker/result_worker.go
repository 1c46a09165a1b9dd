package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/publicq/examguard/internal/config"
	"github.com/publicq/examguard/internal/repository"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker cleans up after finalized attempts. The result row itself is
// written synchronously at submission; this worker trails behind deleting
// the now-stale autosave buffers (Redis keys and attempt_answers rows) in
// batches.
type ResultWorker struct {
	attempts *repository.AttemptRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

func NewResultWorker(attempts *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "result_worker").Logger(),
	}
}

// ResultPayload identifies one finalized attempt on the cleanup queue.
type ResultPayload struct {
	ExamID       string `json:"exam_id"`
	StudentEmail string `json:"student_email"`
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*ResultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p ResultPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*ResultPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkDeleteAnswers(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk cleanup failed, requeueing batch")
		for _, p := range batch {
			raw, _ := json.Marshal(p)
			w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
		}
		return
	}

	// Durable rows gone, now the Redis buffers.
	w.bulkClearCachedAnswers(ctx, batch)
}

// bulkDeleteAnswers removes the attempt_answers rows for the whole batch
// with a single UNNEST-driven statement.
func (w *ResultWorker) bulkDeleteAnswers(ctx context.Context, batch []*ResultPayload) error {
	examIDs := make([]uuid.UUID, 0, len(batch))
	emails := make([]string, 0, len(batch))

	for _, p := range batch {
		eID, err := uuid.Parse(p.ExamID)
		if err != nil {
			w.log.Error().Str("exam_id", p.ExamID).Msg("Dropping cleanup item with invalid UUID")
			continue
		}
		examIDs = append(examIDs, eID)
		emails = append(emails, p.StudentEmail)
	}
	if len(examIDs) == 0 {
		return nil
	}

	return w.attempts.DeleteAnswers(ctx, examIDs, emails)
}

func (w *ResultWorker) bulkClearCachedAnswers(ctx context.Context, batch []*ResultPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(p.ExamID, p.StudentEmail))
		pipe.Del(ctx, config.CacheKey.AttemptStateKey(p.ExamID, p.StudentEmail))
		pipe.Del(ctx, config.CacheKey.StudentActiveExamKey(p.StudentEmail))
	}
	_, _ = pipe.Exec(ctx)
}
