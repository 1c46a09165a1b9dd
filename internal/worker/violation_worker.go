package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/publicq/examguard/internal/config"
	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker drains the violation queue into the durable ledger table.
// Live sessions enqueue fire-and-forget; this worker owns durability.
type ViolationWorker struct {
	attempts *repository.AttemptRepository
	rdb      *redis.Client
	log      zerolog.Logger
}

func NewViolationWorker(attempts *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		attempts: attempts,
		rdb:      rdb,
		log:      log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*repository.ViolationPayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check flush conditions (time or size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check context (graceful shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop blocks for 1 second and returns
		// immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // Queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload repository.ViolationPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*repository.ViolationPayload) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func toRow(p *repository.ViolationPayload) (repository.ViolationRow, error) {
	examID, err := uuid.Parse(p.ExamID)
	if err != nil {
		return repository.ViolationRow{}, err
	}
	vt := model.ViolationType(p.Type)
	if !vt.Valid() {
		return repository.ViolationRow{}, fmt.Errorf("unknown violation type %q", p.Type)
	}
	return repository.ViolationRow{
		ExamID:       examID,
		StudentEmail: p.StudentEmail,
		Type:         vt,
		Details:      p.Details,
		RecordedAt:   time.Unix(p.Timestamp, 0).UTC(),
	}, nil
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []*repository.ViolationPayload) error {
	rows := make([]repository.ViolationRow, 0, len(batch))
	for _, p := range batch {
		row, err := toRow(p)
		if err != nil {
			// Trigger the fallback, which drops the bad payload individually.
			return err
		}
		rows = append(rows, row)
	}
	return w.attempts.BulkInsertViolations(ctx, rows)
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*repository.ViolationPayload) {
	requeueList := make([]*repository.ViolationPayload, 0)

	for _, p := range batch {
		row, err := toRow(p)
		if err != nil {
			w.log.Error().Err(err).Str("exam_id", p.ExamID).Msg("Dropping malformed violation")
			continue
		}

		if err := w.attempts.InsertViolation(ctx, row); err != nil {
			w.log.Error().Err(err).Str("student", p.StudentEmail).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*repository.ViolationPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Avoid thrashing if the DB is down hard.
		time.Sleep(2 * time.Second)
	}
}

func (w *ViolationWorker) shutdown(buffer []*repository.ViolationPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
