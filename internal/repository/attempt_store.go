package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/publicq/examguard/internal/config"
	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/session"
)

// AttemptStore is the production session.Store. Exam definitions and
// attempt rows live in PostgreSQL; violation writes go through a Redis
// queue so a slow or downed database never stalls a live session. The
// violation worker drains that queue into the exam_violations table.
type AttemptStore struct {
	exams    *ExamRepository
	attempts *AttemptRepository
	results  *ResultRepository
	rdb      *redis.Client
}

// NewAttemptStore creates the store over its backing repositories.
func NewAttemptStore(exams *ExamRepository, attempts *AttemptRepository, results *ResultRepository, rdb *redis.Client) *AttemptStore {
	return &AttemptStore{
		exams:    exams,
		attempts: attempts,
		results:  results,
		rdb:      rdb,
	}
}

var _ session.Store = (*AttemptStore)(nil)

// GetExam loads a published exam with its questions. Draft and archived
// exams are invisible to the attempt pipeline.
func (s *AttemptStore) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, session.ErrExamNotFound
	}
	return exam, nil
}

// GetAttempt loads the attempt row for an exam-student pair.
func (s *AttemptStore) GetAttempt(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.ExamAttempt, error) {
	return s.attempts.GetByExamAndStudent(ctx, examID, studentEmail)
}

// CreateOrUpdateAttempt upserts the attempt row.
func (s *AttemptStore) CreateOrUpdateAttempt(ctx context.Context, attempt *model.ExamAttempt) error {
	return s.attempts.Upsert(ctx, attempt)
}

// ViolationPayload is the queue wire format consumed by the violation
// worker.
type ViolationPayload struct {
	ExamID       string `json:"exam_id"`
	StudentEmail string `json:"student_email"`
	Type         string `json:"type"`
	Details      string `json:"details,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// AppendViolation enqueues a ledger entry for asynchronous persistence.
func (s *AttemptStore) AppendViolation(ctx context.Context, examID uuid.UUID, studentEmail string, event model.ViolationEvent) error {
	payload, err := json.Marshal(ViolationPayload{
		ExamID:       examID.String(),
		StudentEmail: studentEmail,
		Type:         string(event.Type),
		Details:      event.Details,
		Timestamp:    event.Timestamp.Unix(),
	})
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err()
}

// WriteResult durably writes the denormalized result row. Unlike violation
// writes this is awaited: submission must not succeed without it.
func (s *AttemptStore) WriteResult(ctx context.Context, result *model.ExamResult) error {
	return s.results.Insert(ctx, result)
}

// ListResultsByStudent returns a student's result history.
func (s *AttemptStore) ListResultsByStudent(ctx context.Context, studentEmail string) ([]model.ExamResult, error) {
	return s.results.ListByStudent(ctx, studentEmail)
}
