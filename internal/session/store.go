package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/publicq/examguard/internal/model"
)

// Store is the attempt persistence boundary consumed by the Controller. It
// is injected by constructor — never through a module-level singleton — so
// the controller can be tested against an in-memory implementation.
//
// Violation and submission writes are write-through: every state change is
// persisted immediately, without batching, so the durable copy is never
// more than one event behind memory. Implementations may satisfy
// AppendViolation by enqueueing to a durable queue; at-most-once delivery
// is accepted on that path.
type Store interface {
	// GetExam loads an exam definition with its questions.
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)

	// GetAttempt loads the attempt record for a student+exam pair, or
	// ErrAttemptNotFound.
	GetAttempt(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.ExamAttempt, error)

	// CreateOrUpdateAttempt upserts the full attempt record.
	CreateOrUpdateAttempt(ctx context.Context, attempt *model.ExamAttempt) error

	// AppendViolation appends one ledger entry for the attempt.
	AppendViolation(ctx context.Context, examID uuid.UUID, studentEmail string, v model.ViolationEvent) error

	// WriteResult records the denormalized result row, exactly once per
	// submission.
	WriteResult(ctx context.Context, result *model.ExamResult) error

	// ListResultsByStudent returns a student's results ordered by
	// submission time, newest first.
	ListResultsByStudent(ctx context.Context, studentEmail string) ([]model.ExamResult, error)
}
