package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/session"
)

// AttemptRepository handles attempt, violation and autosaved answer data
// access. Violations are written in batches by the violation worker; the
// attempt row itself is upserted on every lifecycle transition.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByExamAndStudent retrieves the single attempt record for an
// exam-student pair. Returns session.ErrAttemptNotFound when absent.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	var answers, violations []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, student_email, attempt_number, answers, violations,
		        violation_count, status, started_at, submitted_at, score, percentage, passed
		 FROM exam_attempts
		 WHERE exam_id = $1 AND student_email = $2`, examID, studentEmail,
	).Scan(&a.ID, &a.ExamID, &a.StudentEmail, &a.AttemptNumber, &answers, &violations,
		&a.ViolationCount, &a.Status, &a.StartedAt, &a.SubmittedAt, &a.Score, &a.Percentage, &a.Passed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(violations, &a.Violations); err != nil {
		return nil, err
	}
	if a.Answers == nil {
		a.Answers = make(map[string]string)
	}
	return a, nil
}

// Upsert creates or replaces the attempt row. The deterministic attempt ID
// makes this a natural single-row upsert.
func (r *AttemptRepository) Upsert(ctx context.Context, a *model.ExamAttempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	violations, err := json.Marshal(a.Violations)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_attempts
		   (id, exam_id, student_email, attempt_number, answers, violations,
		    violation_count, status, started_at, submitted_at, score, percentage, passed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   attempt_number  = EXCLUDED.attempt_number,
		   answers         = EXCLUDED.answers,
		   violations      = EXCLUDED.violations,
		   violation_count = EXCLUDED.violation_count,
		   status          = EXCLUDED.status,
		   started_at      = EXCLUDED.started_at,
		   submitted_at    = EXCLUDED.submitted_at,
		   score           = EXCLUDED.score,
		   percentage      = EXCLUDED.percentage,
		   passed          = EXCLUDED.passed,
		   updated_at      = NOW()`,
		a.ID, a.ExamID, a.StudentEmail, a.AttemptNumber, answers, violations,
		a.ViolationCount, a.Status, a.StartedAt, a.SubmittedAt, a.Score, a.Percentage, a.Passed)
	return err
}

// ListByExamPaginated retrieves attempts for an exam, most recent first.
func (r *AttemptRepository) ListByExamPaginated(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.ExamAttempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_email, attempt_number, violation_count,
		        status, started_at, submitted_at, score, percentage, passed
		 FROM exam_attempts
		 WHERE exam_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		var a model.ExamAttempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentEmail, &a.AttemptNumber,
			&a.ViolationCount, &a.Status, &a.StartedAt, &a.SubmittedAt,
			&a.Score, &a.Percentage, &a.Passed); err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}

// ViolationRow is one durable ledger entry as drained from the write queue.
type ViolationRow struct {
	ExamID       uuid.UUID
	StudentEmail string
	Type         model.ViolationType
	Details      string
	RecordedAt   time.Time
}

// BulkInsertViolations writes a batch of ledger entries via COPY.
func (r *AttemptRepository) BulkInsertViolations(ctx context.Context, batch []ViolationRow) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []interface{}{
			v.ExamID, v.StudentEmail, v.Type, v.Details, v.RecordedAt,
		})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"exam_id", "student_email", "violation_type", "details", "recorded_at"},
		pgx.CopyFromRows(rows))
	return err
}

// InsertViolation writes a single ledger entry. Fallback path for batches
// that failed the COPY.
func (r *AttemptRepository) InsertViolation(ctx context.Context, v ViolationRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violations (exam_id, student_email, violation_type, details, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		v.ExamID, v.StudentEmail, v.Type, v.Details, v.RecordedAt)
	return err
}

// UpsertAnswer durably autosaves one answer outside the attempt row.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, examID uuid.UUID, studentEmail string, questionID uuid.UUID, answer string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (exam_id, student_email, question_id, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_email, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, saved_at = NOW()`,
		examID, studentEmail, questionID, answer)
	return err
}

// DeleteAnswers removes the autosave rows for a batch of finished attempts.
// Uses UNNEST so one statement covers the whole batch.
func (r *AttemptRepository) DeleteAnswers(ctx context.Context, examIDs []uuid.UUID, studentEmails []string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM attempt_answers AS a
		 USING UNNEST($1::uuid[], $2::text[]) AS t (exam_id, student_email)
		 WHERE a.exam_id = t.exam_id
		   AND a.student_email = t.student_email`,
		examIDs, studentEmails)
	return err
}

// ListAnswers returns the autosaved answers for an attempt keyed by
// question ID. Used to rebuild live state after a server restart.
func (r *AttemptRepository) ListAnswers(ctx context.Context, examID uuid.UUID, studentEmail string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer FROM attempt_answers
		 WHERE exam_id = $1 AND student_email = $2`, examID, studentEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var qid uuid.UUID
		var answer string
		if err := rows.Scan(&qid, &answer); err != nil {
			return nil, err
		}
		answers[qid.String()] = answer
	}
	return answers, rows.Err()
}
