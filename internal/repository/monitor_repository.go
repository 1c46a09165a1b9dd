package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/publicq/examguard/internal/model"
)

// MonitorRepository provides data access for the live exam monitoring
// feature: who is in an exam right now and how they are doing.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetActiveStudents returns the emails of all students with an in-progress
// attempt on the given exam.
func (r *MonitorRepository) GetActiveStudents(ctx context.Context, examID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_email FROM exam_attempts
		 WHERE exam_id = $1 AND status = $2`,
		examID, model.AttemptStatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// GetAnsweredCounts returns, per student, how many questions they have an
// autosaved answer for in the given exam.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_email, COUNT(*)
		 FROM attempt_answers
		 WHERE exam_id = $1
		 GROUP BY student_email`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var email string
		var count int64
		if err := rows.Scan(&email, &count); err != nil {
			return nil, err
		}
		counts[email] = count
	}
	return counts, rows.Err()
}

// GetViolationCounts returns the number of durable ledger entries recorded
// per student in the given exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_email, COUNT(*)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_email`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var email string
		var count int64
		if err := rows.Scan(&email, &count); err != nil {
			return nil, err
		}
		counts[email] = count
	}
	return counts, rows.Err()
}

// ListRecentViolations returns the latest durable ledger entries for an
// exam, newest first, for the proctor detail view.
func (r *MonitorRepository) ListRecentViolations(ctx context.Context, examID uuid.UUID, limit int) ([]ViolationRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, student_email, violation_type, details, recorded_at
		 FROM exam_violations
		 WHERE exam_id = $1
		 ORDER BY recorded_at DESC
		 LIMIT $2`, examID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ViolationRow
	for rows.Next() {
		var v ViolationRow
		if err := rows.Scan(&v.ExamID, &v.StudentEmail, &v.Type, &v.Details, &v.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
