package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/publicq/examguard/internal/model"
)

// ResultRepository handles the denormalized results table. Rows are written
// once at submission and only ever read afterwards.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Insert writes one result row.
func (r *ResultRepository) Insert(ctx context.Context, res *model.ExamResult) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_results
		   (exam_id, exam_title, student_email, score, percentage, passed, submitted_at, time_spent_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ExamID, res.ExamTitle, res.StudentEmail, res.Score,
		res.Percentage, res.Passed, res.SubmittedAt, res.TimeSpentSeconds)
	return err
}

// ListByStudent retrieves a student's result history, most recent first.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentEmail string) ([]model.ExamResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, exam_title, student_email, score, percentage, passed, submitted_at, time_spent_seconds
		 FROM exam_results
		 WHERE student_email = $1
		 ORDER BY submitted_at DESC`, studentEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		var res model.ExamResult
		if err := rows.Scan(&res.ExamID, &res.ExamTitle, &res.StudentEmail, &res.Score,
			&res.Percentage, &res.Passed, &res.SubmittedAt, &res.TimeSpentSeconds); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListByExamPaginated retrieves all results for an exam for the authoring
// side, ordered by score descending.
func (r *ResultRepository) ListByExamPaginated(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.ExamResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_results WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, exam_title, student_email, score, percentage, passed, submitted_at, time_spent_seconds
		 FROM exam_results
		 WHERE exam_id = $1
		 ORDER BY score DESC, submitted_at ASC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		var res model.ExamResult
		if err := rows.Scan(&res.ExamID, &res.ExamTitle, &res.StudentEmail, &res.Score,
			&res.Percentage, &res.Passed, &res.SubmittedAt, &res.TimeSpentSeconds); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}
