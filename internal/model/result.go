package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamResult is the denormalized summary of a completed attempt, written
// exactly once at submission into a query-optimized table. The result read
// path never touches the full attempt record.
type ExamResult struct {
	ExamID           uuid.UUID `json:"exam_id"`
	ExamTitle        string    `json:"exam_title"`
	StudentEmail     string    `json:"student_email"`
	Score            float64   `json:"score"`
	Percentage       float64   `json:"percentage"`
	Passed           bool      `json:"passed"`
	SubmittedAt      time.Time `json:"submitted_at_utc"`
	TimeSpentSeconds int64     `json:"time_spent_seconds"`
}
