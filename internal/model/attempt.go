package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. submitted, timed-out
// and terminated are terminal.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in-progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusTimedOut   AttemptStatus = "timed-out"
	AttemptStatusTerminated AttemptStatus = "terminated"
)

// Terminal reports whether the status admits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusTimedOut || s == AttemptStatusTerminated
}

// attemptNamespace seeds deterministic attempt IDs (UUIDv5).
var attemptNamespace = uuid.MustParse("8f2b9a4e-31c7-4f5d-9e06-2a7d54c1b8a3")

// AttemptID derives the attempt identity from exam and student. The same
// pair always maps to the same UUID, so at most one attempt record exists
// per student per exam.
func AttemptID(examID uuid.UUID, studentEmail string) uuid.UUID {
	email := strings.ToLower(strings.TrimSpace(studentEmail))
	return uuid.NewSHA1(attemptNamespace, []byte(examID.String()+":"+email))
}

// ExamAttempt is one student's pass at an exam, from start to terminal
// state. Attempts are never physically deleted; they are retained for audit
// and reporting.
type ExamAttempt struct {
	ID             uuid.UUID         `json:"id"`
	ExamID         uuid.UUID         `json:"exam_id"`
	StudentEmail   string            `json:"student_email"`
	AttemptNumber  int               `json:"attempt_number"`
	Answers        map[string]string `json:"answers,omitempty"`
	Violations     []ViolationEvent  `json:"violations,omitempty"`
	ViolationCount int               `json:"violation_count"`
	Status         AttemptStatus     `json:"status"`
	StartedAt      time.Time         `json:"started_at_utc"`
	SubmittedAt    *time.Time        `json:"submitted_at_utc,omitempty"`
	Score          *float64          `json:"score,omitempty"`
	Percentage     *float64          `json:"percentage,omitempty"`
	Passed         *bool             `json:"passed,omitempty"`
}

// NewExamAttempt creates a first attempt in the in-progress state.
func NewExamAttempt(examID uuid.UUID, studentEmail string) *ExamAttempt {
	return &ExamAttempt{
		ID:            AttemptID(examID, studentEmail),
		ExamID:        examID,
		StudentEmail:  strings.ToLower(strings.TrimSpace(studentEmail)),
		AttemptNumber: 1,
		Answers:       make(map[string]string),
		Status:        AttemptStatusInProgress,
		StartedAt:     time.Now().UTC(),
	}
}

// Restart resets the record for a retake: the ledger, answers and grades are
// cleared, the attempt number advances, and the clock starts over. The
// deterministic ID is retained.
func (a *ExamAttempt) Restart() {
	a.AttemptNumber++
	a.Answers = make(map[string]string)
	a.Violations = nil
	a.ViolationCount = 0
	a.Status = AttemptStatusInProgress
	a.StartedAt = time.Now().UTC()
	a.SubmittedAt = nil
	a.Score = nil
	a.Percentage = nil
	a.Passed = nil
}

// AttemptState is the reload payload for an in-progress attempt: autosaved
// answers plus the remaining seconds on the clock.
type AttemptState struct {
	ExamID           uuid.UUID         `json:"exam_id"`
	StudentEmail     string            `json:"student_email"`
	Status           AttemptStatus     `json:"status"`
	ViolationCount   int               `json:"violation_count"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds float64           `json:"remaining_seconds"`
}

// SubmitAttemptRequest carries the final answer map, keyed by question ID.
type SubmitAttemptRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}
