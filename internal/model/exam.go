package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam definition.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the immutable description of an assessable unit. It is owned by
// the authoring side; attempt sessions only ever read it.
type Exam struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	AuthorID        int             `json:"author_id"`
	DurationMinutes int             `json:"duration_minutes"`
	TotalPoints     int             `json:"total_points"`
	PassingScore    float64         `json:"passing_score"`
	Settings        ExamSettings    `json:"settings"`
	Policy          AntiCheatPolicy `json:"anti_cheat_policy"`
	Status          ExamStatus      `json:"status"`
	Questions       []Question      `json:"questions,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ExamSettings holds presentation and attempt-limit options.
type ExamSettings struct {
	ShuffleQuestions bool `json:"shuffle_questions"`
	ShuffleOptions   bool `json:"shuffle_options"`
	MaxAttempts      int  `json:"max_attempts"`
}

// AttemptLimit returns the configured attempt cap, defaulting to 1.
func (s ExamSettings) AttemptLimit() int {
	if s.MaxAttempts < 1 {
		return 1
	}
	return s.MaxAttempts
}

// Deadline returns the hard submission deadline for an attempt started at
// the given instant.
func (e *Exam) Deadline(startedAt time.Time) time.Time {
	return startedAt.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// QuestionByID looks up a question by its stable identity. Grading must use
// this, never presentation order, so per-student shuffling cannot corrupt
// scores.
func (e *Exam) QuestionByID(id uuid.UUID) (*Question, bool) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], true
		}
	}
	return nil, false
}

// SumQuestionPoints returns the sum of per-question points. Publish rejects
// exams where this disagrees with TotalPoints.
func (e *Exam) SumQuestionPoints() int {
	sum := 0
	for i := range e.Questions {
		sum += e.Questions[i].Points
	}
	return sum
}

// CreateExamRequest is the payload for creating a new draft exam.
type CreateExamRequest struct {
	Title           string        `json:"title" binding:"required,min=3,max=255"`
	DurationMinutes int           `json:"duration_minutes" binding:"required,min=1,max=480"`
	PassingScore    float64       `json:"passing_score" binding:"min=0,max=100"`
	Settings        *ExamSettings `json:"settings" binding:"omitempty"`
	Policy          *AntiCheatPolicy `json:"anti_cheat_policy" binding:"omitempty"`
}

// UpdateExamRequest is the payload for updating a draft exam.
type UpdateExamRequest struct {
	Title           string           `json:"title" binding:"omitempty,min=3,max=255"`
	DurationMinutes *int             `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	PassingScore    *float64         `json:"passing_score" binding:"omitempty,min=0,max=100"`
	Settings        *ExamSettings    `json:"settings" binding:"omitempty"`
	Policy          *AntiCheatPolicy `json:"anti_cheat_policy" binding:"omitempty"`
}

// ExamPaper is the Redis-cached payload sent to students (no correct answers).
type ExamPaper struct {
	ExamID       uuid.UUID            `json:"exam_id"`
	Title        string               `json:"title"`
	Duration     int                  `json:"duration_minutes"`
	TotalPoints  int                  `json:"total_points"`
	PassingScore float64              `json:"passing_score"`
	Policy       AntiCheatPolicy      `json:"anti_cheat_policy"`
	Questions    []QuestionForStudent `json:"questions"`
}
