package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/publicq/examguard/internal/model"
)

func gradeExam(questions ...model.Question) *model.Exam {
	var total int
	for _, q := range questions {
		total += q.Points
	}
	return &model.Exam{
		ID:           uuid.New(),
		TotalPoints:  total,
		PassingScore: 60,
		Questions:    questions,
	}
}

func TestGradeAllCorrect(t *testing.T) {
	exam := gradeExam(
		model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 4},
		model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeTrueFalse, CorrectAnswer: "true", Points: 6},
	)
	answers := map[string]string{
		exam.Questions[0].ID.String(): "B",
		exam.Questions[1].ID.String(): "true",
	}

	score, percentage, passed := Grade(exam, answers)
	assert.Equal(t, 10.0, score)
	assert.Equal(t, 100.0, percentage)
	assert.True(t, passed)
}

func TestGradePartial(t *testing.T) {
	exam := gradeExam(
		model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 5},
		model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "C", Points: 5},
	)
	answers := map[string]string{
		exam.Questions[0].ID.String(): "A",
		exam.Questions[1].ID.String(): "D",
	}

	score, percentage, passed := Grade(exam, answers)
	assert.Equal(t, 5.0, score)
	assert.Equal(t, 50.0, percentage)
	assert.False(t, passed)
}

func TestGradeExactStringEquality(t *testing.T) {
	q := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeShortAnswer, CorrectAnswer: "Paris", Points: 5}
	exam := gradeExam(q)

	for _, submitted := range []string{"paris", " Paris", "Paris "} {
		score, _, _ := Grade(exam, map[string]string{q.ID.String(): submitted})
		assert.Zero(t, score, "%q must not match the key", submitted)
	}
}

func TestGradeSkipsEssaysAndKeylessQuestions(t *testing.T) {
	essay := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeEssay, CorrectAnswer: "anything", Points: 10}
	keyless := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeShortAnswer, Points: 5}
	mc := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 5}
	exam := gradeExam(essay, keyless, mc)

	score, _, _ := Grade(exam, map[string]string{
		essay.ID.String():   "anything",
		keyless.ID.String(): "whatever",
		mc.ID.String():      "A",
	})
	assert.Equal(t, 5.0, score, "only the auto-gradable question contributes")
}

func TestGradeIgnoresPresentationOrder(t *testing.T) {
	q1 := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 3}
	q2 := model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 7}
	answers := map[string]string{
		q1.ID.String(): "A",
		q2.ID.String(): "B",
	}

	canonical := gradeExam(q1, q2)
	shuffled := gradeExam(q2, q1)

	s1, p1, _ := Grade(canonical, answers)
	s2, p2, _ := Grade(shuffled, answers)
	assert.Equal(t, s1, s2)
	assert.Equal(t, p1, p2)
}

func TestGradeZeroTotalPoints(t *testing.T) {
	exam := gradeExam()

	score, percentage, passed := Grade(exam, nil)
	assert.Zero(t, score)
	assert.Zero(t, percentage)
	assert.False(t, passed)
}

func TestGradeUnansweredScoresZero(t *testing.T) {
	exam := gradeExam(
		model.Question{ID: uuid.New(), QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 10},
	)
	score, percentage, passed := Grade(exam, map[string]string{})
	assert.Zero(t, score)
	assert.Zero(t, percentage)
	assert.False(t, passed)
}
