package session

import "github.com/publicq/examguard/internal/model"

// Grade computes the automated score for a submitted answer map.
//
// Answers are keyed by stable question ID. A question scores its full
// points when the submitted answer exactly equals its answer key (string
// equality); everything else scores zero. Questions without a key (essays,
// ungraded short answers) never contribute — manual grading is outside the
// automated path.
//
// The percentage denominator is the exam's TotalPoints, which publish-time
// validation guarantees equals the per-question sum. An exam with zero
// total points grades to 0%, not a division error.
func Grade(exam *model.Exam, answers map[string]string) (score, percentage float64, passed bool) {
	for i := range exam.Questions {
		q := &exam.Questions[i]
		if !q.AutoGradable() {
			continue
		}
		if submitted, ok := answers[q.ID.String()]; ok && submitted == q.CorrectAnswer {
			score += float64(q.Points)
		}
	}

	if exam.TotalPoints > 0 {
		percentage = score / float64(exam.TotalPoints) * 100
	}
	passed = percentage >= exam.PassingScore
	return score, percentage, passed
}
