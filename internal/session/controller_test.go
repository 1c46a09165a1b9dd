package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publicq/examguard/internal/model"
)

// memStore is an in-memory Store for exercising the controller without any
// database. failViolations simulates a store outage on the violation path.
type memStore struct {
	mu             sync.Mutex
	exams          map[uuid.UUID]*model.Exam
	attempts       map[uuid.UUID]*model.ExamAttempt
	violations     []model.ViolationEvent
	results        []model.ExamResult
	failViolations bool
}

func newMemStore(exams ...*model.Exam) *memStore {
	s := &memStore{
		exams:    make(map[uuid.UUID]*model.Exam),
		attempts: make(map[uuid.UUID]*model.ExamAttempt),
	}
	for _, e := range exams {
		s.exams[e.ID] = e
	}
	return s
}

func (s *memStore) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, ErrExamNotFound
	}
	return e, nil
}

func (s *memStore) GetAttempt(_ context.Context, examID uuid.UUID, email string) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[model.AttemptID(examID, email)]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) CreateOrUpdateAttempt(_ context.Context, a *model.ExamAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *memStore) AppendViolation(_ context.Context, _ uuid.UUID, _ string, v model.ViolationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failViolations {
		return errors.New("store unavailable")
	}
	s.violations = append(s.violations, v)
	return nil
}

func (s *memStore) WriteResult(_ context.Context, r *model.ExamResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, *r)
	return nil
}

func (s *memStore) ListResultsByStudent(_ context.Context, email string) ([]model.ExamResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ExamResult
	for _, r := range s.results {
		if r.StudentEmail == email {
			out = append(out, r)
		}
	}
	return out, nil
}

func testExam() *model.Exam {
	examID := uuid.New()
	q1 := uuid.New()
	q2 := uuid.New()
	return &model.Exam{
		ID:              examID,
		Title:           "Algebra Midterm",
		DurationMinutes: 60,
		TotalPoints:     10,
		PassingScore:    60,
		Status:          model.ExamStatusPublished,
		Policy: model.AntiCheatPolicy{
			BlockTabSwitch: true,
			BlockClipboard: true,
			MaxViolations:  3,
		},
		Questions: []model.Question{
			{ID: q1, ExamID: examID, QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 5},
			{ID: q2, ExamID: examID, QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5},
		},
	}
}

func startController(t *testing.T, store Store, exam *model.Exam) *Controller {
	t.Helper()
	ctrl, err := Start(context.Background(), store, exam.ID, "student@example.com", zerolog.Nop())
	require.NoError(t, err)
	return ctrl
}

func TestStartCreatesInProgressAttempt(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)

	ctrl := startController(t, store, exam)

	require.Equal(t, model.AttemptStatusInProgress, ctrl.Status())
	require.Zero(t, ctrl.ViolationCount())

	// Deterministic identity: one durable record per student per exam.
	persisted, err := store.GetAttempt(context.Background(), exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptID(exam.ID, "student@example.com"), persisted.ID)
	assert.Equal(t, 1, persisted.AttemptNumber)
}

func TestStartUnknownExam(t *testing.T) {
	store := newMemStore()
	_, err := Start(context.Background(), store, uuid.New(), "student@example.com", zerolog.Nop())
	require.ErrorIs(t, err, ErrExamNotFound)
}

func TestStartResumesInProgressAttempt(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)

	first := startController(t, store, exam)
	first.RecordViolation(context.Background(), model.ViolationTabSwitch, "")

	second := startController(t, store, exam)
	assert.Equal(t, 1, second.ViolationCount(), "resume keeps the counter")
	assert.Equal(t, 1, second.Attempt().AttemptNumber)
}

func TestStartRejectsExhaustedAttemptLimit(t *testing.T) {
	exam := testExam() // MaxAttempts defaults to 1
	store := newMemStore(exam)

	ctrl := startController(t, store, exam)
	_, err := ctrl.Submit(context.Background(), nil)
	require.NoError(t, err)

	_, err = Start(context.Background(), store, exam.ID, "student@example.com", zerolog.Nop())
	require.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestStartAllowsRetakeWithinLimit(t *testing.T) {
	exam := testExam()
	exam.Settings.MaxAttempts = 2
	store := newMemStore(exam)

	ctrl := startController(t, store, exam)
	ctrl.RecordViolation(context.Background(), model.ViolationTabSwitch, "")
	_, err := ctrl.Submit(context.Background(), nil)
	require.NoError(t, err)

	retake := startController(t, store, exam)
	attempt := retake.Attempt()
	assert.Equal(t, 2, attempt.AttemptNumber)
	assert.Equal(t, model.AttemptStatusInProgress, attempt.Status)
	assert.Zero(t, attempt.ViolationCount, "retake starts with a clean ledger")
	assert.Empty(t, attempt.Violations)
}

func TestResumeRestoresInProgressAttempt(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)

	first := startController(t, store, exam)
	first.RecordViolation(context.Background(), model.ViolationTabSwitch, "")

	ctrl, err := Resume(context.Background(), store, exam.ID, "student@example.com", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusInProgress, ctrl.Status())
	assert.Equal(t, 1, ctrl.ViolationCount())
	assert.Equal(t, 1, ctrl.Attempt().AttemptNumber)
}

func TestResumeRejectsMissingAttempt(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)

	_, err := Resume(context.Background(), store, exam.ID, "student@example.com", zerolog.Nop())
	require.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestResumeDoesNotConsumeRetake(t *testing.T) {
	exam := testExam()
	exam.Settings.MaxAttempts = 2
	store := newMemStore(exam)

	ctrl := startController(t, store, exam)
	_, err := ctrl.Submit(context.Background(), map[string]string{
		exam.Questions[0].ID.String(): "A",
		exam.Questions[1].ID.String(): "B",
	})
	require.NoError(t, err)

	// A submitted attempt must not be restarted by a resume, even with a
	// retake still available; only an explicit Start advances the attempt.
	_, err = Resume(context.Background(), store, exam.ID, "student@example.com", zerolog.Nop())
	require.ErrorIs(t, err, ErrAlreadySubmitted)

	persisted, err := store.GetAttempt(context.Background(), exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusSubmitted, persisted.Status)
	assert.Equal(t, 1, persisted.AttemptNumber)
	require.NotNil(t, persisted.Score)
	assert.Equal(t, 10.0, *persisted.Score)
}

func TestSaveAnswerDropsUnknownQuestions(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	ctrl.SaveAnswer(exam.Questions[0].ID.String(), "A")
	ctrl.SaveAnswer(uuid.New().String(), "B") // not on this exam
	ctrl.SaveAnswer("not-a-uuid", "C")

	attempt := ctrl.Attempt()
	assert.Equal(t, map[string]string{exam.Questions[0].ID.String(): "A"}, attempt.Answers)
}

func TestViolationCounterMatchesEvents(t *testing.T) {
	exam := testExam()
	exam.Policy.MaxViolations = 10
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	types := []model.ViolationType{
		model.ViolationTabSwitch,
		model.ViolationCopyPaste,
		model.ViolationWindowBlur,
		model.ViolationKeyboardShortcut,
	}
	for i, vt := range types {
		count, terminated := ctrl.RecordViolation(context.Background(), vt, "")
		assert.Equal(t, i+1, count)
		assert.False(t, terminated)
	}
	assert.Len(t, store.violations, len(types), "every event written through")
}

func TestTerminationAtThreshold(t *testing.T) {
	exam := testExam() // MaxViolations: 3
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	terminations := 0
	ctrl.OnTerminate(func() { terminations++ })

	ctrl.RecordViolation(context.Background(), model.ViolationTabSwitch, "")
	ctrl.RecordViolation(context.Background(), model.ViolationCopyPaste, "")
	assert.Equal(t, model.AttemptStatusInProgress, ctrl.Status())

	count, terminated := ctrl.RecordViolation(context.Background(), model.ViolationTabSwitch, "")
	assert.Equal(t, 3, count)
	assert.True(t, terminated)
	assert.Equal(t, model.AttemptStatusTerminated, ctrl.Status())
	assert.Equal(t, 1, terminations)

	// No submission accepted after termination.
	_, err := ctrl.Submit(context.Background(), map[string]string{})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestTerminationIsIdempotent(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	terminations := 0
	ctrl.OnTerminate(func() { terminations++ })

	for i := 0; i < 10; i++ {
		ctrl.RecordViolation(context.Background(), model.ViolationTabSwitch, "")
	}

	assert.Equal(t, model.AttemptStatusTerminated, ctrl.Status())
	assert.Equal(t, 1, terminations, "side effect fires exactly once")
	assert.Equal(t, 3, ctrl.ViolationCount(), "late events do not advance the counter")
}

func TestFullscreenFailureDoesNotCount(t *testing.T) {
	exam := testExam()
	exam.Policy.FullscreenRequired = true
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	count, terminated := ctrl.RecordViolation(context.Background(), model.ViolationFullscreenFailed, "request denied")
	assert.Zero(t, count)
	assert.False(t, terminated)
	assert.Equal(t, model.AttemptStatusInProgress, ctrl.Status())
	assert.Len(t, store.violations, 1, "still recorded in the ledger")
}

func TestFullscreenFailureCountsWhenConfigured(t *testing.T) {
	exam := testExam()
	exam.Policy.CountFullscreenFailure = true
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	count, _ := ctrl.RecordViolation(context.Background(), model.ViolationFullscreenFailed, "")
	assert.Equal(t, 1, count)
}

func TestViolationStoreOutageDoesNotBlockTermination(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)
	store.failViolations = true

	for i := 0; i < 3; i++ {
		ctrl.RecordViolation(context.Background(), model.ViolationTabSwitch, "")
	}

	assert.Equal(t, model.AttemptStatusTerminated, ctrl.Status(),
		"local enforcement proceeds even when the store is down")
	assert.Empty(t, store.violations)
}

func TestSubmitGradesAndWritesResultOnce(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	answers := map[string]string{
		exam.Questions[0].ID.String(): "A",
		exam.Questions[1].ID.String(): "X",
	}
	result, err := ctrl.Submit(context.Background(), answers)
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.Score)
	assert.Equal(t, 50.0, result.Percentage)
	assert.False(t, result.Passed) // passing score is 60
	require.Len(t, store.results, 1)

	// Second submit must fail and must not double-write.
	_, err = ctrl.Submit(context.Background(), answers)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Len(t, store.results, 1)
}

func TestSubmitPerfectScore(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	result, err := ctrl.Submit(context.Background(), map[string]string{
		exam.Questions[0].ID.String(): "A",
		exam.Questions[1].ID.String(): "B",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(exam.TotalPoints), result.Score)
	assert.Equal(t, 100.0, result.Percentage)
	assert.True(t, result.Passed)
}

func TestSubmitAfterDeadlineTimesOut(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	ctrl.clock = func() time.Time {
		return time.Now().Add(time.Duration(exam.DurationMinutes+1) * time.Minute)
	}

	_, err := ctrl.Submit(context.Background(), nil)
	require.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Equal(t, model.AttemptStatusTimedOut, ctrl.Status())
	assert.Empty(t, store.results)
}

func TestExplicitTerminate(t *testing.T) {
	exam := testExam()
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	fired := 0
	ctrl.OnTerminate(func() { fired++ })

	ctrl.Terminate(context.Background())
	ctrl.Terminate(context.Background())

	assert.Equal(t, model.AttemptStatusTerminated, ctrl.Status())
	assert.Equal(t, 1, fired)

	persisted, err := store.GetAttempt(context.Background(), exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusTerminated, persisted.Status)
}

func TestOnViolationCallback(t *testing.T) {
	exam := testExam()
	exam.Policy.MaxViolations = 5
	store := newMemStore(exam)
	ctrl := startController(t, store, exam)

	var seen []model.ViolationType
	var counts []int
	ctrl.OnViolation(func(ev model.ViolationEvent, count int) {
		seen = append(seen, ev.Type)
		counts = append(counts, count)
	})

	ctrl.RecordViolation(context.Background(), model.ViolationTabSwitch, "")
	ctrl.RecordViolation(context.Background(), model.ViolationDevTools, "")

	assert.Equal(t, []model.ViolationType{model.ViolationTabSwitch, model.ViolationDevTools}, seen)
	assert.Equal(t, []int{1, 2}, counts)
}
