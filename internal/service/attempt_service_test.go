package service

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publicq/examguard/internal/lockdown"
	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/session"
)

// fakeStore is an in-memory session.Store for exercising the attempt
// service without PostgreSQL.
type fakeStore struct {
	mu       sync.Mutex
	exams    map[uuid.UUID]*model.Exam
	attempts map[uuid.UUID]*model.ExamAttempt
	results  []model.ExamResult
}

func newFakeStore(exams ...*model.Exam) *fakeStore {
	s := &fakeStore{
		exams:    make(map[uuid.UUID]*model.Exam),
		attempts: make(map[uuid.UUID]*model.ExamAttempt),
	}
	for _, e := range exams {
		s.exams[e.ID] = e
	}
	return s
}

func (s *fakeStore) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exams[id]
	if !ok {
		return nil, session.ErrExamNotFound
	}
	return e, nil
}

func (s *fakeStore) GetAttempt(_ context.Context, examID uuid.UUID, email string) (*model.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[model.AttemptID(examID, email)]
	if !ok {
		return nil, session.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) CreateOrUpdateAttempt(_ context.Context, a *model.ExamAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

func (s *fakeStore) AppendViolation(_ context.Context, _ uuid.UUID, _ string, _ model.ViolationEvent) error {
	return nil
}

func (s *fakeStore) WriteResult(_ context.Context, r *model.ExamResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, *r)
	return nil
}

func (s *fakeStore) ListResultsByStudent(_ context.Context, email string) ([]model.ExamResult, error) {
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

func portalTestExam() *model.Exam {
	examID := uuid.New()
	q1 := uuid.New()
	q2 := uuid.New()
	return &model.Exam{
		ID:              examID,
		Title:           "Chemistry Final",
		DurationMinutes: 45,
		TotalPoints:     10,
		PassingScore:    60,
		Status:          model.ExamStatusPublished,
		Policy: model.AntiCheatPolicy{
			BlockTabSwitch: true,
			MaxViolations:  3,
		},
		Questions: []model.Question{
			{ID: q1, ExamID: examID, QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 5},
			{ID: q2, ExamID: examID, QuestionType: model.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5},
		},
	}
}

func newTestAttemptService(t *testing.T, store session.Store) *AttemptService {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewAttemptService(store, nil, nil, nil, rdb, zerolog.Nop())
}

func TestConcurrentStartsShareOneAttempt(t *testing.T) {
	exam := portalTestExam()
	store := newFakeStore(exam)
	svc := newTestAttemptService(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(ctx, exam.ID, "student@example.com")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	attempt, err := store.GetAttempt(ctx, exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, attempt.AttemptNumber)
	assert.Equal(t, model.AttemptStatusInProgress, attempt.Status)

	// All starts share one controller, so its counter is the counter.
	hidden := lockdown.Signal{Kind: lockdown.SignalVisibilityChanged, Hidden: true}
	for i := 0; i < 3; i++ {
		_, _, _, err := svc.HandleSignal(ctx, exam.ID, "student@example.com", hidden)
		require.NoError(t, err)
	}
	attempt, err = store.GetAttempt(ctx, exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusTerminated, attempt.Status)
	assert.Equal(t, 3, attempt.ViolationCount)
}

func TestReadAfterSubmitDoesNotConsumeRetake(t *testing.T) {
	exam := portalTestExam()
	exam.Settings.MaxAttempts = 2
	store := newFakeStore(exam)
	svc := newTestAttemptService(t, store)
	ctx := context.Background()

	_, err := svc.Start(ctx, exam.ID, "student@example.com")
	require.NoError(t, err)

	result, err := svc.Submit(ctx, exam.ID, "student@example.com", map[string]string{
		exam.Questions[0].ID.String(): "A",
		exam.Questions[1].ID.String(): "B",
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.Score)

	// A state read after submission must surface the terminal outcome, not
	// silently begin attempt two.
	_, err = svc.State(ctx, exam.ID, "student@example.com")
	require.ErrorIs(t, err, session.ErrAlreadySubmitted)

	attempt, err := store.GetAttempt(ctx, exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusSubmitted, attempt.Status)
	assert.Equal(t, 1, attempt.AttemptNumber)
	require.NotNil(t, attempt.Score)
	assert.Equal(t, 10.0, *attempt.Score)

	// The retake stays available to an explicit start.
	state, err := svc.Start(ctx, exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusInProgress, state.Status)

	attempt, err = store.GetAttempt(ctx, exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, attempt.AttemptNumber)
}

func TestTerminateAfterSubmitIsNoOp(t *testing.T) {
	exam := portalTestExam()
	store := newFakeStore(exam)
	svc := newTestAttemptService(t, store)
	ctx := context.Background()

	_, err := svc.Start(ctx, exam.ID, "student@example.com")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, exam.ID, "student@example.com", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Terminate(ctx, exam.ID, "student@example.com"))

	attempt, err := store.GetAttempt(ctx, exam.ID, "student@example.com")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptStatusSubmitted, attempt.Status, "submitted outcome survives a late terminate")
}
