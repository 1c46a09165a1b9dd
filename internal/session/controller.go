package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/publicq/examguard/internal/model"
)

// Controller owns one attempt's lifecycle and violation accounting: it
// appends to the ledger, enforces the termination threshold, and mediates
// all writes to the Store.
//
// Operations are serialized by an internal mutex, so a server-side caller
// may invoke them from concurrent request goroutines for the same attempt.
// The in-memory ledger is authoritative for the termination decision; the
// durable copy is best-effort and may lag under persistent store failure.
type Controller struct {
	mu      sync.Mutex
	exam    *model.Exam
	attempt *model.ExamAttempt
	store   Store
	log     zerolog.Logger
	clock   func() time.Time

	// terminateFired guards the termination side effect: it runs exactly
	// once, no matter how many late violations arrive.
	terminateFired bool

	onViolation func(model.ViolationEvent, int)
	onTerminate func()
}

// Start creates or resumes an attempt and returns its controller.
//
// An existing in-progress attempt is resumed with its ledger and counter
// intact. A terminal attempt is restarted (attempt number advances) while
// the exam's attempt limit allows; otherwise Start fails with
// ErrAlreadySubmitted. StartedAt is set on creation and restart only.
func Start(ctx context.Context, store Store, examID uuid.UUID, studentEmail string, log zerolog.Logger) (*Controller, error) {
	exam, err := store.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	attempt, err := store.GetAttempt(ctx, examID, studentEmail)
	switch {
	case errors.Is(err, ErrAttemptNotFound):
		attempt = model.NewExamAttempt(examID, studentEmail)
	case err != nil:
		return nil, fmt.Errorf("get attempt: %w", err)
	case attempt.Status.Terminal():
		if attempt.AttemptNumber >= exam.Settings.AttemptLimit() {
			return nil, ErrAlreadySubmitted
		}
		attempt.Restart()
	}

	// Starting must be durable; unlike violation writes this failure is
	// surfaced to the caller.
	if err := store.CreateOrUpdateAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("persist attempt: %w", err)
	}

	return newController(exam, attempt, store, log), nil
}

// Resume rebuilds the controller for an existing in-progress attempt, for
// read paths that must never create, restart, or otherwise advance an
// attempt. A missing attempt fails with ErrAttemptNotFound and a terminal
// one with ErrAlreadySubmitted; only an explicit Start may consume a
// retake.
func Resume(ctx context.Context, store Store, examID uuid.UUID, studentEmail string, log zerolog.Logger) (*Controller, error) {
	exam, err := store.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	attempt, err := store.GetAttempt(ctx, examID, studentEmail)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status.Terminal() {
		return nil, ErrAlreadySubmitted
	}

	return newController(exam, attempt, store, log), nil
}

func newController(exam *model.Exam, attempt *model.ExamAttempt, store Store, log zerolog.Logger) *Controller {
	return &Controller{
		exam:    exam,
		attempt: attempt,
		store:   store,
		clock:   time.Now,
		log: log.With().
			Str("exam_id", exam.ID.String()).
			Str("student", attempt.StudentEmail).
			Logger(),
	}
}

// OnViolation registers a callback fired after every recorded violation
// with the event and the updated countable total.
func (c *Controller) OnViolation(fn func(model.ViolationEvent, int)) {
	c.mu.Lock()
	c.onViolation = fn
	c.mu.Unlock()
}

// OnTerminate registers the termination side effect. It fires at most once.
func (c *Controller) OnTerminate(fn func()) {
	c.mu.Lock()
	c.onTerminate = fn
	c.mu.Unlock()
}

// Exam returns the definition this controller was started against.
func (c *Controller) Exam() *model.Exam { return c.exam }

// Status returns the current lifecycle status.
func (c *Controller) Status() model.AttemptStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.Status
}

// ViolationCount returns the countable violation total.
func (c *Controller) ViolationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.ViolationCount
}

// Attempt returns a snapshot copy of the attempt record.
func (c *Controller) Attempt() model.ExamAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := *c.attempt
	snap.Violations = append([]model.ViolationEvent(nil), c.attempt.Violations...)
	snap.Answers = make(map[string]string, len(c.attempt.Answers))
	for k, v := range c.attempt.Answers {
		snap.Answers[k] = v
	}
	return snap
}

// RecordViolation appends a ledger entry and advances the countable total.
// When the total reaches the policy threshold the attempt transitions to
// terminated and the termination side effect fires exactly once.
//
// Calls on a terminal attempt are a no-op, not an error: the UI may still
// deliver late events during its own teardown. The store write is
// best-effort; failures are logged and never block the local transition.
func (c *Controller) RecordViolation(ctx context.Context, t model.ViolationType, details string) (count int, terminated bool) {
	c.mu.Lock()

	if c.attempt.Status.Terminal() {
		count, terminated = c.attempt.ViolationCount, c.attempt.Status == model.AttemptStatusTerminated
		c.mu.Unlock()
		return count, terminated
	}

	event := model.NewViolationEvent(t, details)
	c.attempt.Violations = append(c.attempt.Violations, event)

	if c.exam.Policy.Counts(t) {
		c.attempt.ViolationCount++
	}
	count = c.attempt.ViolationCount

	if err := c.store.AppendViolation(ctx, c.attempt.ExamID, c.attempt.StudentEmail, event); err != nil {
		// Availability over durability: the session continues and the
		// in-memory ledger stays authoritative.
		c.log.Warn().Err(err).Str("type", string(t)).Msg("Violation write failed, continuing locally")
	}

	var fireTerminate func()
	if count >= c.exam.Policy.Threshold() {
		c.attempt.Status = model.AttemptStatusTerminated
		terminated = true
		if !c.terminateFired {
			c.terminateFired = true
			fireTerminate = c.onTerminate
		}
		if err := c.store.CreateOrUpdateAttempt(ctx, c.attempt); err != nil {
			c.log.Error().Err(err).Msg("Failed to persist terminated attempt")
		}
	}
	onViolation := c.onViolation
	c.mu.Unlock()

	if onViolation != nil {
		onViolation(event, count)
	}
	if fireTerminate != nil {
		c.log.Warn().Int("violations", count).Msg("Attempt terminated by violation threshold")
		fireTerminate()
	}
	return count, terminated
}

// SaveAnswer records a single answer keyed by question ID. Valid only while
// in progress; late saves and answers to questions not on this exam are
// dropped silently like late violations.
func (c *Controller) SaveAnswer(questionID, answer string) {
	qid, err := uuid.Parse(questionID)
	if err != nil {
		return
	}
	if _, ok := c.exam.QuestionByID(qid); !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt.Status.Terminal() {
		return
	}
	c.attempt.Answers[questionID] = answer
}

// Submit grades the answers, finalizes the attempt, and writes both the
// attempt and its derived result. Answers are keyed by question ID; the
// grader never consults presentation order, so shuffled papers grade
// identically to canonical ones.
//
// Submit fails with ErrInvalidState unless the attempt is in progress, and
// with ErrDeadlineExceeded past the duration deadline (the attempt then
// auto-transitions to timed-out).
func (c *Controller) Submit(ctx context.Context, answers map[string]string) (*model.ExamResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrInvalidState
	}

	now := c.clock().UTC()
	if now.After(c.exam.Deadline(c.attempt.StartedAt)) {
		c.attempt.Status = model.AttemptStatusTimedOut
		if err := c.store.CreateOrUpdateAttempt(ctx, c.attempt); err != nil {
			c.log.Error().Err(err).Msg("Failed to persist timed-out attempt")
		}
		return nil, ErrDeadlineExceeded
	}

	for id, ans := range answers {
		c.attempt.Answers[id] = ans
	}

	score, percentage, passed := Grade(c.exam, c.attempt.Answers)

	c.attempt.Status = model.AttemptStatusSubmitted
	c.attempt.SubmittedAt = &now
	c.attempt.Score = &score
	c.attempt.Percentage = &percentage
	c.attempt.Passed = &passed

	result := &model.ExamResult{
		ExamID:           c.exam.ID,
		ExamTitle:        c.exam.Title,
		StudentEmail:     c.attempt.StudentEmail,
		Score:            score,
		Percentage:       percentage,
		Passed:           passed,
		SubmittedAt:      now,
		TimeSpentSeconds: int64(now.Sub(c.attempt.StartedAt).Seconds()),
	}

	// Submission is awaited: the caller must know the final outcome.
	if err := c.store.CreateOrUpdateAttempt(ctx, c.attempt); err != nil {
		return nil, fmt.Errorf("persist attempt: %w", err)
	}
	if err := c.store.WriteResult(ctx, result); err != nil {
		return nil, fmt.Errorf("write result: %w", err)
	}

	c.log.Info().
		Float64("score", score).
		Float64("percentage", percentage).
		Bool("passed", passed).
		Msg("Attempt submitted and graded")

	return result, nil
}

// Terminate forces the attempt into the terminated state, for explicit
// administrative termination. A no-op on already-terminal attempts.
func (c *Controller) Terminate(ctx context.Context) {
	c.mu.Lock()
	if c.attempt.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.attempt.Status = model.AttemptStatusTerminated
	var fire func()
	if !c.terminateFired {
		c.terminateFired = true
		fire = c.onTerminate
	}
	if err := c.store.CreateOrUpdateAttempt(ctx, c.attempt); err != nil {
		c.log.Error().Err(err).Msg("Failed to persist terminated attempt")
	}
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}
