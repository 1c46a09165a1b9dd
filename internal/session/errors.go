package session

import "errors"

// Lifecycle and lookup errors surfaced to callers. Store-availability
// failures on the violation path are deliberately NOT here: they are
// recovered locally (logged, session continues) and never block the
// termination decision.
var (
	// ErrInvalidState is returned when an operation is attempted outside
	// its valid lifecycle state, e.g. Submit after termination.
	ErrInvalidState = errors.New("attempt is not in progress")

	// ErrAlreadySubmitted is returned by Start when a prior attempt is
	// terminal and the exam's attempt limit has been reached.
	ErrAlreadySubmitted = errors.New("attempt limit reached")

	// ErrDeadlineExceeded is returned by Submit after the exam duration
	// has elapsed; the attempt auto-transitions to timed-out.
	ErrDeadlineExceeded = errors.New("exam duration elapsed")

	// ErrExamNotFound reports a referential lookup failure.
	ErrExamNotFound = errors.New("exam not found")

	// ErrAttemptNotFound reports a missing attempt record.
	ErrAttemptNotFound = errors.New("attempt not found")
)
