package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/publicq/examguard/internal/config"
	"github.com/publicq/examguard/internal/lockdown"
	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/repository"
	"github.com/publicq/examguard/internal/session"
	"github.com/publicq/examguard/internal/worker"
)

// AttemptService owns the registry of live attempt controllers. Each
// in-progress attempt has at most one controller in memory; after a server
// restart controllers for in-progress attempts are rebuilt lazily from the
// durable attempt row.
type AttemptService struct {
	store       session.Store
	attemptRepo *repository.AttemptRepository
	examRepo    *repository.ExamRepository
	examService *ExamService
	rdb         *redis.Client
	log         zerolog.Logger

	mu   sync.Mutex
	live map[uuid.UUID]*session.Monitor
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	store session.Store,
	attemptRepo *repository.AttemptRepository,
	examRepo *repository.ExamRepository,
	examService *ExamService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		store:       store,
		attemptRepo: attemptRepo,
		examRepo:    examRepo,
		examService: examService,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// LobbyStatus represents the concrete state of an exam in the lobby.
type LobbyStatus string

const (
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
)

// LobbyExam is an exam as displayed in the student lobby.
type LobbyExam struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	TotalPoints     int                  `json:"total_points"`
	PassingScore    float64              `json:"passing_score"`
	LobbyStatus     LobbyStatus          `json:"lobby_status"`
	AttemptStatus   *model.AttemptStatus `json:"attempt_status,omitempty"`
	Score           *float64             `json:"score,omitempty"`
	Passed          *bool                `json:"passed,omitempty"`
}

// Lobby returns the published exams with the student's attempt state
// overlaid.
func (s *AttemptService) Lobby(ctx context.Context, studentEmail string) ([]LobbyExam, error) {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}

	lobby := make([]LobbyExam, 0, len(exams))
	for i := range exams {
		e := &exams[i]
		entry := LobbyExam{
			ExamID:          e.ID,
			Title:           e.Title,
			DurationMinutes: e.DurationMinutes,
			TotalPoints:     e.TotalPoints,
			PassingScore:    e.PassingScore,
			LobbyStatus:     LobbyStatusAvailable,
		}

		attempt, err := s.attemptRepo.GetByExamAndStudent(ctx, e.ID, studentEmail)
		if err == nil {
			entry.AttemptStatus = &attempt.Status
			entry.Score = attempt.Score
			entry.Passed = attempt.Passed
			switch {
			case attempt.Status == model.AttemptStatusInProgress:
				entry.LobbyStatus = LobbyStatusInProgress
			case attempt.AttemptNumber < e.Settings.AttemptLimit():
				// Retake still available.
				entry.LobbyStatus = LobbyStatusAvailable
			default:
				entry.LobbyStatus = LobbyStatusCompleted
			}
		} else if !errors.Is(err, session.ErrAttemptNotFound) {
			return nil, fmt.Errorf("get attempt: %w", err)
		}

		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// Start creates or resumes the attempt and registers its live controller.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.AttemptState, error) {
	attemptID := model.AttemptID(examID, studentEmail)

	// The registry lock is held across lookup and build so concurrent
	// starts for the same attempt share one controller instead of each
	// constructing their own.
	s.mu.Lock()
	mon, ok := s.live[attemptID]
	if !ok || mon.Controller().Status().Terminal() {
		ctrl, err := session.Start(ctx, s.store, examID, studentEmail, s.log)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		mon = session.NewMonitor(ctrl)
		s.wireEvents(examID, studentEmail, ctrl)
		if s.live == nil {
			s.live = make(map[uuid.UUID]*session.Monitor)
		}
		s.live[attemptID] = mon
	}
	s.mu.Unlock()

	attempt := mon.Controller().Attempt()

	// Cache live markers so the portal can self-heal after a refresh.
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.StudentActiveExamKey(studentEmail), examID.String(), 0)
	pipe.Set(ctx, config.CacheKey.AttemptStateKey(examID.String(), studentEmail),
		attempt.StartedAt.Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache attempt markers")
	}

	s.publish(ctx, examID, map[string]interface{}{
		"type":           "joined",
		"student_email":  studentEmail,
		"attempt_number": attempt.AttemptNumber,
	})

	return s.stateFromAttempt(ctx, mon.Controller().Exam(), &attempt)
}

// wireEvents connects controller callbacks to the live monitor channel.
func (s *AttemptService) wireEvents(examID uuid.UUID, studentEmail string, ctrl *session.Controller) {
	ctrl.OnViolation(func(ev model.ViolationEvent, count int) {
		s.publish(context.Background(), examID, map[string]interface{}{
			"type":            "violation",
			"student_email":   studentEmail,
			"violation_type":  string(ev.Type),
			"violation_count": count,
		})
	})
	ctrl.OnTerminate(func() {
		s.publish(context.Background(), examID, map[string]interface{}{
			"type":          "terminated",
			"student_email": studentEmail,
		})
	})
}

// monitor returns the live monitor for an attempt, rebuilding it from the
// durable row when the process has restarted since Start. The rebuild is
// resume-only: a pure read must never restart a finished attempt or
// consume a retake, so terminal rows surface session.ErrAlreadySubmitted
// here and a fresh start stays an explicit Start call.
func (s *AttemptService) monitor(ctx context.Context, examID uuid.UUID, studentEmail string) (*session.Monitor, error) {
	attemptID := model.AttemptID(examID, studentEmail)

	s.mu.Lock()
	defer s.mu.Unlock()
	if mon, ok := s.live[attemptID]; ok {
		return mon, nil
	}

	ctrl, err := session.Resume(ctx, s.store, examID, studentEmail, s.log)
	if err != nil {
		return nil, err
	}

	// Fold durably autosaved answers back into the rebuilt ledger in case
	// the Redis buffer was lost along with the process.
	if answers, err := s.attemptRepo.ListAnswers(ctx, examID, studentEmail); err == nil {
		for qid, ans := range answers {
			ctrl.SaveAnswer(qid, ans)
		}
	}

	mon := session.NewMonitor(ctrl)
	s.wireEvents(examID, studentEmail, ctrl)
	if s.live == nil {
		s.live = make(map[uuid.UUID]*session.Monitor)
	}
	s.live[attemptID] = mon
	return mon, nil
}

// Paper returns the cached exam paper, shuffled per attempt when the exam
// asks for it. The shuffle is seeded by the deterministic attempt ID so a
// reload never reorders a student's paper.
func (s *AttemptService) Paper(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.ExamPaper, error) {
	mon, err := s.monitor(ctx, examID, studentEmail)
	if err != nil {
		return nil, err
	}
	if mon.Controller().Status() != model.AttemptStatusInProgress {
		return nil, session.ErrInvalidState
	}

	paper, err := s.examService.GetExamPaper(ctx, examID)
	if err != nil {
		return nil, err
	}

	exam := mon.Controller().Exam()
	if exam.Settings.ShuffleQuestions || exam.Settings.ShuffleOptions {
		shufflePaper(paper, model.AttemptID(examID, studentEmail), exam.Settings)
	}
	return paper, nil
}

// shufflePaper reorders questions (and option arrays) with a seed derived
// from the attempt ID. Question identity travels with the question, so
// grading is untouched by presentation order.
func shufflePaper(paper *model.ExamPaper, attemptID uuid.UUID, settings model.ExamSettings) {
	seed := int64(0)
	for _, b := range attemptID {
		seed = seed<<8 | int64(b)&0xff
	}
	rng := rand.New(rand.NewSource(seed))

	if settings.ShuffleQuestions {
		rng.Shuffle(len(paper.Questions), func(i, j int) {
			paper.Questions[i], paper.Questions[j] = paper.Questions[j], paper.Questions[i]
		})
	}

	if settings.ShuffleOptions {
		for i := range paper.Questions {
			q := &paper.Questions[i]
			if len(q.Options) == 0 {
				continue
			}
			var opts []json.RawMessage
			if err := json.Unmarshal(q.Options, &opts); err != nil {
				continue // options not an array, leave as-is
			}
			rng.Shuffle(len(opts), func(a, b int) {
				opts[a], opts[b] = opts[b], opts[a]
			})
			if shuffled, err := json.Marshal(opts); err == nil {
				q.Options = shuffled
			}
		}
	}
}

// SaveAnswer autosaves one answer: controller memory first, then the Redis
// buffer, then the durable queue. The student gets an ack as soon as Redis
// has it.
func (s *AttemptService) SaveAnswer(ctx context.Context, examID uuid.UUID, studentEmail, questionID, answer string) error {
	mon, err := s.monitor(ctx, examID, studentEmail)
	if err != nil {
		return err
	}
	if mon.Controller().Status() != model.AttemptStatusInProgress {
		return session.ErrInvalidState
	}

	mon.Controller().SaveAnswer(questionID, answer)

	payload, err := json.Marshal(worker.AnswerPayload{
		ExamID:       examID.String(),
		StudentEmail: studentEmail,
		QuestionID:   questionID,
		Answer:       answer,
	})
	if err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.StudentAnswersKey(examID.String(), studentEmail), questionID, answer)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("buffer answer: %w", err)
	}
	return nil
}

// State returns the reload payload for an attempt: status, counters,
// autosaved answers, remaining clock.
func (s *AttemptService) State(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.AttemptState, error) {
	mon, err := s.monitor(ctx, examID, studentEmail)
	if err != nil {
		return nil, err
	}
	attempt := mon.Controller().Attempt()
	return s.stateFromAttempt(ctx, mon.Controller().Exam(), &attempt)
}

func (s *AttemptService) stateFromAttempt(ctx context.Context, exam *model.Exam, attempt *model.ExamAttempt) (*model.AttemptState, error) {
	answers, err := s.rdb.HGetAll(ctx,
		config.CacheKey.StudentAnswersKey(exam.ID.String(), attempt.StudentEmail)).Result()
	if err != nil || len(answers) == 0 {
		// Cache miss or Redis trouble: fall back to the in-memory ledger.
		answers = attempt.Answers
	}

	remaining := time.Until(exam.Deadline(attempt.StartedAt)).Seconds()
	if remaining < 0 || attempt.Status.Terminal() {
		remaining = 0
	}

	return &model.AttemptState{
		ExamID:           exam.ID,
		StudentEmail:     attempt.StudentEmail,
		Status:           attempt.Status,
		ViolationCount:   attempt.ViolationCount,
		AutosavedAnswers: answers,
		RemainingSeconds: remaining,
	}, nil
}

// HandleSignal feeds one lockdown signal through the attempt's policy
// engine and returns the verdict with the updated counter.
func (s *AttemptService) HandleSignal(ctx context.Context, examID uuid.UUID, studentEmail string, sig lockdown.Signal) (lockdown.Verdict, int, bool, error) {
	mon, err := s.monitor(ctx, examID, studentEmail)
	if err != nil {
		return lockdown.Verdict{}, 0, false, err
	}
	verdict, count, terminated := mon.HandleSignal(ctx, sig)
	return verdict, count, terminated, nil
}

// Submit finalizes the attempt with the supplied answers and enqueues the
// post-submit cleanup.
func (s *AttemptService) Submit(ctx context.Context, examID uuid.UUID, studentEmail string, answers map[string]string) (*model.ExamResult, error) {
	mon, err := s.monitor(ctx, examID, studentEmail)
	if err != nil {
		return nil, err
	}

	result, err := mon.Controller().Submit(ctx, answers)
	if err != nil {
		return nil, err
	}

	s.finish(ctx, examID, studentEmail)
	s.publish(ctx, examID, map[string]interface{}{
		"type":          "submitted",
		"student_email": studentEmail,
		"score":         result.Score,
		"percentage":    result.Percentage,
		"passed":        result.Passed,
	})

	return result, nil
}

// Terminate forcibly ends an attempt (proctor action). Terminating an
// already-terminal attempt is a no-op.
func (s *AttemptService) Terminate(ctx context.Context, examID uuid.UUID, studentEmail string) error {
	mon, err := s.monitor(ctx, examID, studentEmail)
	if errors.Is(err, session.ErrAlreadySubmitted) {
		return nil
	}
	if err != nil {
		return err
	}
	mon.Controller().Terminate(ctx)
	s.finish(ctx, examID, studentEmail)
	return nil
}

// finish drops the live controller and schedules buffer cleanup.
func (s *AttemptService) finish(ctx context.Context, examID uuid.UUID, studentEmail string) {
	s.mu.Lock()
	delete(s.live, model.AttemptID(examID, studentEmail))
	s.mu.Unlock()

	payload, err := json.Marshal(worker.ResultPayload{
		ExamID:       examID.String(),
		StudentEmail: studentEmail,
	})
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue attempt cleanup")
	}
}

// Results returns the student's result history.
func (s *AttemptService) Results(ctx context.Context, studentEmail string) ([]model.ExamResult, error) {
	results, err := s.store.ListResultsByStudent(ctx, studentEmail)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []model.ExamResult{}
	}
	return results, nil
}

// publish pushes a monitor event onto the exam's pub/sub channel.
// Best-effort: monitoring must never fail a student operation.
func (s *AttemptService) publish(ctx context.Context, examID uuid.UUID, event map[string]interface{}) {
	event["at"] = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish monitor event")
	}
}
