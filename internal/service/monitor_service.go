package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/repository"
	"github.com/publicq/examguard/internal/response"
)

// MonitorService orchestrates live exam monitoring and reporting business
// logic.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	attemptRepo *repository.AttemptRepository
	resultRepo  *repository.ResultRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(
	monitorRepo *repository.MonitorRepository,
	attemptRepo *repository.AttemptRepository,
	resultRepo *repository.ResultRepository,
) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		attemptRepo: attemptRepo,
		resultRepo:  resultRepo,
	}
}

// StudentProgressSnapshot holds the answered count and violation count for
// every student active in an exam.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[string]int64 // student_email → answered_count
	ViolationCounts map[string]int64 // student_email → violation_count
	TotalViolations int64
}

// GetStudentProgress returns answered counts and violation counts
// concurrently. It fires two independent data fetches in parallel to
// minimize latency.
func (s *MonitorService) GetStudentProgress(ctx context.Context, examID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[string]int64),
		ViolationCounts: make(map[string]int64),
	}

	var (
		answeredCounts  map[string]int64
		violationCounts map[string]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, examID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.monitorRepo.GetViolationCounts(ctx, examID)
	}()

	wg.Wait()

	// Answered counts are critical; violation counts are best-effort.
	if answeredErr != nil {
		return nil, answeredErr
	}

	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}

	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}

// GetActiveStudents returns emails of students currently in the exam.
func (s *MonitorService) GetActiveStudents(ctx context.Context, examID uuid.UUID) ([]string, error) {
	return s.monitorRepo.GetActiveStudents(ctx, examID)
}

// ListRecentViolations returns the newest durable ledger entries for an exam.
func (s *MonitorService) ListRecentViolations(ctx context.Context, examID uuid.UUID, limit int) ([]repository.ViolationRow, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.monitorRepo.ListRecentViolations(ctx, examID, limit)
}

// ListExamAttempts returns all attempts for an exam with pagination.
func (s *MonitorService) ListExamAttempts(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamAttempt, *response.Pagination, error) {
	limit, offset, pagination := paginate(page, perPage)

	attempts, total, err := s.attemptRepo.ListByExamPaginated(ctx, examID, limit, offset)
	if err != nil {
		return nil, nil, err
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}

	pagination.TotalItems = total
	pagination.TotalPages = (total + pagination.PerPage - 1) / pagination.PerPage
	return attempts, pagination, nil
}

// ListExamResults returns the score board for an exam with pagination.
func (s *MonitorService) ListExamResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResult, *response.Pagination, error) {
	limit, offset, pagination := paginate(page, perPage)

	results, total, err := s.resultRepo.ListByExamPaginated(ctx, examID, limit, offset)
	if err != nil {
		return nil, nil, err
	}
	if results == nil {
		results = []model.ExamResult{}
	}

	pagination.TotalItems = total
	pagination.TotalPages = (total + pagination.PerPage - 1) / pagination.PerPage
	return results, pagination, nil
}

func paginate(page, perPage int) (limit, offset int, p *response.Pagination) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return perPage, (page - 1) * perPage, &response.Pagination{Page: page, PerPage: perPage}
}
