package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/publicq/examguard/internal/config"
	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/response"
	"github.com/publicq/examguard/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler serves the live proctor view: an SSE stream fed by Redis
// pub/sub plus polling refreshes, and the proctor termination action.
type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	monitorService *service.MonitorService
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	monitorService *service.MonitorService,
	attemptService *service.AttemptService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		monitorService: monitorService,
		attemptService: attemptService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	totalQuestions := len(exam.Questions)

	h.sendInitialSnapshot(c, reqCtx, examID, exam, totalQuestions)

	channelName := config.CacheKey.ExamMonitorChannel(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channelName)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Track whether any student has joined so we can skip empty refreshes
	hasStudents := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	// Pre-allocate a reusable ping payload (never changes)
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg := <-ch:
			// Forward raw JSON directly, no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

			// A join/violation/submit event proves someone is in the exam
			hasStudents = true

		case <-refreshTicker.C:
			if !hasStudents {
				continue // no point querying if nobody has joined
			}
			h.sendRefresh(c, reqCtx, examID, totalQuestions)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendInitialSnapshot gathers data and writes the first SSE event.
func (h *MonitorHandler) sendInitialSnapshot(
	c *gin.Context,
	ctx context.Context,
	examID uuid.UUID,
	exam *model.Exam,
	totalQuestions int,
) {
	attempts, _, err := h.monitorService.ListExamAttempts(ctx, examID, 1, 100)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch attempts for initial snapshot")
		attempts = nil
	}

	totalJoined := len(attempts)
	totalInProgress := 0
	totalCompleted := 0

	studentsSnapshot := make([]map[string]interface{}, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		if a.Status == model.AttemptStatusInProgress {
			totalInProgress++
		} else {
			totalCompleted++
		}

		var score float64
		if a.Score != nil {
			score = *a.Score
		}

		studentsSnapshot = append(studentsSnapshot, map[string]interface{}{
			"student_email":   a.StudentEmail,
			"status":          string(a.Status),
			"attempt_number":  a.AttemptNumber,
			"score":           score,
			"started_at":      a.StartedAt,
			"answered_count":  int64(0),
			"violation_count": int64(a.ViolationCount),
			"total_questions": totalQuestions,
		})
	}

	// Fetch counts with a timeout so a slow query doesn't block the connection
	var initialTotalViolations int64
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if progress, err := h.monitorService.GetStudentProgress(fetchCtx, examID); err == nil {
		initialTotalViolations = progress.TotalViolations
		for i, s := range studentsSnapshot {
			email, ok := s["student_email"].(string)
			if !ok {
				continue
			}
			if count, found := progress.AnsweredCounts[email]; found {
				studentsSnapshot[i]["answered_count"] = count
			}
			if count, found := progress.ViolationCounts[email]; found {
				studentsSnapshot[i]["violation_count"] = count
			}
		}
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"exam": map[string]interface{}{
				"id":              examID.String(),
				"title":           exam.Title,
				"duration":        exam.DurationMinutes,
				"total_questions": totalQuestions,
			},
			"stats": map[string]interface{}{
				"total_joined":      totalJoined,
				"total_in_progress": totalInProgress,
				"total_completed":   totalCompleted,
				"total_violations":  initialTotalViolations,
			},
			"students": studentsSnapshot,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls DB+Redis for current progress and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID, totalQuestions int) {
	// Scoped timeout prevents a slow query from stalling the SSE loop
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetStudentProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch student progress for refresh")
		return
	}

	// Single-pass merge: iterate answered counts, decorate with violation counts
	progressData := make([]map[string]interface{}, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))

	for email, answered := range progress.AnsweredCounts {
		progressData = append(progressData, map[string]interface{}{
			"student_email":   email,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[email], // 0 if missing
		})
		delete(progress.ViolationCounts, email) // mark as handled
	}

	// Remaining violation-only students (already submitted, not in-progress)
	for email, violations := range progress.ViolationCounts {
		progressData = append(progressData, map[string]interface{}{
			"student_email":   email,
			"answered_count":  int64(0),
			"violation_count": violations,
		})
	}

	c.SSEvent("message", map[string]interface{}{
		"type":             "refresh",
		"total_questions":  totalQuestions,
		"total_violations": progress.TotalViolations,
		"students":         progressData,
	})
	c.Writer.Flush()
}

// ListViolations godoc
// GET /api/v1/admin/exams/:exam_id/violations?limit=100
func (h *MonitorHandler) ListViolations(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	violations, err := h.monitorService.ListRecentViolations(c.Request.Context(), examID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to list violations")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, violations)
}

// TerminateAttempt godoc
// POST /api/v1/admin/exams/:exam_id/attempts/:email/terminate
// Proctor action: force-ends a student's attempt.
func (h *MonitorHandler) TerminateAttempt(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	email := c.Param("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := h.attemptService.Terminate(c.Request.Context(), examID, email); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
		return
	}

	h.log.Info().
		Str("exam_id", examID.String()).
		Str("student_email", email).
		Msg("Attempt terminated by proctor")

	response.Success(c, http.StatusOK, gin.H{"status": "terminated"})
}
