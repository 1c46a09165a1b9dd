package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/publicq/examguard/internal/model"
	"github.com/publicq/examguard/internal/repository"
	"github.com/publicq/examguard/internal/response"
	"github.com/publicq/examguard/internal/service"
	"github.com/publicq/examguard/internal/validator"
)

// StudentHandler handles admin student account management.
type StudentHandler struct {
	studentService *service.StudentService
	authService    *service.AuthService
	log            zerolog.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(studentService *service.StudentService, authService *service.AuthService, log zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		studentService: studentService,
		authService:    authService,
		log:            log.With().Str("component", "student_handler").Logger(),
	}
}

// ListStudents godoc
// GET /api/v1/admin/students?page=1&per_page=10
func (h *StudentHandler) ListStudents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	students, pagination, err := h.studentService.ListStudents(c.Request.Context(), page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list students")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, students, pagination)
}

// CreateStudent godoc
// POST /api/v1/admin/students
func (h *StudentHandler) CreateStudent(c *gin.Context) {
	var req model.CreateStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, err := h.studentService.Create(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		h.log.Error().Err(err).Msg("Failed to create student")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"email": student.Email,
		"name":  student.Name,
	})
}

// DeleteStudent godoc
// DELETE /api/v1/admin/students/:email
func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	email := c.Param("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := h.studentService.Delete(c.Request.Context(), email); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "deleted"})
}

// ResetStudentSession godoc
// POST /api/v1/admin/students/:email/reset-session
// Clears the single-device lock so the student can log in on a new device.
func (h *StudentHandler) ResetStudentSession(c *gin.Context) {
	email := c.Param("email")
	if email == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), email); err != nil {
		h.log.Error().Err(err).Str("email", email).Msg("Failed to reset session")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("email", email).Msg("Student session reset by admin")
	response.Success(c, http.StatusOK, gin.H{"status": "session_reset"})
}
