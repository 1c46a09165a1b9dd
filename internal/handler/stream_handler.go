package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/publicq/examguard/internal/lockdown"
	"github.com/publicq/examguard/internal/middleware"
	"github.com/publicq/examguard/internal/service"
	"github.com/publicq/examguard/internal/session"
	ws "github.com/publicq/examguard/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamHandler handles the WebSocket exam stream: lockdown signals,
// autosave and submit over one connection.
type StreamHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "stream_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Upgrades to WebSocket for real-time signals, autosave and grading.
func (h *StreamHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	// The attempt must exist and be in progress before we stream.
	state, err := h.attemptService.State(c.Request.Context(), examID, claims.Email)
	if err != nil || state.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "no active attempt for this exam"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("student_email", claims.Email).
		Str("exam_id", examID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionSignal:
			h.handleSignal(conn, wsLog, examID, claims.Email, &msg)
		case ws.ActionAutosave:
			h.handleAutosave(conn, examID, claims.Email, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, examID, claims.Email, &msg)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleSignal classifies one environment signal and returns the verdict
// with client directives.
func (h *StreamHandler) handleSignal(conn *websocket.Conn, wsLog zerolog.Logger, examID uuid.UUID, email string, msg *ws.RequestPayload) {
	ctx := context.Background()

	sig := lockdown.Signal{
		Kind:         lockdown.SignalKind(msg.Kind),
		Hidden:       msg.Hidden,
		Clipboard:    lockdown.ClipboardKind(msg.Clipboard),
		IsFullscreen: msg.IsFullscreen,
		Key:          msg.Key,
		Ctrl:         msg.Ctrl,
		Meta:         msg.Meta,
		Alt:          msg.Alt,
	}

	verdict, count, terminated, err := h.attemptService.HandleSignal(ctx, examID, email, sig)
	if err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			ws.WriteTyped(conn, ws.TerminatedResponse{Event: ws.EventTerminated, Reason: "attempt is no longer in progress"})
			return
		}
		wsLog.Error().Err(err).Msg("Signal handling failed")
		ws.WriteError(conn, "signal rejected")
		return
	}

	ws.WriteTyped(conn, ws.VerdictResponse{
		Event:             ws.EventVerdict,
		Violation:         string(verdict.Violation),
		Suppress:          verdict.Suppress,
		ReenterFullscreen: verdict.ReenterFullscreen,
		ViolationCount:    count,
		Terminated:        terminated,
	})

	if terminated {
		ws.WriteTyped(conn, ws.TerminatedResponse{
			Event:  ws.EventTerminated,
			Reason: "violation limit reached",
		})
	}
}

// handleAutosave buffers a single answer and acks as soon as Redis has it.
func (h *StreamHandler) handleAutosave(conn *websocket.Conn, examID uuid.UUID, email string, msg *ws.RequestPayload) {
	ctx := context.Background()

	if msg.QID == "" || msg.Answer == "" {
		ws.WriteError(conn, "q_id and ans are required")
		return
	}

	// Validate QID is a well-formed UUID to prevent Redis key injection.
	if _, err := uuid.Parse(msg.QID); err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	if err := h.attemptService.SaveAnswer(ctx, examID, email, msg.QID, msg.Answer); err != nil {
		if errors.Is(err, session.ErrInvalidState) {
			ws.WriteTyped(conn, ws.TerminatedResponse{Event: ws.EventTerminated, Reason: "attempt is no longer in progress"})
			return
		}
		h.log.Error().Err(err).Str("student_email", email).Msg("Autosave failed")
		ws.WriteError(conn, "save failed")
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Status: "saved"})
}

// handleSubmit grades the attempt in RAM and returns the final result.
func (h *StreamHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, examID uuid.UUID, email string, msg *ws.RequestPayload) {
	ctx := context.Background()

	result, err := h.attemptService.Submit(ctx, examID, email, msg.Answers)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrDeadlineExceeded):
			ws.WriteTyped(conn, ws.TerminatedResponse{Event: ws.EventTerminated, Reason: "exam duration elapsed"})
		case errors.Is(err, session.ErrInvalidState):
			ws.WriteTyped(conn, ws.TerminatedResponse{Event: ws.EventTerminated, Reason: "attempt is no longer in progress"})
		default:
			wsLog.Error().Err(err).Msg("Submit failed")
			ws.WriteError(conn, "grading failed")
		}
		return
	}

	wsLog.Info().
		Float64("score", result.Score).
		Float64("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("Exam submitted and graded")

	ws.WriteTyped(conn, ws.GradedResponse{
		Event:      ws.EventGraded,
		Status:     "completed",
		Score:      result.Score,
		Percentage: result.Percentage,
		Passed:     result.Passed,
	})
}
