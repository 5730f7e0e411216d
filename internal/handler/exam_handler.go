package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/proctorly-backend/internal/middleware"
	"github.com/proctorly/proctorly-backend/internal/response"
	"github.com/proctorly/proctorly-backend/internal/session"
)

// ExamHandler exposes the candidate's exam lifecycle over REST. The
// live exchange (answers, ticks, locks) runs over the WebSocket; these
// endpoints cover start and full-state reads on page load.
type ExamHandler struct {
	manager *session.Manager
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(manager *session.Manager) *ExamHandler {
	return &ExamHandler{manager: manager}
}

// StartExam godoc
// POST /api/v1/exam/start
// Starts a fresh exam or resumes a saved one for the authenticated
// candidate. Passing {"fresh": true} declines an offered resume and
// discards the saved progress; a locked session cannot be declined.
func (h *ExamHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req struct {
		Fresh bool `json:"fresh"`
	}
	// The body is optional; absent or malformed means resume normally.
	_ = c.ShouldBindJSON(&req)

	s, err := h.manager.Start(c.Request.Context(), claims.Username, c.ClientIP(), req.Fresh)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadyAttempted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadyAttempted)
		case errors.Is(err, session.ErrResumeLimit):
			response.Fail(c, http.StatusForbidden, response.ErrResumeLimit)
		case errors.Is(err, session.ErrEmptyPaper):
			response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, examState(s))
}

// GetExamState godoc
// GET /api/v1/exam/state
// Returns the full state of the candidate's running exam, used by the
// client to rebuild its view after a reload.
func (h *ExamHandler) GetExamState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	s, ok := h.manager.Get(claims.Username)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
		return
	}

	response.Success(c, http.StatusOK, examState(s))
}

// examState assembles the client-facing view of a session.
func examState(s *session.Session) gin.H {
	snap := s.Snapshot()
	return gin.H{
		"phase":       s.Phase().String(),
		"paper":       s.Paper(),
		"answers":     snap.Answers,
		"flags":       snap.Flags,
		"cur":         snap.Cur,
		"remainingMs": snap.RemainingMs,
		"resumes":     snap.Resumes,
		"startedAt":   snap.StartedAt,
	}
}
