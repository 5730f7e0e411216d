package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/proctorly-backend/internal/monitor"
	"github.com/proctorly/proctorly-backend/internal/repository"
	"github.com/proctorly/proctorly-backend/internal/response"
	"github.com/proctorly/proctorly-backend/internal/service"
)

// MonitorHandler serves the admin's live board and its actions.
type MonitorHandler struct {
	monitor       *monitor.Monitor
	authService   *service.AuthService
	lockEventRepo *repository.LockEventRepository
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(mon *monitor.Monitor, authService *service.AuthService, lockEventRepo *repository.LockEventRepository) *MonitorHandler {
	return &MonitorHandler{
		monitor:       mon,
		authService:   authService,
		lockEventRepo: lockEventRepo,
	}
}

// ListSessions godoc
// GET /api/v1/admin/sessions
// Returns every candidate session with liveness derived from snapshot
// age.
func (h *MonitorHandler) ListSessions(c *gin.Context) {
	entries, err := h.monitor.List(c.Request.Context())
	if err != nil {
		// A board fetch failure is transient; candidates are unaffected
		// and the admin should simply retry.
		response.Fail(c, http.StatusServiceUnavailable, response.ErrMonitorDegraded)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": entries})
}

// UnlockSession godoc
// POST /api/v1/admin/sessions/:username/unlock
func (h *MonitorHandler) UnlockSession(c *gin.Context) {
	if err := h.monitor.Unlock(c.Request.Context(), c.Param("username")); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// EnableResume godoc
// POST /api/v1/admin/sessions/:username/enable-resume
// Resets the candidate's resume quota and releases any lock.
func (h *MonitorHandler) EnableResume(c *gin.Context) {
	if err := h.monitor.EnableResume(c.Request.Context(), c.Param("username")); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ClearSession godoc
// POST /api/v1/admin/sessions/:username/clear
// Wipes the candidate's progress so they can start over.
func (h *MonitorHandler) ClearSession(c *gin.Context) {
	if err := h.monitor.Clear(c.Request.Context(), c.Param("username")); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// DeleteSession godoc
// DELETE /api/v1/admin/sessions/:username
func (h *MonitorHandler) DeleteSession(c *gin.Context) {
	if err := h.monitor.Delete(c.Request.Context(), c.Param("username")); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ResetLogin godoc
// POST /api/v1/admin/sessions/:username/reset-login
// Releases the single-device login so the candidate can log in from a
// new device.
func (h *MonitorHandler) ResetLogin(c *gin.Context) {
	if err := h.authService.ResetCandidateLogin(c.Request.Context(), c.Param("username")); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ListLockEvents godoc
// GET /api/v1/admin/lock-events?username=&limit=
// Returns the archived lock audit trail, newest first.
func (h *MonitorHandler) ListLockEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	events, err := h.lockEventRepo.List(c.Request.Context(), c.Query("username"), limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"events": events})
}
