package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/proctorly-backend/internal/model"
	"github.com/proctorly/proctorly-backend/internal/response"
	"github.com/proctorly/proctorly-backend/internal/service"
)

// SettingHandler reads and writes the global exam configuration.
type SettingHandler struct {
	settingService *service.SettingService
}

// NewSettingHandler creates a new SettingHandler.
func NewSettingHandler(settingService *service.SettingService) *SettingHandler {
	return &SettingHandler{settingService: settingService}
}

// GetPublicSettings godoc
// GET /api/v1/public/settings
// Returns the display-only subset the login screen needs. Quantities
// and timing stay admin-only.
func (h *SettingHandler) GetPublicSettings(c *gin.Context) {
	settings := h.settingService.Current(c.Request.Context())
	response.Success(c, http.StatusOK, gin.H{
		"logo":        settings.Logo,
		"author":      settings.Author,
		"college":     settings.College,
		"subject":     settings.Subject,
		"subjectCode": settings.SubjectCode,
		"customMsg":   settings.CustomMsg,
	})
}

// GetSettings godoc
// GET /api/v1/admin/settings
func (h *SettingHandler) GetSettings(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"settings": h.settingService.Current(c.Request.Context())})
}

// UpdateSettings godoc
// PUT /api/v1/admin/settings
// Replaces the settings document. In-progress exams keep the settings
// they started with.
func (h *SettingHandler) UpdateSettings(c *gin.Context) {
	var settings model.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := h.settingService.Update(c.Request.Context(), settings); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"settings": settings})
}
