package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/proctorly-backend/internal/response"
	"github.com/proctorly/proctorly-backend/internal/service"
)

// ResultHandler exposes the decrypted result list to admins.
type ResultHandler struct {
	resultService *service.ResultService
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(resultService *service.ResultService) *ResultHandler {
	return &ResultHandler{resultService: resultService}
}

// ListResults godoc
// GET /api/v1/admin/results
func (h *ResultHandler) ListResults(c *gin.Context) {
	results, err := h.resultService.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrResultsLocked)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// ClearResults godoc
// DELETE /api/v1/admin/results
// Deletes the encrypted results document. The Postgres archive keeps
// the durable copy.
func (h *ResultHandler) ClearResults(c *gin.Context) {
	if err := h.resultService.Clear(c.Request.Context()); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
