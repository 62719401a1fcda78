package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
)

type jobStatusController struct{ svc services.SimulatorService }

func NewJobStatusController(svc services.SimulatorService) *jobStatusController {
	return &jobStatusController{svc: svc}
}

func (h *jobStatusController) Handle(c *gin.Context) {
	jobID := strings.TrimSpace(c.Query("job_id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id is required"})
		return
	}
	st, err := h.svc.Status(c.Request.Context(), jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
