package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type startJobController struct{ svc services.SimulatorService }

func NewStartJobController(svc services.SimulatorService) *startJobController {
	return &startJobController{svc: svc}
}

func (h *startJobController) Handle(c *gin.Context) {
	var req domain.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	desc, err := h.svc.StartJob(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}
