package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type runFeatureController struct{ svc services.SessionService }

func NewRunFeatureController(svc services.SessionService) *runFeatureController {
	return &runFeatureController{svc: svc}
}

func (h *runFeatureController) Handle(c *gin.Context) {
	rt, err := domain.ParseRiskType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	view, err := h.svc.Trigger(c.Request.Context(), caller(c), c.Param("id"), rt)
	if errors.Is(err, services.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "feature": view})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"feature": view})
}
