package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type getFeatureController struct{ svc services.SessionService }

func NewGetFeatureController(svc services.SessionService) *getFeatureController {
	return &getFeatureController{svc: svc}
}

func (h *getFeatureController) Handle(c *gin.Context) {
	rt, err := domain.ParseRiskType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	view, err := h.svc.Feature(caller(c), c.Param("id"), rt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feature": view})
}
