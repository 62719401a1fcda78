package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
)

type listSessionsController struct{ svc services.SessionService }

func NewListSessionsController(svc services.SessionService) *listSessionsController {
	return &listSessionsController{svc: svc}
}

func (h *listSessionsController) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.svc.List(caller(c))})
}
