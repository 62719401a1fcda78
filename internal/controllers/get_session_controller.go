package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
)

type getSessionController struct{ svc services.SessionService }

func NewGetSessionController(svc services.SessionService) *getSessionController {
	return &getSessionController{svc: svc}
}

func (h *getSessionController) Handle(c *gin.Context) {
	info, views, err := h.svc.Get(caller(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": info, "features": views})
}
