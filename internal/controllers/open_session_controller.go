package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
)

type openSessionController struct{ svc services.SessionService }

func NewOpenSessionController(svc services.SessionService) *openSessionController {
	return &openSessionController{svc: svc}
}

func (h *openSessionController) Handle(c *gin.Context) {
	info, err := h.svc.Open(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	_, views, err := h.svc.Get(info.Owner, info.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": info, "features": views})
}
