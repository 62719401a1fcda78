package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
)

type closeSessionController struct{ svc services.SessionService }

func NewCloseSessionController(svc services.SessionService) *closeSessionController {
	return &closeSessionController{svc: svc}
}

// Handle tears the board down; runs in flight are cancelled.
func (h *closeSessionController) Handle(c *gin.Context) {
	if err := h.svc.Close(caller(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
