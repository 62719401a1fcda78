package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
)

type getRunController struct{ svc services.RunArchiveService }

func NewGetRunController(svc services.RunArchiveService) *getRunController {
	return &getRunController{svc: svc}
}

func (h *getRunController) Handle(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": rec})
}
