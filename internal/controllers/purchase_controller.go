package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type purchaseController struct {
	svc         services.SimulatorService
	tokenHeader string
}

func NewPurchaseController(svc services.SimulatorService, tokenHeader string) *purchaseController {
	if tokenHeader == "" {
		tokenHeader = "token"
	}
	return &purchaseController{svc: svc, tokenHeader: tokenHeader}
}

func (h *purchaseController) Handle(c *gin.Context) {
	var req domain.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	receipt, err := h.svc.Purchase(c.Request.Context(), c.GetHeader(h.tokenHeader), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}
