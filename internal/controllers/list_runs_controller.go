package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type listRunsController struct{ svc services.RunArchiveService }

func NewListRunsController(svc services.RunArchiveService) *listRunsController {
	return &listRunsController{svc: svc}
}

func (h *listRunsController) Handle(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' (must be a positive integer)"})
			return
		}
		limit = n
	}
	var filter domain.RiskType
	if raw := c.Query("riskType"); raw != "" {
		rt, err := domain.ParseRiskType(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter = rt
	}
	// A filtered listing scans the whole recent window so the limit counts matching runs.
	window := limit
	if filter != "" {
		window = 0
	}
	recs, err := h.svc.Recent(c.Request.Context(), window)
	if err != nil {
		writeError(c, err)
		return
	}
	if filter != "" {
		kept := recs[:0]
		for _, r := range recs {
			if r.RiskType == filter {
				kept = append(kept, r)
			}
		}
		recs = kept
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"runs": recs})
}
