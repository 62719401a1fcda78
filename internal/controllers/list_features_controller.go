package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type listFeaturesController struct{ catalog []domain.Feature }

func NewListFeaturesController(catalog []domain.Feature) *listFeaturesController {
	return &listFeaturesController{catalog: catalog}
}

func (h *listFeaturesController) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"features": h.catalog})
}
