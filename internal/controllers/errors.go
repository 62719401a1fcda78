package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
)

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrSessionNotFound),
		errors.Is(err, services.ErrFeatureNotFound),
		errors.Is(err, services.ErrRunNotFound),
		errors.Is(err, services.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidJobRequest),
		errors.Is(err, services.ErrPurchaseMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrPurchaseToken):
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func caller(c *gin.Context) string {
	return c.GetString("caller")
}
