package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/peplixcoin/cmeoi-sub001/services"
	"github.com/sirupsen/logrus"
)

// respondError writes the standard error envelope
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps a service error onto an HTTP status and error code
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", err.Error())
	case errors.Is(err, services.ErrAgentNotFound):
		respondError(c, http.StatusNotFound, "AGENT_NOT_FOUND", err.Error())
	case errors.Is(err, services.ErrAdminNotFound):
		respondError(c, http.StatusNotFound, "ADMIN_NOT_FOUND", err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, services.ErrDuplicateOrder):
		respondError(c, http.StatusConflict, "ORDER_EXISTS", err.Error())
	case errors.Is(err, services.ErrAdminExists):
		respondError(c, http.StatusConflict, "ADMIN_EXISTS", err.Error())
	case errors.Is(err, services.ErrInvalidRole):
		respondError(c, http.StatusUnprocessableEntity, "INVALID_ROLE", err.Error())
	case errors.Is(err, services.ErrValidation):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, services.ErrWrongKind):
		respondError(c, http.StatusBadRequest, "UNSUPPORTED_ORDER_TYPE", err.Error())
	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to process the request")
	}
}
