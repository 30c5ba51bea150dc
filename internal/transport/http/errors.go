package handlers

import (
	"context"
	"errors"
	"net/http"

	"habitquest/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExpired:
		return http.StatusGone
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error", "code"}. Internal details only go to the log.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		c.AbortWithStatus(499)
		return
	}
	de := domain.AsError(err)
	status := statusFor(de.Kind)
	if status >= 500 {
		logger.Error("request failed",
			zap.String("request_id", c.GetString("requestId")),
			zap.String("code", de.Code),
			zap.Error(err))
	}
	msg := de.Message
	if de.Kind == domain.KindInternal {
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": de.Code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "BAD_REQUEST"})
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.GetString("userId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user", "code": "UNAUTHORIZED"})
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
