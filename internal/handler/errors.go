package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/repository"
	"github.com/savannah-faces/data-service/internal/service"
	"go.uber.org/zap"
)

const internalErrorMessage = "internal server error"

// respondError maps service and repository errors to HTTP responses.
// Anything unexpected becomes a 500 whose details only go to the log.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var verr *models.ValidationError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.Is(err, service.ErrUnsupportedMediaType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "Unsupported file type.",
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Incorrect email or password",
		})
	case errors.Is(err, service.ErrUnauthorized):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Could not validate credentials",
		})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error": "already exists",
		})
	default:
		log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": internalErrorMessage,
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
	})
}
