package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/service"
	"go.uber.org/zap"
)

const currentUserKey = "current_user"

// SessionResolver turns a session token into the user it belongs to.
type SessionResolver interface {
	CurrentUser(ctx context.Context, token string) (*models.UserRead, error)
}

// AuthMiddleware requires a valid session. The token is read from the session
// cookie, or from an "Authorization: Bearer <token>" header when there is no cookie.
func AuthMiddleware(sessions SessionResolver, cookieName string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionToken(c, cookieName)
		if token == "" {
			unauthorized(c)
			return
		}

		user, err := sessions.CurrentUser(c.Request.Context(), token)
		if errors.Is(err, service.ErrUnauthorized) {
			unauthorized(c)
			return
		}
		if err != nil {
			log.Error("Failed to resolve session", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

func sessionToken(c *gin.Context, cookieName string) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "Could not validate credentials",
	})
}

// CurrentUser returns the user AuthMiddleware attached to the request.
func CurrentUser(c *gin.Context) (*models.UserRead, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.UserRead)
	return user, ok
}
