package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/savannah-faces/data-service/internal/config"
	"github.com/savannah-faces/data-service/internal/middleware"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/repository"
	"github.com/savannah-faces/data-service/internal/service"
	"go.uber.org/zap"
)

const (
	loginPage     = "/login"
	dashboardPage = "/user_dashboard"
	homePage      = "/"
)

type UserHandler struct {
	users  *service.UserService
	cookie config.CookieConfig
	log    *zap.Logger
}

func NewUserHandler(users *service.UserService, cookie config.CookieConfig, log *zap.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		cookie: cookie,
		log:    log,
	}
}

// Register handles the sign-up form and sends the browser to the login page.
// POST /users/register
func (h *UserHandler) Register(c *gin.Context) {
	var in models.UserCreate
	if err := c.ShouldBind(&in); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.users.Register(c.Request.Context(), in)
	if err != nil {
		var verr *models.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
		case errors.Is(err, repository.ErrConflict):
			badRequest(c, "Email already registered")
		default:
			respondError(c, h.log, err)
		}
		return
	}

	h.log.Info("Registration completed",
		zap.String("user_id", user.ID),
		zap.String("ip", c.ClientIP()),
	)
	c.Redirect(http.StatusFound, loginPage)
}

// Login checks the form credentials, sets the session cookie and sends the
// browser to the dashboard.
// POST /users/login
func (h *UserHandler) Login(c *gin.Context) {
	email := c.PostForm("email")
	password := c.PostForm("password")
	if email == "" || password == "" {
		respondError(c, h.log, service.ErrInvalidCredentials)
		return
	}

	token, user, err := h.users.Login(c.Request.Context(), email, password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.setSessionCookie(c, token, h.cookie.MaxAge)

	h.log.Info("Session started",
		zap.String("user_id", user.ID),
		zap.String("ip", c.ClientIP()),
	)
	c.Redirect(http.StatusFound, dashboardPage)
}

// Logout clears the session cookie.
// GET /users/logout
func (h *UserHandler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.Redirect(http.StatusFound, homePage)
}

func (h *UserHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(
		h.cookie.Name,
		value,
		maxAge,
		"/",
		"",
		h.cookie.Secure,
		h.cookie.HTTPOnly,
	)
}

// Me returns the signed-in user.
// GET /users/me
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, h.log, service.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe applies a partial update to the signed-in user.
// PATCH /users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, h.log, service.ErrUnauthorized)
		return
	}

	var upd models.UserUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	user, err := h.users.Update(c.Request.Context(), current.ID, upd)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteMe removes the signed-in account and ends the session.
// DELETE /users/me
func (h *UserHandler) DeleteMe(c *gin.Context) {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, h.log, service.ErrUnauthorized)
		return
	}

	if err := h.users.Delete(c.Request.Context(), current.ID); err != nil {
		respondError(c, h.log, err)
		return
	}

	h.setSessionCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// List returns users ordered by creation time.
// GET /users?limit=&offset=
func (h *UserHandler) List(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	users, err := h.users.List(c.Request.Context(), page)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, users)
}
