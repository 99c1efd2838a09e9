package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/savannah-faces/data-service/internal/config"
	"github.com/savannah-faces/data-service/internal/metrics"
	"github.com/savannah-faces/data-service/internal/middleware"
	"github.com/savannah-faces/data-service/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RouterConfig carries everything the HTTP layer depends on.
type RouterConfig struct {
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics
	DB      *gorm.DB

	Users  *service.UserService
	Images *service.ImageService
	Labels *service.ImageLabelService

	// RateLimiter guards login and registration. Nil disables limiting.
	RateLimiter *middleware.RateLimiter
	// AssetDir is served under /data when images are stored locally.
	AssetDir string
}

func NewRouter(rc RouterConfig) *gin.Engine {
	cfg := rc.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(rc.Log, rc.Metrics))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.HSTSMiddleware(cfg.IsProduction()))
	r.Use(corsMiddleware(cfg.CORSAllowedOrigins))

	health := NewHealthHandler(rc.DB, cfg.AppName, cfg.AppVersion, rc.Log)
	r.GET("/health", health.Health)
	r.GET("/metrics", gin.WrapH(rc.Metrics.Handler()))

	if rc.AssetDir != "" {
		r.Static("/data", rc.AssetDir)
	}

	users := NewUserHandler(rc.Users, cfg.Cookie, rc.Log)
	images := NewImageHandler(rc.Images, cfg.MaxUploadBytes, rc.Log)
	labels := NewImageLabelHandler(rc.Labels, rc.Log)

	api := r.Group("/api/" + cfg.APIVersion)

	userRoutes := api.Group("/users")
	{
		userRoutes.POST("/register", limit(rc.RateLimiter, "register"), users.Register)
		userRoutes.POST("/login", limit(rc.RateLimiter, "login"), users.Login)
		userRoutes.GET("/logout", users.Logout)

		authed := userRoutes.Group("")
		authed.Use(middleware.AuthMiddleware(rc.Users, cfg.Cookie.Name, rc.Log))
		authed.GET("/me", users.Me)
		authed.PATCH("/me", users.UpdateMe)
		authed.DELETE("/me", users.DeleteMe)
		authed.GET("", users.List)
	}

	imageRoutes := api.Group("/images")
	{
		imageRoutes.POST("/upload", images.Upload)
		imageRoutes.POST("/label", labels.Create)
		imageRoutes.GET("", images.List)
		imageRoutes.GET("/next", images.Next)
		imageRoutes.GET("/by-name/:name", images.GetByName)
		imageRoutes.GET("/:id", images.Get)
		imageRoutes.PATCH("/:id", images.Update)
		imageRoutes.DELETE("/:id", images.Delete)
	}

	labelRoutes := api.Group("/labels")
	{
		labelRoutes.GET("", labels.List)
		labelRoutes.GET("/:id", labels.Get)
		labelRoutes.PATCH("/:id", labels.Update)
		labelRoutes.DELETE("/:id", labels.Delete)
	}

	return r
}

func limit(rl *middleware.RateLimiter, scope string) gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return rl.Middleware(scope)
}

// corsMiddleware allows any origin without credentials unless origins are
// configured, in which case the session cookie may cross origins.
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
