package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db      *gorm.DB
	name    string
	version string
	log     *zap.Logger
}

func NewHealthHandler(db *gorm.DB, name, version string, log *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, name: name, version: version, log: log}
}

// Health reports whether the service can reach its database.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.ping(ctx); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"name":    h.name,
		"version": h.version,
	})
}

func (h *HealthHandler) ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
