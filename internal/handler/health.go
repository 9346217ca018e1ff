package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler exposes liveness and readiness probes. Readiness pings the
// connection pool so an instance with a dead database drops out of rotation
// instead of serving errors.
type HealthHandler struct {
	DB *gorm.DB
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Liveness probe
// @Tags health
// @Success 200 {object} map[string]any
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	Ok(c, gin.H{"status": "ok"}, nil)
}

// @Summary Readiness probe
// @Tags health
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		Error(c, http.StatusServiceUnavailable, "database not configured", nil)
		return
	}
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		Error(c, http.StatusServiceUnavailable, "database unreachable", nil)
		return
	}
	Ok(c, gin.H{"status": "ready"}, nil)
}
