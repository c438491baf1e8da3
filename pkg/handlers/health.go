package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *Handlers) HealthCheck(c *gin.Context) {
	database := "unchecked"
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			log.Errorf("HealthCheck: database ping failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "degraded",
				"database": "unreachable",
			})
			return
		}
		database = "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"message":  "mode-app API is running",
		"database": database,
	})
}
