package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/bizbooks/internal/observability/logger"
	"go.uber.org/zap"
)

const readyTimeout = 2 * time.Second

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the database, and redis when configured, answer a ping.
func (s *Server) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	checks := gin.H{}
	ready := true

	if err := s.pingDB(ctx); err != nil {
		ready = false
		checks["database"] = "unavailable"
		obslogger.WithContext(ctx, s.log).Warn("readiness check failed", zap.String("dependency", "database"), zap.Error(err))
	} else {
		checks["database"] = "ok"
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			ready = false
			checks["redis"] = "unavailable"
			obslogger.WithContext(ctx, s.log).Warn("readiness check failed", zap.String("dependency", "redis"), zap.Error(err))
		} else {
			checks["redis"] = "ok"
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}

func (s *Server) pingDB(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
