package api

import (
	"context"  // Context for the probe
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
)

// Pinger checks that a collaborator is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness; ?deep=1 also probes the estimator
func HealthHandler(estimator Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("deep") != "1" || estimator == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		if err := estimator.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "estimator": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "estimator": "ok"})
	}
}
