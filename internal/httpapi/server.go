// Package httpapi exposes a small read-mostly HTTP surface over the live
// correlation state, for dashboards and operational tooling that cannot
// subscribe to the broadcast transport.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/asterisk-callcenter/internal/engine"
)

// StateSource is the slice of the correlation engine the API reads from.
type StateSource interface {
	SnapshotOngoingCalls() []engine.OngoingCall
	SnapshotQueueStatus() map[string][]engine.WaiterStatus
	SnapshotAgents() []engine.AgentStatus
	HangupCall(linkedID string) bool
}

// NewRouter builds the gin router. Handlers delegate to the engine; no
// business logic lives here.
func NewRouter(src StateSource, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/calls", func(c *gin.Context) {
			c.JSON(http.StatusOK, src.SnapshotOngoingCalls())
		})
		api.GET("/queues", func(c *gin.Context) {
			c.JSON(http.StatusOK, src.SnapshotQueueStatus())
		})
		api.GET("/agents", func(c *gin.Context) {
			c.JSON(http.StatusOK, src.SnapshotAgents())
		})
		api.POST("/calls/:linkedId/hangup", func(c *gin.Context) {
			linkedID := c.Param("linkedId")
			if !src.HangupCall(linkedID) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no active call for linked id"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"linkedId": linkedID, "status": "hangup requested"})
		})
	}

	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}
