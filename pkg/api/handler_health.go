package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelworks/reeler/pkg/version"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// health handles GET /healthz. Queue trouble degrades the status but
// keeps HTTP 200: the daemon itself is alive and an orchestrator restart
// would not help.
func (s *Server) health(c *gin.Context) {
	resp := HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
	}

	inbox, processing, completed, err := s.queue.Counts()
	if err != nil {
		s.logger.Warn("Queue count failed during health check", "error", err)
		resp.Status = healthStatusDegraded
	} else {
		resp.Queue = QueueStats{Inbox: inbox, Processing: processing, Completed: completed}
	}

	c.JSON(http.StatusOK, resp)
}
