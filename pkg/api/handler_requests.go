package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelworks/reeler/pkg/models"
)

// createRequest handles POST /api/v1/requests: validate, mint a run id,
// enqueue. The daemon's queue poll picks the item up like any Slack
// request; the caller gets the run id back instead of a channel ack.
func (s *Server) createRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !isFetchableURL(body.SourceURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_url must be an http(s) URL"})
		return
	}

	now := time.Now().UTC()
	item := &models.QueueItem{
		RunID:       models.NewRunID(now),
		SubmittedAt: now,
		SourceURL:   body.SourceURL,
		MessageText: body.Message,
		Directives: models.Directives{
			TargetDurationS: body.TargetDurationS,
			SegmentCount:    body.SegmentCount,
		},
	}

	name, err := s.queue.Enqueue(item)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue request: " + err.Error()})
		return
	}

	s.logger.Info("Request accepted via API", "run_id", item.RunID, "item", name, "source_url", body.SourceURL)
	c.JSON(http.StatusAccepted, CreateRequestResponse{RunID: item.RunID, Status: "queued"})
}

func isFetchableURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
