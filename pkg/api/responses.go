package api

import (
	"time"

	"github.com/reelworks/reeler/pkg/models"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string     `json:"status"`
	Version string     `json:"version"`
	Queue   QueueStats `json:"queue"`
}

// QueueStats reports how many items sit in each queue directory.
type QueueStats struct {
	Inbox      int `json:"inbox"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
}

// RunSummary is one row of GET /api/v1/runs.
type RunSummary struct {
	RunID           string               `json:"run_id"`
	Status          models.RunStatus     `json:"status"`
	Stage           models.PipelineStage `json:"stage"`
	StagesCompleted int                  `json:"stages_completed"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// RunListResponse is returned by GET /api/v1/runs.
type RunListResponse struct {
	Runs []RunSummary `json:"runs"`
}

// RunDetailResponse is returned by GET /api/v1/runs/:id.
type RunDetailResponse struct {
	State   *models.RunState `json:"state"`
	Journal []string         `json:"journal"`
}

// CreateRequestResponse is returned by POST /api/v1/requests.
type CreateRequestResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}
