package api

// CreateRequestBody is the HTTP request body for POST /api/v1/requests.
type CreateRequestBody struct {
	SourceURL       string `json:"source_url" binding:"required"`
	Message         string `json:"message"`
	TargetDurationS int    `json:"target_duration_s"`
	SegmentCount    int    `json:"segment_count"`
}
