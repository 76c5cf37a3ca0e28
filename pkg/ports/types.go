package ports

import "github.com/reelworks/reeler/pkg/models"

// GenerationRequest describes one side-clip generation job.
type GenerationRequest struct {
	IdempotentKey string
	Variant       string
	Prompt        string
	Anchor        string
	DurationS     int
}

// GenerationStatus is a provider-side snapshot of one job, mapped into the
// pipeline's own status vocabulary.
type GenerationStatus struct {
	State        models.SideGenStatus
	ErrorCode    string
	ErrorMessage string
}

// EncodeSpec describes one encode operation. CropPixels trims that many
// pixels from each horizontal edge; zero disables the crop.
type EncodeSpec struct {
	InputPath  string
	OutputPath string
	CropPixels int
	ExtraArgs  []string
}

// MediaInfo summarises a probed media file.
type MediaInfo struct {
	DurationS float64
	Width     int
	Height    int
	SizeBytes int64
	Codec     string
}
