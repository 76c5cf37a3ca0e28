// Package ports declares the narrow interfaces through which the pipeline
// core reaches its external collaborators: agent reasoning, messaging,
// file delivery, video tooling, generation services, host monitoring, the
// knowledge base, and durable run state. Adapters live in their own
// packages; the core depends only on these contracts.
package ports

import (
	"context"
	"time"

	"github.com/reelworks/reeler/pkg/events"
	"github.com/reelworks/reeler/pkg/models"
)

// AgentDispatch invokes an opaque reasoning process with a prompt and
// returns its textual reply. Used for both agent stage work and QA
// critiques.
type AgentDispatch interface {
	Dispatch(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// Messaging is the user-facing channel. Implementations must be safe to
// call with a nil receiver so callers can stay unconditional; every method
// is then a no-op.
type Messaging interface {
	// Notify sends a one-way message to the user.
	Notify(ctx context.Context, text string) error
	// AskUser sends a prompt and waits up to timeout for a reply. The
	// boolean reports whether an answer arrived.
	AskUser(ctx context.Context, prompt string, timeout time.Duration) (string, bool, error)
	// SendFile delivers a local file with a caption.
	SendFile(ctx context.Context, path, caption string) error
}

// InboundMessage is one user message pulled from the messaging channel.
type InboundMessage struct {
	ID     string
	Sender string
	Text   string
	At     time.Time
}

// MessageSource polls the messaging channel for new inbound messages.
type MessageSource interface {
	Poll(ctx context.Context) ([]InboundMessage, error)
}

// FileDelivery uploads a finished artifact and returns a shareable URL.
type FileDelivery interface {
	Upload(ctx context.Context, path string) (string, error)
}

// VideoDownload fetches a source video to a local destination.
type VideoDownload interface {
	Download(ctx context.Context, url, dest string) error
}

// VideoEncode runs one encode operation.
type VideoEncode interface {
	Encode(ctx context.Context, spec EncodeSpec) error
}

// VideoProbe inspects a local media file.
type VideoProbe interface {
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

// VideoGeneration talks to the asynchronous clip-generation service.
// SubmitJob is idempotent on the request's key: resubmitting a key the
// provider already completed must not produce a second artifact.
type VideoGeneration interface {
	SubmitJob(ctx context.Context, req GenerationRequest) error
	PollJob(ctx context.Context, key string) (GenerationStatus, error)
	DownloadClip(ctx context.Context, key, dest string) error
}

// ResourceMonitor samples host health.
type ResourceMonitor interface {
	Snapshot(ctx context.Context) (models.ResourceSnapshot, error)
}

// KnowledgeBase is key-value CRUD over a user-editable YAML file.
type KnowledgeBase interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	All() map[string]string
}

// StateStore is the durable checkpoint contract.
type StateStore interface {
	SaveState(runID string, state *models.RunState) error
	// LoadState returns the persisted state; the boolean is false when no
	// well-formed state exists yet.
	LoadState(runID string) (*models.RunState, bool, error)
	AppendEvent(runID string, ev events.Event) error
	ListIncompleteRuns() ([]*models.RunState, error)
}
