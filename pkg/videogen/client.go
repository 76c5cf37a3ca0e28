// Package videogen is the HTTP adapter for the asynchronous
// clip-generation service. Submission is idempotent on the job key, so
// resubmitting after a crash or gate retry never produces a second clip.
package videogen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/reelworks/reeler/pkg/models"
	"github.com/reelworks/reeler/pkg/ports"
	"github.com/reelworks/reeler/pkg/sidegen"
	"github.com/reelworks/reeler/pkg/version"
)

const (
	apiTimeout      = 30 * time.Second
	downloadTimeout = 5 * time.Minute
)

// Client implements ports.VideoGeneration against a JSON-over-HTTP
// generation service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewClient creates a generation client. apiKey may be empty for
// services that authenticate some other way.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger.With("component", "videogen"),
	}
}

// submitBody is the generation request wire format.
type submitBody struct {
	IdempotentKey string `json:"idempotent_key"`
	Variant       string `json:"variant"`
	Prompt        string `json:"prompt"`
	Anchor        string `json:"narrative_anchor,omitempty"`
	DurationS     int    `json:"duration_s,omitempty"`
}

// jobBody is the job status wire format.
type jobBody struct {
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// SubmitJob enqueues one generation job. A conflict response means the
// key was already submitted and counts as success. Requests the service
// rejects outright come back as a permanent failure so the await gate
// never retries them.
func (c *Client) SubmitJob(ctx context.Context, req ports.GenerationRequest) error {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	payload, err := json.Marshal(submitBody{
		IdempotentKey: req.IdempotentKey,
		Variant:       req.Variant,
		Prompt:        req.Prompt,
		Anchor:        req.Anchor,
		DurationS:     req.DurationS,
	})
	if err != nil {
		return fmt.Errorf("encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("submit job %s: %w", req.IdempotentKey, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		c.logger.Debug("Job already submitted", "key", req.IdempotentKey)
		return nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		code, msg := decodeError(resp.Body)
		if code == "" {
			code = models.SideGenErrInvalidArgument
		}
		return &sidegen.SideGenPermanentFailure{
			Key:  req.IdempotentKey,
			Code: code,
			Err:  fmt.Errorf("service rejected job: %s", msg),
		}
	default:
		return fmt.Errorf("submit job %s: service returned HTTP %d", req.IdempotentKey, resp.StatusCode)
	}
}

// PollJob reads the current status of a submitted job.
func (c *Client) PollJob(ctx context.Context, key string) (ports.GenerationStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+key, nil)
	if err != nil {
		return ports.GenerationStatus{}, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.GenerationStatus{}, fmt.Errorf("poll job %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.GenerationStatus{}, fmt.Errorf("poll job %s: service returned HTTP %d", key, resp.StatusCode)
	}

	var body jobBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ports.GenerationStatus{}, fmt.Errorf("decode job status: %w", err)
	}

	state := models.SideGenStatus(strings.ToUpper(body.Status))
	if !state.IsValid() {
		return ports.GenerationStatus{}, fmt.Errorf("poll job %s: unknown provider status %q", key, body.Status)
	}
	return ports.GenerationStatus{
		State:        state,
		ErrorCode:    body.ErrorCode,
		ErrorMessage: body.ErrorMessage,
	}, nil
}

// DownloadClip fetches the finished clip to dest. The write lands in a
// temp file first so a cut connection never leaves a half-written clip
// at the destination path.
func (c *Client) DownloadClip(ctx context.Context, key, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+key+"/clip", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("download clip %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download clip %s: service returned HTTP %d", key, resp.StatusCode)
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create clip file: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("write clip %s: %w", key, err)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("finalise clip %s: %w", key, err)
	}

	c.logger.Debug("Clip downloaded", "key", key, "bytes", n, "dest", dest)
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", version.Full())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// decodeError pulls the code and message out of an error response body.
func decodeError(r io.Reader) (string, string) {
	var body jobBody
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return "", "unreadable error body"
	}
	msg := body.ErrorMessage
	if msg == "" {
		msg = "no detail provided"
	}
	return body.ErrorCode, msg
}
