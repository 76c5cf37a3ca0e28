// Package config loads typed settings from built-in defaults, an optional
// YAML overlay, and the environment, in that order of increasing
// precedence. Validation happens once at load; nothing downstream
// re-checks configuration.
package config

import (
	"time"
)

// OverlayFileName is the optional YAML overlay inside the config dir.
const OverlayFileName = "reeler.yaml"

// Settings is the full runtime configuration.
type Settings struct {
	Paths    PathSettings     `yaml:"paths"`
	Slack    SlackSettings    `yaml:"slack"`
	S3       S3Settings       `yaml:"s3"`
	VideoGen VideoGenSettings `yaml:"videogen"`
	SideGen  SideGenSettings  `yaml:"sidegen"`
	Media    MediaSettings    `yaml:"media"`
	Agent    AgentSettings    `yaml:"agent"`
	Throttle ThrottleSettings `yaml:"throttle"`
	Daemon   DaemonSettings   `yaml:"daemon"`
	API      APISettings      `yaml:"api"`
}

// PathSettings locates the on-disk roots.
type PathSettings struct {
	WorkspaceRoot     string `yaml:"workspace_root"`
	QueueRoot         string `yaml:"queue_root"`
	ConfigDir         string `yaml:"config_dir"`
	KnowledgeBasePath string `yaml:"knowledge_base_path"`
}

// SlackSettings configures the messaging channel. The bot token is a
// secret and is read from the environment only.
type SlackSettings struct {
	BotToken     string   `yaml:"-"`
	ChannelID    string   `yaml:"channel_id"`
	AllowedUsers []string `yaml:"allowed_users"`
}

// Enabled reports whether Slack messaging is configured.
func (s SlackSettings) Enabled() bool {
	return s.BotToken != ""
}

// S3Settings configures final-artifact delivery. Credentials come from
// the standard AWS chain.
type S3Settings struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

// Enabled reports whether S3 upload is configured.
func (s S3Settings) Enabled() bool {
	return s.Bucket != ""
}

// VideoGenSettings configures the asynchronous clip-generation service.
// The API key is a secret and is read from the environment only.
type VideoGenSettings struct {
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"base_url"`
}

// Enabled reports whether clip generation is configured.
func (v VideoGenSettings) Enabled() bool {
	return v.BaseURL != ""
}

// SideGenSettings bounds the side-generation gate.
type SideGenSettings struct {
	MaxClips   int `yaml:"max_clips"`
	TimeoutS   int `yaml:"timeout_s"`
	CropPixels int `yaml:"crop_pixels"`
}

// Timeout returns the await-gate budget.
func (s SideGenSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutS) * time.Second
}

// MediaSettings locates the external media tools. Bare names resolve
// through PATH.
type MediaSettings struct {
	YtDlpBin   string `yaml:"ytdlp_bin"`
	FfmpegBin  string `yaml:"ffmpeg_bin"`
	FfprobeBin string `yaml:"ffprobe_bin"`
}

// AgentSettings configures the reasoning CLI used by agent stages and QA.
type AgentSettings struct {
	CLIBin        string `yaml:"cli_bin"`
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model"`
	TimeoutS      int    `yaml:"timeout_s"`
}

// Timeout returns the per-invocation agent budget.
func (a AgentSettings) Timeout() time.Duration {
	return time.Duration(a.TimeoutS) * time.Second
}

// ThrottleSettings bounds run admission.
type ThrottleSettings struct {
	MemoryFloorGiB      float64 `yaml:"memory_floor_gib"`
	CPUCeiling          float64 `yaml:"cpu_ceiling"`
	TemperatureCeilingC float64 `yaml:"temperature_ceiling_c"`
	PollIntervalS       int     `yaml:"poll_interval_s"`
}

// MemoryFloorBytes converts the floor to bytes.
func (t ThrottleSettings) MemoryFloorBytes() uint64 {
	return uint64(t.MemoryFloorGiB * float64(1<<30))
}

// PollInterval returns the re-check cadence while blocked.
func (t ThrottleSettings) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalS) * time.Second
}

// DaemonSettings configures the long-running service loop.
type DaemonSettings struct {
	WatchdogWindowS    int `yaml:"watchdog_window_s"`
	QueueRetentionDays int `yaml:"queue_retention_days"`
}

// WatchdogWindow returns the liveness window the supervisor expects.
func (d DaemonSettings) WatchdogWindow() time.Duration {
	return time.Duration(d.WatchdogWindowS) * time.Second
}

// QueueRetention returns how long completed queue items are kept.
func (d DaemonSettings) QueueRetention() time.Duration {
	return time.Duration(d.QueueRetentionDays) * 24 * time.Hour
}

// APISettings configures the optional operations API. The auth token is
// a secret and is read from the environment only.
type APISettings struct {
	ListenAddr string `yaml:"listen_addr"`
	AuthToken  string `yaml:"-"`
}

// Enabled reports whether the operations API should be served.
func (a APISettings) Enabled() bool {
	return a.ListenAddr != ""
}

// Defaults returns the built-in configuration baseline.
func Defaults() *Settings {
	return &Settings{
		Paths: PathSettings{
			WorkspaceRoot:     "./workspace",
			QueueRoot:         "./queue",
			ConfigDir:         "./config",
			KnowledgeBasePath: "./config/knowledge.yaml",
		},
		SideGen: SideGenSettings{
			MaxClips:   3,
			TimeoutS:   300,
			CropPixels: 0,
		},
		Media: MediaSettings{
			YtDlpBin:   "yt-dlp",
			FfmpegBin:  "ffmpeg",
			FfprobeBin: "ffprobe",
		},
		Agent: AgentSettings{
			TimeoutS: 600,
		},
		Throttle: ThrottleSettings{
			MemoryFloorGiB:      3,
			CPUCeiling:          0.80,
			TemperatureCeilingC: 80,
			PollIntervalS:       30,
		},
		Daemon: DaemonSettings{
			WatchdogWindowS:    300,
			QueueRetentionDays: 14,
		},
	}
}
