package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load builds the runtime settings: built-in defaults, then the optional
// YAML overlay, then environment variables, highest precedence last.
// Validation runs once here; a non-nil return is ready for use.
func Load(configDir string) (*Settings, error) {
	s := Defaults()
	if configDir != "" {
		s.Paths.ConfigDir = configDir
	}
	if v := os.Getenv("CONFIG_DIR"); v != "" {
		s.Paths.ConfigDir = v
	}

	if err := applyOverlay(s); err != nil {
		return nil, err
	}
	applyEnv(s)

	if err := s.Validate(); err != nil {
		return nil, err
	}

	slog.Info("Configuration initialized",
		"config_dir", s.Paths.ConfigDir,
		"workspace_root", s.Paths.WorkspaceRoot,
		"queue_root", s.Paths.QueueRoot,
		"slack", s.Slack.Enabled(),
		"s3", s.S3.Enabled(),
		"videogen", s.VideoGen.Enabled(),
		"api", s.API.Enabled())
	return s, nil
}

// applyOverlay merges config/reeler.yaml over the defaults when present.
// Absence is not an error; the overlay is optional.
func applyOverlay(s *Settings) error {
	path := filepath.Join(s.Paths.ConfigDir, OverlayFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var overlay Settings
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergo.Merge(s, overlay, mergo.WithOverride); err != nil {
		return NewLoadError(path, err)
	}
	return nil
}

// applyEnv overrides settings from the environment. Set-but-empty
// variables count as unset.
func applyEnv(s *Settings) {
	envStr(&s.Paths.WorkspaceRoot, "WORKSPACE_ROOT")
	envStr(&s.Paths.QueueRoot, "QUEUE_ROOT")
	envStr(&s.Paths.KnowledgeBasePath, "KNOWLEDGE_BASE_PATH")

	envStr(&s.Slack.BotToken, "SLACK_BOT_TOKEN")
	envStr(&s.Slack.ChannelID, "SLACK_CHANNEL_ID")
	envList(&s.Slack.AllowedUsers, "SLACK_ALLOWED_USERS")

	envStr(&s.S3.Bucket, "S3_BUCKET")
	envStr(&s.S3.Region, "S3_REGION")
	envStr(&s.S3.Prefix, "S3_PREFIX")

	envStr(&s.VideoGen.APIKey, "VIDEOGEN_API_KEY")
	envStr(&s.VideoGen.BaseURL, "VIDEOGEN_BASE_URL")

	envInt(&s.SideGen.MaxClips, "SIDEGEN_MAX_CLIPS")
	envInt(&s.SideGen.TimeoutS, "SIDEGEN_TIMEOUT_S")
	envInt(&s.SideGen.CropPixels, "SIDEGEN_CROP_PIXELS")

	envStr(&s.Media.YtDlpBin, "YTDLP_BIN")
	envStr(&s.Media.FfmpegBin, "FFMPEG_BIN")
	envStr(&s.Media.FfprobeBin, "FFPROBE_BIN")

	envStr(&s.Agent.CLIBin, "AGENT_CLI_BIN")
	envStr(&s.Agent.Model, "AGENT_MODEL")
	envStr(&s.Agent.FallbackModel, "AGENT_FALLBACK_MODEL")
	envInt(&s.Agent.TimeoutS, "AGENT_TIMEOUT_S")

	envFloat(&s.Throttle.MemoryFloorGiB, "THROTTLE_MEMORY_FLOOR_GIB")
	envFloat(&s.Throttle.CPUCeiling, "THROTTLE_CPU_CEILING")
	envFloat(&s.Throttle.TemperatureCeilingC, "THROTTLE_TEMPERATURE_CEILING_C")
	envInt(&s.Throttle.PollIntervalS, "THROTTLE_POLL_INTERVAL_S")

	envInt(&s.Daemon.WatchdogWindowS, "WATCHDOG_WINDOW_S")
	envInt(&s.Daemon.QueueRetentionDays, "QUEUE_RETENTION_DAYS")

	envStr(&s.API.ListenAddr, "API_LISTEN_ADDR")
	envStr(&s.API.AuthToken, "API_AUTH_TOKEN")
}

func envStr(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(dst *int, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment variable", "name", name, "value", v)
		return
	}
	*dst = n
}

func envFloat(dst *float64, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment variable", "name", name, "value", v)
		return
	}
	*dst = f
}

func envList(dst *[]string, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
