package config

import (
	"fmt"
	"net/url"
)

// Validate checks the full settings once, collecting every problem so a
// single failed start reports the complete fix list.
func (s *Settings) Validate() error {
	cerr := &ConfigurationError{}

	if s.Agent.CLIBin == "" {
		cerr.Missing = append(cerr.Missing, "AGENT_CLI_BIN")
	}
	if s.Agent.TimeoutS <= 0 {
		cerr.invalid("AGENT_TIMEOUT_S", "must be positive seconds")
	}

	if s.Slack.Enabled() && s.Slack.ChannelID == "" {
		cerr.Missing = append(cerr.Missing, "SLACK_CHANNEL_ID")
	}

	if s.VideoGen.Enabled() {
		if s.VideoGen.APIKey == "" {
			cerr.Missing = append(cerr.Missing, "VIDEOGEN_API_KEY")
		}
		if u, err := url.Parse(s.VideoGen.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			cerr.invalid("VIDEOGEN_BASE_URL", "must be an http(s) URL")
		}
	}

	if s.API.Enabled() && s.API.AuthToken == "" {
		cerr.Missing = append(cerr.Missing, "API_AUTH_TOKEN")
	}

	if s.SideGen.MaxClips < 0 {
		cerr.invalid("SIDEGEN_MAX_CLIPS", "must not be negative")
	}
	if s.SideGen.TimeoutS <= 0 {
		cerr.invalid("SIDEGEN_TIMEOUT_S", "must be positive seconds")
	}
	if s.SideGen.CropPixels < 0 {
		cerr.invalid("SIDEGEN_CROP_PIXELS", "must not be negative")
	}

	if s.Throttle.MemoryFloorGiB < 0 {
		cerr.invalid("THROTTLE_MEMORY_FLOOR_GIB", "must not be negative")
	}
	if s.Throttle.CPUCeiling <= 0 || s.Throttle.CPUCeiling > 1 {
		cerr.invalid("THROTTLE_CPU_CEILING", "must be in (0, 1]")
	}
	if s.Throttle.PollIntervalS <= 0 {
		cerr.invalid("THROTTLE_POLL_INTERVAL_S", "must be positive seconds")
	}

	if s.Daemon.WatchdogWindowS <= 0 {
		cerr.invalid("WATCHDOG_WINDOW_S", "must be positive seconds")
	}
	if s.Daemon.QueueRetentionDays < 0 {
		cerr.invalid("QUEUE_RETENTION_DAYS", "must not be negative")
	}

	if cerr.Empty() {
		return nil
	}
	return cerr
}

func (e *ConfigurationError) invalid(name, reason string) {
	e.Invalid = append(e.Invalid, fmt.Sprintf("%s: %s", name, reason))
}
