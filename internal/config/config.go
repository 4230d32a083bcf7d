// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

// ConfigFilePath is the default location for the engine configuration file.
const ConfigFilePath = "/etc/playoutd/config.yaml"

// Config represents the complete playout engine configuration.
type Config struct {
	// Channels contains per-channel configuration keyed by sanitized channel id.
	Channels map[string]ChannelConfig `yaml:"channels" koanf:"channels"`

	// Default configuration used when a channel does not override a field.
	Default ChannelConfig `yaml:"default" koanf:"default"`

	// Restart controls the supervisor's backoff policy for a channel that exits unexpectedly.
	Restart RestartConfig `yaml:"restart" koanf:"restart"`

	// Egress integration settings (the receiving server for the stream output mode).
	Egress EgressConfig `yaml:"egress" koanf:"egress"`

	// Monitor settings for health checks.
	Monitor MonitorConfig `yaml:"monitor" koanf:"monitor"`
}

// ChannelConfig is the per-channel configuration snapshot the player loop
// reads once at start and holds for the life of that run.
type ChannelConfig struct {
	// ChannelID identifies the channel in logs, lock files, and health reports.
	ChannelID string `yaml:"channel_id" koanf:"channel_id"`

	// OutputMode selects the encoder branch: desktop, hls, null, or stream.
	OutputMode string `yaml:"output_mode" koanf:"output_mode"`

	// FFmpegLogLevel is the ffmpeg -v level, lowercased (e.g. "info", "warning").
	FFmpegLogLevel string `yaml:"ffmpeg_log_level" koanf:"ffmpeg_log_level"`

	// IgnoreLines lists stderr substrings to drop silently in the stderr drain.
	IgnoreLines []string `yaml:"ignore_lines" koanf:"ignore_lines"`

	// IngestEnable spawns the ingest supervisor at player start when true.
	IngestEnable bool `yaml:"ingest_enable" koanf:"ingest_enable"`

	// TaskHookPath is a one-shot external command run per node when TaskHookEnable is set.
	TaskHookPath   string `yaml:"task_hook_path" koanf:"task_hook_path"`
	TaskHookEnable bool   `yaml:"task_hook_enable" koanf:"task_hook_enable"`

	// DecoderInputPrefix is inserted before the node's own command tokens.
	DecoderInputPrefix []string `yaml:"decoder_input_prefix" koanf:"decoder_input_prefix"`

	// ExtraFilterArgs is appended to the node's filter cmd/map, process-wide.
	ExtraFilterArgs []string `yaml:"extra_filter_args" koanf:"extra_filter_args"`

	// VTTEnable turns on the subtitle-stream mapping rule for the decoder's vtt sidecar input.
	VTTEnable bool `yaml:"vtt_enable" koanf:"vtt_enable"`

	// ProcessingMode is a free-form label surfaced in logs only.
	ProcessingMode string `yaml:"processing_mode" koanf:"processing_mode"`

	// SourceMode selects how nodes are produced: "playlist" or "folder".
	SourceMode string `yaml:"source_mode" koanf:"source_mode"`

	// PlaylistDir holds dated JSON playlists (used when SourceMode == "playlist").
	PlaylistDir string `yaml:"playlist_dir" koanf:"playlist_dir"`

	// FolderPath is listed for playable media (used when SourceMode == "folder").
	FolderPath string `yaml:"folder_path" koanf:"folder_path"`

	// StreamURL is the destination for OutputMode == "stream" (e.g. an RTMP/SRT URL).
	StreamURL string `yaml:"stream_url" koanf:"stream_url"`

	// HLSOutputDir is the segment directory for OutputMode == "hls".
	HLSOutputDir string `yaml:"hls_output_dir" koanf:"hls_output_dir"`

	// IngestInputPrefix is inserted before the configured ingest command tokens.
	IngestInputPrefix []string `yaml:"ingest_input_prefix" koanf:"ingest_input_prefix"`
	IngestListenAddr  string   `yaml:"ingest_listen_addr" koanf:"ingest_listen_addr"`
}

// RestartConfig controls the channel supervisor's restart backoff.
type RestartConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay" koanf:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" koanf:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts" koanf:"max_attempts"`
	StopTimeout  time.Duration `yaml:"stop_timeout" koanf:"stop_timeout"`
}

// EgressConfig contains the receiving-server REST API settings used for diagnostics.
type EgressConfig struct {
	APIURL string `yaml:"api_url" koanf:"api_url"` // e.g. "http://localhost:9997"
}

// MonitorConfig contains health monitoring settings.
type MonitorConfig struct {
	Enabled            bool          `yaml:"enabled" koanf:"enabled"`
	Interval           time.Duration `yaml:"interval" koanf:"interval"`
	StallCheckInterval time.Duration `yaml:"stall_check_interval" koanf:"stall_check_interval"`
	MaxStallChecks     int           `yaml:"max_stall_checks" koanf:"max_stall_checks"`
	RestartUnhealthy   bool          `yaml:"restart_unhealthy" koanf:"restart_unhealthy"`
	HealthAddr         string        `yaml:"health_addr" koanf:"health_addr"`
	DiskLowThresholdMB int64         `yaml:"disk_low_threshold_mb" koanf:"disk_low_threshold_mb"`
}

// LoadConfig reads and parses the engine configuration file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 - Config path is from administrator-controlled configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// atomicFile abstracts file operations used by Save for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

// atomicCreateTemp is the injectable temp-file creator used by Save.
type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save writes the configuration to a YAML file atomically (temp file + rename).
func (c *Config) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *Config) saveWith(path string, createTemp atomicCreateTemp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)

	tmpFile, err := createTemp(dir, ".config.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}

	// Config files may contain sensitive settings and should not be world-readable.
	// #nosec G302 - Config file restricted to owner+group for security
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil { // #nosec G703 -- path is from CLI flag/config, not web request input
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	success = true
	return nil
}

// GetChannelConfig returns the configuration for a channel, merged over the default.
//
// Lookup: channel-specific values override the default for any field that is
// explicitly set (non-zero/non-empty); unset fields inherit from Default.
func (c *Config) GetChannelConfig(channelID string) ChannelConfig {
	result := c.Default
	result.ChannelID = channelID

	chCfg, ok := c.Channels[channelID]
	if !ok {
		return result
	}

	if chCfg.OutputMode != "" {
		result.OutputMode = chCfg.OutputMode
	}
	if chCfg.FFmpegLogLevel != "" {
		result.FFmpegLogLevel = chCfg.FFmpegLogLevel
	}
	if len(chCfg.IgnoreLines) > 0 {
		result.IgnoreLines = chCfg.IgnoreLines
	}
	result.IngestEnable = chCfg.IngestEnable || result.IngestEnable
	if chCfg.TaskHookPath != "" {
		result.TaskHookPath = chCfg.TaskHookPath
	}
	result.TaskHookEnable = chCfg.TaskHookEnable || result.TaskHookEnable
	if len(chCfg.DecoderInputPrefix) > 0 {
		result.DecoderInputPrefix = chCfg.DecoderInputPrefix
	}
	if len(chCfg.ExtraFilterArgs) > 0 {
		result.ExtraFilterArgs = chCfg.ExtraFilterArgs
	}
	result.VTTEnable = chCfg.VTTEnable || result.VTTEnable
	if chCfg.ProcessingMode != "" {
		result.ProcessingMode = chCfg.ProcessingMode
	}
	if chCfg.SourceMode != "" {
		result.SourceMode = chCfg.SourceMode
	}
	if chCfg.PlaylistDir != "" {
		result.PlaylistDir = chCfg.PlaylistDir
	}
	if chCfg.FolderPath != "" {
		result.FolderPath = chCfg.FolderPath
	}
	if chCfg.StreamURL != "" {
		result.StreamURL = chCfg.StreamURL
	}
	if chCfg.HLSOutputDir != "" {
		result.HLSOutputDir = chCfg.HLSOutputDir
	}
	if len(chCfg.IngestInputPrefix) > 0 {
		result.IngestInputPrefix = chCfg.IngestInputPrefix
	}
	if chCfg.IngestListenAddr != "" {
		result.IngestListenAddr = chCfg.IngestListenAddr
	}

	return result
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	if err := c.Default.Validate(); err != nil {
		return fmt.Errorf("default config: %w", err)
	}

	for id, chCfg := range c.Channels {
		if err := chCfg.ValidatePartial(); err != nil {
			return fmt.Errorf("channel %q: %w", id, err)
		}
	}

	if err := c.Restart.Validate(); err != nil {
		return fmt.Errorf("restart config: %w", err)
	}

	return nil
}

// Validate checks restart configuration for invalid values.
func (r *RestartConfig) Validate() error {
	if r.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	return nil
}

var validOutputModes = map[string]bool{"desktop": true, "hls": true, "null": true, "stream": true}

// Validate checks channel configuration for invalid values.
//
// Used for the default configuration, which must be complete.
func (d *ChannelConfig) Validate() error {
	if !validOutputModes[d.OutputMode] {
		return fmt.Errorf("output_mode must be one of desktop, hls, null, stream (got %q)", d.OutputMode)
	}
	if d.FFmpegLogLevel == "" {
		return fmt.Errorf("ffmpeg_log_level cannot be empty")
	}
	if d.SourceMode != "" && d.SourceMode != "playlist" && d.SourceMode != "folder" {
		return fmt.Errorf("source_mode must be playlist or folder")
	}
	return nil
}

// ValidatePartial checks channel configuration for invalid values, allowing
// fields to be omitted (they inherit from Default).
func (d *ChannelConfig) ValidatePartial() error {
	if d.OutputMode != "" && !validOutputModes[d.OutputMode] {
		return fmt.Errorf("output_mode must be one of desktop, hls, null, stream (got %q)", d.OutputMode)
	}
	if d.SourceMode != "" && d.SourceMode != "playlist" && d.SourceMode != "folder" {
		return fmt.Errorf("source_mode must be playlist or folder")
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Channels: make(map[string]ChannelConfig),
		Default: ChannelConfig{
			OutputMode:         "hls",
			FFmpegLogLevel:     "info",
			IgnoreLines:        []string{"Non-monotonic DTS"},
			IngestEnable:       false,
			TaskHookEnable:     false,
			DecoderInputPrefix: nil,
			ExtraFilterArgs:    nil,
			VTTEnable:          false,
			ProcessingMode:     "full",
			SourceMode:         "playlist",
			PlaylistDir:        "/var/lib/playoutd/playlists",
			HLSOutputDir:       "/var/lib/playoutd/hls",
		},
		Restart: RestartConfig{
			InitialDelay: 2 * time.Second,
			MaxDelay:     60 * time.Second,
			MaxAttempts:  0, // 0 = unlimited, matching a 24/7 channel's expectations
			StopTimeout:  5 * time.Second,
		},
		Egress: EgressConfig{
			APIURL: "http://localhost:9997",
		},
		Monitor: MonitorConfig{
			Enabled:            true,
			Interval:           5 * time.Minute,
			StallCheckInterval: 60 * time.Second,
			MaxStallChecks:     3,
			RestartUnhealthy:   true,
			HealthAddr:         "127.0.0.1:9998",
			DiskLowThresholdMB: 1024,
		},
	}
}
