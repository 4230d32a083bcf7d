// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ChannelTOML is the on-disk TOML representation of a single channel's
// configuration, matching the field layout the original ffplayout-api
// dumps to its channel config file.
type ChannelTOML struct {
	ChannelID          string   `toml:"channel_id"`
	OutputMode         string   `toml:"output_mode"`
	FFmpegLogLevel     string   `toml:"ffmpeg_log_level"`
	IgnoreLines        []string `toml:"ignore_lines,omitempty"`
	IngestEnable       bool     `toml:"ingest_enable"`
	TaskHookPath       string   `toml:"task_hook_path,omitempty"`
	TaskHookEnable     bool     `toml:"task_hook_enable"`
	DecoderInputPrefix []string `toml:"decoder_input_prefix,omitempty"`
	ExtraFilterArgs    []string `toml:"extra_filter_args,omitempty"`
	VTTEnable          bool     `toml:"vtt_enable"`
	ProcessingMode     string   `toml:"processing_mode,omitempty"`
	SourceMode         string   `toml:"source_mode,omitempty"`
	PlaylistDir        string   `toml:"playlist_dir,omitempty"`
	FolderPath         string   `toml:"folder_path,omitempty"`
	StreamURL          string   `toml:"stream_url,omitempty"`
	HLSOutputDir       string   `toml:"hls_output_dir,omitempty"`
	IngestInputPrefix  []string `toml:"ingest_input_prefix,omitempty"`
	IngestListenAddr   string   `toml:"ingest_listen_addr,omitempty"`
}

// channelConfigToTOML converts a ChannelConfig to its TOML wire form.
func channelConfigToTOML(id string, cc ChannelConfig) ChannelTOML {
	return ChannelTOML{
		ChannelID:          id,
		OutputMode:         cc.OutputMode,
		FFmpegLogLevel:     cc.FFmpegLogLevel,
		IgnoreLines:        cc.IgnoreLines,
		IngestEnable:       cc.IngestEnable,
		TaskHookPath:       cc.TaskHookPath,
		TaskHookEnable:     cc.TaskHookEnable,
		DecoderInputPrefix: cc.DecoderInputPrefix,
		ExtraFilterArgs:    cc.ExtraFilterArgs,
		VTTEnable:          cc.VTTEnable,
		ProcessingMode:     cc.ProcessingMode,
		SourceMode:         cc.SourceMode,
		PlaylistDir:        cc.PlaylistDir,
		FolderPath:         cc.FolderPath,
		StreamURL:          cc.StreamURL,
		HLSOutputDir:       cc.HLSOutputDir,
		IngestInputPrefix:  cc.IngestInputPrefix,
		IngestListenAddr:   cc.IngestListenAddr,
	}
}

// tomlToChannelConfig converts a TOML wire form back into a ChannelConfig.
func tomlToChannelConfig(ct ChannelTOML) ChannelConfig {
	return ChannelConfig{
		ChannelID:          ct.ChannelID,
		OutputMode:         ct.OutputMode,
		FFmpegLogLevel:     ct.FFmpegLogLevel,
		IgnoreLines:        ct.IgnoreLines,
		IngestEnable:       ct.IngestEnable,
		TaskHookPath:       ct.TaskHookPath,
		TaskHookEnable:     ct.TaskHookEnable,
		DecoderInputPrefix: ct.DecoderInputPrefix,
		ExtraFilterArgs:    ct.ExtraFilterArgs,
		VTTEnable:          ct.VTTEnable,
		ProcessingMode:     ct.ProcessingMode,
		SourceMode:         ct.SourceMode,
		PlaylistDir:        ct.PlaylistDir,
		FolderPath:         ct.FolderPath,
		StreamURL:          ct.StreamURL,
		HLSOutputDir:       ct.HLSOutputDir,
		IngestInputPrefix:  ct.IngestInputPrefix,
		IngestListenAddr:   ct.IngestListenAddr,
	}
}

// ExportChannelTOML writes a single channel's configuration to a TOML file,
// mirroring the per-channel config dump the original ffplayout-api exposes
// over its REST API.
//
// Parameters:
//   - cc: Channel configuration to export
//   - channelID: Channel identifier used as the TOML channel_id field
//   - path: Destination file path
//
// Returns:
//   - error: if marshaling or writing fails
func ExportChannelTOML(cc ChannelConfig, channelID, path string) error {
	ct := channelConfigToTOML(channelID, cc)

	data, err := toml.Marshal(ct)
	if err != nil {
		return fmt.Errorf("failed to marshal channel config to TOML: %w", err)
	}

	// #nosec G306 -- config file needs to be readable by service
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write TOML config: %w", err)
	}

	return nil
}

// ImportChannelTOML reads a single channel's configuration from a TOML file.
//
// Parameters:
//   - path: Source TOML file path
//
// Returns:
//   - channelID: Channel identifier read from the file
//   - ChannelConfig: Parsed channel configuration
//   - error: if the file cannot be read or parsed
func ImportChannelTOML(path string) (string, ChannelConfig, error) {
	// #nosec G304 -- path is caller-provided config file path
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ChannelConfig{}, fmt.Errorf("failed to read TOML config: %w", err)
	}

	var ct ChannelTOML
	if err := toml.Unmarshal(data, &ct); err != nil {
		return "", ChannelConfig{}, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return ct.ChannelID, tomlToChannelConfig(ct), nil
}

// ExportConfigTOML dumps the entire configuration (all channels plus the
// default) as a TOML document keyed by channel id, for operators migrating
// from or interoperating with TOML-based playout tooling.
//
// Parameters:
//   - cfg: Configuration to export
//   - path: Destination file path
//
// Returns:
//   - error: if marshaling or writing fails
func ExportConfigTOML(cfg *Config, path string) error {
	doc := make(map[string]ChannelTOML, len(cfg.Channels)+1)
	doc["default"] = channelConfigToTOML("default", cfg.Default)
	for id, cc := range cfg.Channels {
		doc[id] = channelConfigToTOML(id, cc)
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config to TOML: %w", err)
	}

	// #nosec G306 -- config file needs to be readable by service
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write TOML config: %w", err)
	}

	return nil
}

// ImportConfigTOML reads a full multi-channel TOML document produced by
// ExportConfigTOML (or an equivalent ffplayout-api dump) and builds a Config.
//
// Parameters:
//   - path: Source TOML file path
//
// Returns:
//   - *Config: Parsed configuration
//   - error: if the file cannot be read or parsed
func ImportConfigTOML(path string) (*Config, error) {
	// #nosec G304 -- path is caller-provided config file path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read TOML config: %w", err)
	}

	var doc map[string]ChannelTOML
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Channels = make(map[string]ChannelConfig, len(doc))

	for id, ct := range doc {
		if id == "default" {
			cfg.Default = tomlToChannelConfig(ct)
			continue
		}
		cfg.Channels[id] = tomlToChannelConfig(ct)
	}

	return cfg, nil
}
