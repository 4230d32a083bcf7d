// SPDX-License-Identifier: MIT

package playout

import "github.com/ffplayout/playoutd/internal/config"

// OutputMode selects the encoder's output branch.
type OutputMode string

const (
	OutputDesktop OutputMode = "desktop"
	OutputHLS     OutputMode = "hls"
	OutputNull    OutputMode = "null"
	OutputStream  OutputMode = "stream"
)

// Snapshot is an immutable copy of a channel's configuration taken at
// player start. The player loop never re-reads live configuration; every
// decision for the lifetime of one Run call is made against this frozen
// copy, per the channel manager's "config" field contract.
type Snapshot struct {
	ChannelID          string
	OutputMode         OutputMode
	FFmpegLogLevel     string
	IgnoreLines        []string
	IngestEnable       bool
	TaskHookPath       string
	TaskHookEnable     bool
	DecoderInputPrefix []string
	ExtraFilterArgs    []string
	VTTEnable          bool
	ProcessingMode     string
	SourceMode         string
	PlaylistDir        string
	FolderPath         string
	StreamURL          string
	HLSOutputDir       string
	IngestInputPrefix  []string
	IngestListenAddr   string
}

// NewSnapshot builds an immutable Snapshot from a channel's live
// configuration, copying every slice so later mutation of cc cannot leak
// into a running player.
func NewSnapshot(channelID string, cc config.ChannelConfig) Snapshot {
	return Snapshot{
		ChannelID:          channelID,
		OutputMode:         OutputMode(cc.OutputMode),
		FFmpegLogLevel:     cc.FFmpegLogLevel,
		IgnoreLines:        append([]string(nil), cc.IgnoreLines...),
		IngestEnable:       cc.IngestEnable,
		TaskHookPath:       cc.TaskHookPath,
		TaskHookEnable:     cc.TaskHookEnable,
		DecoderInputPrefix: append([]string(nil), cc.DecoderInputPrefix...),
		ExtraFilterArgs:    append([]string(nil), cc.ExtraFilterArgs...),
		VTTEnable:          cc.VTTEnable,
		ProcessingMode:     cc.ProcessingMode,
		SourceMode:         cc.SourceMode,
		PlaylistDir:        cc.PlaylistDir,
		FolderPath:         cc.FolderPath,
		StreamURL:          cc.StreamURL,
		HLSOutputDir:       cc.HLSOutputDir,
		IngestInputPrefix:  append([]string(nil), cc.IngestInputPrefix...),
		IngestListenAddr:   cc.IngestListenAddr,
	}
}
