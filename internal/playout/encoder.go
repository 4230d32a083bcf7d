// SPDX-License-Identifier: MIT

package playout

import (
	"context"
	"fmt"

	"github.com/ffplayout/playoutd/internal/hls"
)

// buildEncoderArgs constructs the tail of the encoder's ffmpeg invocation,
// the part that is fixed for the channel's entire run and depends only on
// the output mode. The encoder always reads raw bytes from stdin; node
// switching and ingest preemption happen upstream of it and are invisible
// to the encoder itself.
func buildEncoderArgs(cfg Snapshot) ([]string, error) {
	args := []string{"-hide_banner", "-nostats", "-v", "level+" + cfg.FFmpegLogLevel, "-i", "pipe:0"}

	switch cfg.OutputMode {
	case OutputDesktop:
		args = append(args, "-f", "sdl2", cfg.ChannelID)
	case OutputNull:
		args = append(args, "-f", "null", "-")
	case OutputStream:
		if cfg.StreamURL == "" {
			return nil, fmt.Errorf("stream output mode requires a stream url")
		}
		args = append(args, "-c", "copy", "-f", "flv", cfg.StreamURL)
	case OutputHLS:
		w := hls.NewWriter(cfg.HLSOutputDir, cfg.ChannelID+".m3u8")
		if err := w.Ensure(); err != nil {
			return nil, fmt.Errorf("prepare hls output dir: %w", err)
		}
		args = append(args,
			"-c", "copy",
			"-f", "hls",
			"-hls_time", "6",
			"-hls_list_size", "10",
			"-hls_flags", "delete_segments+append_list",
			w.PlaylistPath(),
		)
	default:
		return nil, fmt.Errorf("unknown output mode %q", cfg.OutputMode)
	}

	return args, nil
}

// spawnEncoder starts the channel's encoder child with stdin piped for the
// player loop to feed and stderr piped for draining. Spawn failure here is
// fatal to the channel: with no encoder there is nowhere for decoded bytes
// to go.
func spawnEncoder(ctx context.Context, cfg Snapshot) (*ChildProcess, error) {
	args, err := buildEncoderArgs(cfg)
	if err != nil {
		return nil, err
	}
	proc, err := Spawn(ctx, ffmpegProgram, args, StdioPipe, StdioDiscard, StdioPipe)
	if err != nil {
		return nil, fmt.Errorf("spawn encoder: %w", err)
	}
	return proc, nil
}
