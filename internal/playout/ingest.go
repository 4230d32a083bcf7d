// SPDX-License-Identifier: MIT

package playout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ffplayout/playoutd/internal/util"
)

// ingestRestartDelay separates one ingest listener's exit from the next
// spawn attempt, so a misconfigured listen address cannot spin the channel.
// Tests shrink it to avoid waiting out the production delay.
var ingestRestartDelay = 2 * time.Second

// livenessReader wraps an ingest child's stdout and tracks a manager's
// ingest_is_alive flag against read outcomes: it sets the flag true on any
// read that returns data, and clears it on EOF or error, exactly tracking
// whether the stream currently has a live feed to offer.
type livenessReader struct {
	r   io.Reader
	mgr *Manager
}

func (lr *livenessReader) Read(p []byte) (int, error) {
	n, err := lr.r.Read(p)
	if n > 0 {
		lr.mgr.SetIngestAlive(true)
	}
	if err != nil {
		lr.mgr.SetIngestAlive(false)
	}
	return n, err
}

// buildIngestArgs constructs the argument list for the ingest listener
// ffmpeg instance: a TCP/RTMP listen socket feeding raw bytes into the
// player loop whenever a remote source preempts scheduled playback.
func buildIngestArgs(cfg Snapshot) []string {
	args := []string{"-hide_banner", "-nostats", "-v", "level+" + cfg.FFmpegLogLevel}
	args = append(args, cfg.IngestInputPrefix...)
	args = append(args, "-i", cfg.IngestListenAddr, "-f", "mpegts", "-")
	return args
}

// RunIngest spawns and supervises the ingest listener for the lifetime of
// the channel: it respawns the listener after every exit, so a live feed
// can preempt scheduled playback more than once over a channel's 24/7 run.
// It stops respawning once ctx is canceled or the channel itself is no
// longer alive.
func RunIngest(ctx context.Context, mgr *Manager, logger *slog.Logger) error {
	for mgr.IsAlive() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		runIngestOnce(ctx, mgr, logger)

		if !mgr.IsAlive() {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(ingestRestartDelay):
		}
	}
	return nil
}

// runIngestOnce spawns a single ingest listener attempt and waits for it to
// exit. Spawn failure is a warning, not fatal: a channel with no live feed
// simply falls back to scheduled playback, so the caller is not expected to
// abort the player loop over it.
func runIngestOnce(ctx context.Context, mgr *Manager, logger *slog.Logger) {
	cfg := mgr.Config()

	proc, err := Spawn(ctx, ffmpegProgram, buildIngestArgs(cfg), StdioDiscard, StdioPipe, StdioPipe)
	if err != nil {
		logger.Warn("ingest spawn failed", "channel", cfg.ChannelID, "error", err)
		return
	}
	mgr.SetIngestProcess(proc)

	stdout := proc.TakeStdout()
	mgr.SetIngestStdout(&livenessReader{r: stdout, mgr: mgr})

	stderr := proc.TakeStderr()
	errCh := make(chan error, 1)
	util.SafeGoWithRecover("ingest-stderr", nil, func() error {
		return drainStderr(logger, stderr, cfg.IgnoreLines, RoleIngest, cfg.ChannelID)
	}, errCh, func(r interface{}, stack []byte) {
		logger.Error("ingest stderr drain panicked", "channel", cfg.ChannelID, "panic", fmt.Sprint(r))
	})

	waitErr := proc.Wait()

	mgr.SetIngestAlive(false)
	mgr.ClearIngestStdout()

	if waitErr != nil {
		logger.Warn("ingest process exited", "channel", cfg.ChannelID, "error", waitErr)
	}

	select {
	case err := <-errCh:
		if err != nil {
			logger.Warn("ingest stderr drain error", "channel", cfg.ChannelID, "error", err)
		}
	default:
	}
}
