// SPDX-License-Identifier: MIT

package playout

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ffplayout/playoutd/internal/util"
)

// Iterator yields the schedule of nodes a channel plays, in order. Next
// returns (nil, nil) once the schedule is exhausted for this Run call --
// an absent node, distinct from a malformed one, which is a non-nil error.
//
// RequestReseed asks the iterator to re-anchor its schedule to the current
// wall clock on the next Next call, rather than resuming where a preempted
// node left off. runLoop calls it once ingest playback has released the
// channel back to the schedule.
type Iterator interface {
	Next(ctx context.Context) (*Node, error)
	RequestReseed()
}

const copyBufferSize = 64 * 1024

// Run drives one channel's entire playout lifecycle: it spawns the
// encoder once, then repeatedly draws nodes from src, spawning one decoder
// per node and pumping bytes from whichever source -- decoder or, when a
// live feed has preempted it, the ingest listener -- is currently the
// channel's producer. The node loop ends when src is exhausted, ctx is
// canceled, or an unrecoverable error occurs. When ingest is enabled, Run
// then also waits for the ingest supervisor, which returns only once ctx is
// canceled or the manager is marked not alive.
func Run(ctx context.Context, mgr *Manager, src Iterator, logger *slog.Logger) error {
	cfg := mgr.Config()
	logger = logger.With("channel", cfg.ChannelID)

	encoderProc, err := spawnEncoder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}
	mgr.SetEncoder(encoderProc)

	encStdin := encoderProc.TakeStdin()
	encWriter := bufio.NewWriterSize(encStdin, copyBufferSize)

	encStderr := encoderProc.TakeStderr()
	encStderrErr := make(chan error, 1)
	util.SafeGoWithRecover("encoder-stderr", nil, func() error {
		return drainStderr(logger, encStderr, cfg.IgnoreLines, RoleEncoder, cfg.ChannelID)
	}, encStderrErr, func(r interface{}, stack []byte) {
		logger.Error("encoder stderr drain panicked", "panic", fmt.Sprint(r))
	})

	var ingestDone chan struct{}
	if cfg.IngestEnable {
		ingestDone = make(chan struct{})
		util.SafeGo("ingest-supervisor", nil, func() {
			defer close(ingestDone)
			if err := RunIngest(ctx, mgr, logger); err != nil {
				logger.Warn("ingest supervisor exited", "error", err)
			}
		}, func(r interface{}, stack []byte) {
			logger.Error("ingest supervisor panicked", "panic", fmt.Sprint(r))
		})
	}

	runErr := runLoop(ctx, mgr, src, cfg, encWriter, logger)

	time.Sleep(1 * time.Second)

	if ingestDone != nil {
		<-ingestDone
	}

	if err := mgr.StopAll(false); err != nil {
		logger.Warn("stop all children", "error", err)
	}

	_ = encStdin.Close()
	<-encStderrErr

	if runErr != nil {
		return runErr
	}
	return nil
}

// runLoop is the outer per-node loop: draw a node, spawn its decoder, pump
// bytes until the decoder (or a preempting ingest feed) runs dry, advance.
func runLoop(ctx context.Context, mgr *Manager, src Iterator, cfg Snapshot, encWriter *bufio.Writer, logger *slog.Logger) error {
	buf := make([]byte, copyBufferSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if mgr.ListInit() {
			src.RequestReseed()
			mgr.SetListInit(false)
		}

		node, err := src.Next(ctx)
		if err != nil {
			return fmt.Errorf("advance schedule: %w", err)
		}
		if node == nil || node.Cmd == nil {
			return nil
		}

		mgr.SetCurrentMedia(node)

		if !mgr.IsAlive() {
			return nil
		}

		if node.Skip {
			continue
		}

		runTaskHook(ctx, cfg, *node, logger, cfg.ChannelID)

		decArgs := buildDecoderArgs(cfg, *node)
		decProc, err := Spawn(ctx, ffmpegProgram, decArgs, StdioDiscard, StdioPipe, StdioPipe)
		if err != nil {
			logger.Warn("decoder spawn failed, skipping node", "source", node.Source, "error", err)
			continue
		}
		mgr.SetDecoder(decProc)

		decStdout := decProc.TakeStdout()
		decStderr := decProc.TakeStderr()

		stderrErr := make(chan error, 1)
		util.SafeGoWithRecover("decoder-stderr", nil, func() error {
			return drainStderr(logger, decStderr, cfg.IgnoreLines, RoleDecoder, cfg.ChannelID)
		}, stderrErr, func(r interface{}, stack []byte) {
			logger.Error("decoder stderr drain panicked", "panic", fmt.Sprint(r))
		})

		liveOn := false
		pumpErr := pump(mgr, decStdout, encWriter, buf, &liveOn, logger, cfg.ChannelID)

		_ = decProc.Wait()
		mgr.ClearDecoder()
		<-stderrErr

		if pumpErr != nil {
			return fmt.Errorf("pump node %s: %w", node.Source, pumpErr)
		}
	}
}

// pump copies bytes for a single node from whichever producer is currently
// live -- the decoder normally, or the ingest stream once a live feed has
// preempted it -- into the encoder, one read per iteration so the source
// choice is re-evaluated after every chunk. It never interleaves bytes from
// two producers within one write: each iteration reads from exactly one
// source and writes that chunk whole before looping.
func pump(mgr *Manager, decStdout io.Reader, encWriter *bufio.Writer, buf []byte, liveOn *bool, logger *slog.Logger, channelID string) error {
	for {
		live := mgr.IngestIsAlive()

		if live && !*liveOn {
			logger.Info("ingest feed preempting scheduled playback", "channel", channelID)
			if err := mgr.Stop(ProcDecoder); err != nil {
				logger.Warn("signal decoder stop", "error", err)
			}
			mgr.SetListInit(true)
			*liveOn = true
		} else if !live && *liveOn {
			logger.Info("ingest feed released, resuming scheduled playback", "channel", channelID)
			*liveOn = false
		}

		var n int
		var err error
		if live {
			n, err = mgr.ReadIngest(buf)
		} else {
			n, err = decStdout.Read(buf)
		}

		if n > 0 {
			if _, werr := encWriter.Write(buf[:n]); werr != nil {
				return fmt.Errorf("encoder write: %w", werr)
			}
			if ferr := encWriter.Flush(); ferr != nil {
				return fmt.Errorf("encoder flush: %w", ferr)
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read source: %w", err)
		}

		if n == 0 {
			return nil
		}
	}
}
