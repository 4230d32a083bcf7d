// SPDX-License-Identifier: MIT

package playout

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/ffplayout/playoutd/internal/util"
)

// runTaskHook fires the channel's configured external task hook for the
// current node, if enabled. It runs under util.SafeGo so a panic in the
// hook's goroutine plumbing cannot take down the channel, and it never
// blocks the player loop: a slow or broken hook must not stall playback.
func runTaskHook(ctx context.Context, cfg Snapshot, node Node, logger *slog.Logger, channelID string) {
	if !cfg.TaskHookEnable {
		return
	}
	if cfg.TaskHookPath == "" {
		logger.Warn("task hook enabled with no path configured", "channel", channelID)
		return
	}
	if _, err := os.Stat(cfg.TaskHookPath); err != nil {
		logger.Warn("task hook path not reachable", "channel", channelID, "path", cfg.TaskHookPath, "error", err)
		return
	}

	util.SafeGo("task-hook", nil, func() {
		cmd := exec.CommandContext(ctx, cfg.TaskHookPath)
		cmd.Env = append(os.Environ(),
			fmt.Sprintf("PLAYOUTD_CHANNEL=%s", channelID),
			fmt.Sprintf("PLAYOUTD_SOURCE=%s", node.Source),
		)
		if err := cmd.Run(); err != nil {
			logger.Warn("task hook run failed", "channel", channelID, "path", cfg.TaskHookPath, "error", err)
		}
	}, func(r interface{}, stack []byte) {
		logger.Error("task hook panicked", "channel", channelID, "panic", fmt.Sprint(r))
	})
}
