// SPDX-License-Identifier: MIT

package playout

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Role tags a log record with which child process emitted it.
type Role string

const (
	RoleDecoder Role = "decoder"
	RoleEncoder Role = "encoder"
	RoleIngest  Role = "ingest"
	RolePlayer  Role = "player"
)

// drainStderr reads lines from a child's stderr until EOF, dropping any
// line that contains a configured ignore substring and logging the rest
// under the given role and channel. A read error is logged once and
// returned to the caller, which treats it as recoverable rather than
// fatal to the channel.
func drainStderr(logger *slog.Logger, r io.Reader, ignore []string, role Role, channelID string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if lineIgnored(line, ignore) {
			continue
		}
		logger.Info(line, "role", string(role), "channel", channelID)
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("stderr drain read error", "role", string(role), "channel", channelID, "error", err)
		return fmt.Errorf("%s stderr drain: %w", role, err)
	}

	return nil
}

func lineIgnored(line string, ignore []string) bool {
	for _, substr := range ignore {
		if substr != "" && strings.Contains(line, substr) {
			return true
		}
	}
	return false
}
