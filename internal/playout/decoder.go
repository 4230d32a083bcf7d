// SPDX-License-Identifier: MIT

package playout

import (
	"fmt"
	"strings"
)

// buildDecoderArgs assembles one node's decoder invocation in the exact
// order the encoder expects to see repeated across every node: global flags,
// any configured input prefix, the node's own input/seek/duration tokens,
// the node's filtergraph and map (if it carries one), an optional subtitle
// map when vtt support is enabled and one of the inputs assembled so far
// names a .vtt file, and finally the channel's configured tail arguments.
// The vtt check and -i count run over everything built up to that point --
// the configured input prefix can itself carry inputs ahead of the node's
// own, and those shift which input index the subtitle stream lands on.
func buildDecoderArgs(cfg Snapshot, node Node) []string {
	args := []string{"-hide_banner", "-nostats", "-v", "level+" + cfg.FFmpegLogLevel}
	args = append(args, cfg.DecoderInputPrefix...)
	args = append(args, node.Cmd...)

	if node.Filter != nil {
		args = append(args, node.Filter.Cmd()...)
		args = append(args, node.Filter.Map()...)
	}

	if cfg.VTTEnable && hasVTTArg(args) {
		idx := countDashI(args) - 1
		if idx < 0 {
			idx = 0
		}
		args = append(args, "-map", fmt.Sprintf("%d:s", idx), "-c:s", "copy")
	}

	args = append(args, cfg.ExtraFilterArgs...)

	return args
}

func hasVTTArg(cmd []string) bool {
	for _, a := range cmd {
		if strings.HasSuffix(a, ".vtt") {
			return true
		}
	}
	return false
}

func countDashI(cmd []string) int {
	n := 0
	for _, a := range cmd {
		if a == "-i" {
			n++
		}
	}
	return n
}
