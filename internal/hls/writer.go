// SPDX-License-Identifier: MIT

// Package hls manages the on-disk output directory for a channel's HLS
// encoder branch. Segmenting itself is done by ffmpeg's own HLS muxer; this
// package only ensures the directory exists ahead of time and accounts for
// segments afterward, for health and diagnostics use.
package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Writer locates one channel's HLS output directory and playlist file.
type Writer struct {
	dir          string
	playlistName string
}

// NewWriter returns a Writer for the given output directory and playlist
// file name (e.g. "morning.m3u8").
func NewWriter(dir, playlistName string) *Writer {
	return &Writer{dir: dir, playlistName: playlistName}
}

// PlaylistPath returns the full path ffmpeg should be told to write its
// playlist to.
func (w *Writer) PlaylistPath() string {
	return filepath.Join(w.dir, w.playlistName)
}

// Ensure creates the output directory if it does not already exist.
func (w *Writer) Ensure() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create hls output dir %s: %w", w.dir, err)
	}
	return nil
}

// SegmentCount returns the number of .ts segment files currently present in
// the output directory. A falling or stalled count across polls is a signal
// that the encoder has stopped producing output, useful for health checks.
func (w *Writer) SegmentCount() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read hls output dir %s: %w", w.dir, err)
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".ts") {
			count++
		}
	}
	return count, nil
}
