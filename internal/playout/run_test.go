// SPDX-License-Identifier: MIT

package playout

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// writeStubScript writes an executable shell script that stands in for
// ffmpeg in tests and returns its path.
func writeStubScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg-stub.sh")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub script: %v", err)
	}
	return path
}

// writeLoggingStub is a stub that records every invocation's argument list
// to logPath (one line per call) before behaving like a generic passthrough
// child: it drains whatever is piped to its stdin and writes a fixed chunk
// of bytes to its stdout, so it works whether the caller spawned it in the
// decoder, encoder, or ingest role.
func writeLoggingStub(t *testing.T, logPath string) string {
	t.Helper()
	body := "echo \"$@\" >> '" + logPath + "'\n" +
		"cat >/dev/null &\n" +
		"printf 'frame-bytes'\n" +
		"wait\n"
	return writeStubScript(t, body)
}

// withFFmpegStub points ffmpegProgram at path for the life of the test.
func withFFmpegStub(t *testing.T, path string) {
	t.Helper()
	prev := ffmpegProgram
	ffmpegProgram = path
	t.Cleanup(func() { ffmpegProgram = prev })
}

// listIterator replays a fixed list of nodes in order, then returns
// (nil, nil). It counts RequestReseed calls so tests can verify the
// re-anchor contract without a real schedule behind it.
type listIterator struct {
	mu       sync.Mutex
	nodes    []*Node
	pos      int
	reseeded int
}

func (it *listIterator) Next(ctx context.Context) (*Node, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.pos >= len(it.nodes) {
		return nil, nil
	}
	n := it.nodes[it.pos]
	it.pos++
	return n, nil
}

func (it *listIterator) RequestReseed() {
	it.mu.Lock()
	it.reseeded++
	it.mu.Unlock()
}

func (it *listIterator) reseedCount() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.reseeded
}

// TestRunSingleClipThenExhausted drives Run over one node with a stub
// decoder/encoder pair and checks it returns cleanly once the schedule is
// exhausted.
func TestRunSingleClipThenExhausted(t *testing.T) {
	stub := writeStubScript(t, "cat >/dev/null &\nprintf 'frame-bytes'\nwait\n")
	withFFmpegStub(t, stub)

	mgr := NewManager("morning", Snapshot{ChannelID: "morning", OutputMode: OutputNull, FFmpegLogLevel: "info"})
	src := &listIterator{nodes: []*Node{{Source: "clip.mp4", Cmd: []string{"-i", "clip.mp4"}}}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Run(ctx, mgr, src, discardLogger()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

// TestRunSkipsNodeMarkedSkip verifies that a node flagged Skip never reaches
// buildDecoderArgs/Spawn: its own command tokens must never appear in any
// invocation the stub records.
func TestRunSkipsNodeMarkedSkip(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "invocations.log")
	stub := writeLoggingStub(t, logPath)
	withFFmpegStub(t, stub)

	mgr := NewManager("morning", Snapshot{ChannelID: "morning", OutputMode: OutputNull, FFmpegLogLevel: "info"})
	src := &listIterator{nodes: []*Node{
		{Source: "skip-me", Skip: true, Cmd: []string{"-i", "skip-sentinel.mp4"}},
		{Source: "clip.mp4", Cmd: []string{"-i", "clip.mp4"}},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Run(ctx, mgr, src, discardLogger()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read invocation log: %v", err)
	}
	log := string(data)

	if strings.Contains(log, "skip-sentinel.mp4") {
		t.Errorf("expected the skipped node's command never to be spawned, invocations:\n%s", log)
	}
	if !strings.Contains(log, "clip.mp4") {
		t.Errorf("expected the non-skipped node's decoder to be spawned, invocations:\n%s", log)
	}
}

// TestRunStopsPromptlyOnContextCancellation covers the graceful-stop path:
// canceling ctx mid-playback must unwind Run promptly once the encoder
// exits on its stop signal.
func TestRunStopsPromptlyOnContextCancellation(t *testing.T) {
	stub := writeStubScript(t, "exec sleep 30\n")
	withFFmpegStub(t, stub)

	mgr := NewManager("morning", Snapshot{ChannelID: "morning", OutputMode: OutputNull, FFmpegLogLevel: "info"})
	src := &listIterator{nodes: []*Node{{Source: "clip.mp4", Cmd: []string{"-i", "clip.mp4"}}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, mgr, src, discardLogger()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return promptly after context cancellation")
	}
}

// TestRunLoopReseedsIteratorAfterIngestPreemption verifies the re-anchor
// contract: once an ingest feed has preempted and then released playback,
// runLoop must call the iterator's RequestReseed and clear list_init before
// drawing the next node.
func TestRunLoopReseedsIteratorAfterIngestPreemption(t *testing.T) {
	stub := writeStubScript(t, "exec sleep 30\n")
	withFFmpegStub(t, stub)

	cfg := Snapshot{ChannelID: "morning", FFmpegLogLevel: "info"}
	mgr := NewManager("morning", cfg)
	mgr.SetIngestStdout(&onceThenReleaseReader{data: []byte("live-bytes"), mgr: mgr})
	mgr.SetIngestAlive(true)

	src := &listIterator{nodes: []*Node{{Source: "clip.mp4", Cmd: []string{"-i", "clip.mp4"}}}}

	var encOut bytes.Buffer
	encWriter := bufio.NewWriterSize(&encOut, 64*1024)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := runLoop(ctx, mgr, src, cfg, encWriter, discardLogger()); err != nil {
		t.Fatalf("runLoop() error = %v", err)
	}

	if src.reseedCount() != 1 {
		t.Errorf("RequestReseed called %d times, want 1", src.reseedCount())
	}
	if mgr.ListInit() {
		t.Error("expected list_init to be cleared once the iterator was reseeded")
	}
	if !bytes.Contains(encOut.Bytes(), []byte("live-bytes")) {
		t.Errorf("expected the live feed's bytes to reach the encoder, got %q", encOut.Bytes())
	}
}
