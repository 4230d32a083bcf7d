package playout

import (
	"reflect"
	"testing"
)

type fakeFilter struct {
	cmd []string
	m   []string
}

func (f fakeFilter) Cmd() []string { return f.cmd }
func (f fakeFilter) Map() []string { return f.m }

func TestBuildDecoderArgsOrdering(t *testing.T) {
	cfg := Snapshot{
		FFmpegLogLevel:     "info",
		DecoderInputPrefix: []string{"-re"},
		ExtraFilterArgs:    []string{"-shortest"},
	}
	node := Node{Cmd: []string{"-i", "clip.mp4"}}

	got := buildDecoderArgs(cfg, node)
	want := []string{
		"-hide_banner", "-nostats", "-v", "level+info",
		"-re",
		"-i", "clip.mp4",
		"-shortest",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildDecoderArgs() = %v, want %v", got, want)
	}
}

func TestBuildDecoderArgsWithFilter(t *testing.T) {
	cfg := Snapshot{FFmpegLogLevel: "error"}
	node := Node{
		Cmd:    []string{"-i", "clip.mp4"},
		Filter: fakeFilter{cmd: []string{"-filter_complex", "scale=1280:720"}, m: []string{"-map", "[v]"}},
	}

	got := buildDecoderArgs(cfg, node)
	want := []string{
		"-hide_banner", "-nostats", "-v", "level+error",
		"-i", "clip.mp4",
		"-filter_complex", "scale=1280:720",
		"-map", "[v]",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildDecoderArgs() = %v, want %v", got, want)
	}
}

func TestBuildDecoderArgsVTTMapping(t *testing.T) {
	cfg := Snapshot{FFmpegLogLevel: "info", VTTEnable: true}
	node := Node{Cmd: []string{"-i", "clip.mp4", "-i", "subs.vtt"}}

	got := buildDecoderArgs(cfg, node)
	want := []string{
		"-hide_banner", "-nostats", "-v", "level+info",
		"-i", "clip.mp4", "-i", "subs.vtt",
		"-map", "1:s", "-c:s", "copy",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildDecoderArgs() = %v, want %v", got, want)
	}
}

func TestBuildDecoderArgsVTTMappingWithInputPrefix(t *testing.T) {
	cfg := Snapshot{
		FFmpegLogLevel:     "info",
		VTTEnable:          true,
		DecoderInputPrefix: []string{"-i", "rtsp://backup-feed"},
	}
	node := Node{Cmd: []string{"-i", "clip.mp4", "-i", "subs.vtt"}}

	got := buildDecoderArgs(cfg, node)
	want := []string{
		"-hide_banner", "-nostats", "-v", "level+info",
		"-i", "rtsp://backup-feed",
		"-i", "clip.mp4", "-i", "subs.vtt",
		"-map", "2:s", "-c:s", "copy",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("buildDecoderArgs() = %v, want %v", got, want)
	}
}

func TestBuildDecoderArgsVTTDisabledNoMapping(t *testing.T) {
	cfg := Snapshot{FFmpegLogLevel: "info", VTTEnable: false}
	node := Node{Cmd: []string{"-i", "clip.mp4", "-i", "subs.vtt"}}

	got := buildDecoderArgs(cfg, node)
	for _, a := range got {
		if a == "-c:s" {
			t.Errorf("did not expect subtitle map when vtt disabled, got %v", got)
		}
	}
}

func TestBuildDecoderArgsVTTNoSubtitleFile(t *testing.T) {
	cfg := Snapshot{FFmpegLogLevel: "info", VTTEnable: true}
	node := Node{Cmd: []string{"-i", "clip.mp4"}}

	got := buildDecoderArgs(cfg, node)
	for _, a := range got {
		if a == "-c:s" {
			t.Errorf("did not expect subtitle map with no .vtt input, got %v", got)
		}
	}
}

func TestHasVTTArg(t *testing.T) {
	if !hasVTTArg([]string{"-i", "a.mp4", "-i", "b.vtt"}) {
		t.Error("expected true for vtt input present")
	}
	if hasVTTArg([]string{"-i", "a.mp4"}) {
		t.Error("expected false for no vtt input")
	}
}

func TestCountDashI(t *testing.T) {
	if n := countDashI([]string{"-i", "a.mp4", "-i", "b.vtt"}); n != 2 {
		t.Errorf("countDashI() = %d, want 2", n)
	}
	if n := countDashI([]string{"-c:v", "copy"}); n != 0 {
		t.Errorf("countDashI() = %d, want 0", n)
	}
}
