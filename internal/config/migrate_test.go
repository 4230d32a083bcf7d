package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestExportImportChannelTOML verifies a single channel round-trips through TOML.
func TestExportImportChannelTOML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "morning.toml")

	cc := ChannelConfig{
		ChannelID:      "morning",
		OutputMode:     "stream",
		FFmpegLogLevel: "info",
		IngestEnable:   true,
		VTTEnable:      true,
		SourceMode:     "playlist",
		PlaylistDir:    "/var/lib/playoutd/playlists",
		StreamURL:      "rtmp://ingest.example.com/live/morning",
	}

	if err := ExportChannelTOML(cc, "morning", path); err != nil {
		t.Fatalf("ExportChannelTOML() error = %v", err)
	}

	id, got, err := ImportChannelTOML(path)
	if err != nil {
		t.Fatalf("ImportChannelTOML() error = %v", err)
	}

	if id != "morning" {
		t.Errorf("expected channel id 'morning', got %q", id)
	}

	if got.OutputMode != cc.OutputMode {
		t.Errorf("OutputMode = %q, want %q", got.OutputMode, cc.OutputMode)
	}

	if got.StreamURL != cc.StreamURL {
		t.Errorf("StreamURL = %q, want %q", got.StreamURL, cc.StreamURL)
	}

	if got.VTTEnable != cc.VTTEnable {
		t.Errorf("VTTEnable = %v, want %v", got.VTTEnable, cc.VTTEnable)
	}
}

// TestExportImportChannelTOMLMissingFile verifies error handling for missing files.
func TestExportImportChannelTOMLMissingFile(t *testing.T) {
	_, _, err := ImportChannelTOML("/nonexistent/channel.toml")
	if err == nil {
		t.Error("ImportChannelTOML() expected error for missing file, got nil")
	}
}

// TestExportImportChannelTOMLInvalid verifies error handling for malformed TOML.
func TestExportImportChannelTOMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "bad.toml")

	if err := os.WriteFile(path, []byte("not = [valid toml"), 0644); err != nil {
		t.Fatalf("failed to write test fixture: %v", err)
	}

	_, _, err := ImportChannelTOML(path)
	if err == nil {
		t.Error("ImportChannelTOML() expected error for invalid TOML, got nil")
	}
}

// TestExportImportConfigTOML verifies a full multi-channel config round-trips.
func TestExportImportConfigTOML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := DefaultConfig()
	cfg.Default.OutputMode = "hls"
	cfg.Default.SourceMode = "playlist"
	cfg.Channels = map[string]ChannelConfig{
		"morning": {
			ChannelID:  "morning",
			OutputMode: "stream",
			StreamURL:  "rtmp://ingest.example.com/live/morning",
		},
		"news": {
			ChannelID:  "news",
			SourceMode: "folder",
			FolderPath: "/var/lib/playoutd/media/news",
		},
	}

	if err := ExportConfigTOML(cfg, path); err != nil {
		t.Fatalf("ExportConfigTOML() error = %v", err)
	}

	got, err := ImportConfigTOML(path)
	if err != nil {
		t.Fatalf("ImportConfigTOML() error = %v", err)
	}

	if got.Default.OutputMode != "hls" {
		t.Errorf("Default.OutputMode = %q, want hls", got.Default.OutputMode)
	}

	morning, ok := got.Channels["morning"]
	if !ok {
		t.Fatal("expected morning channel in round-tripped config")
	}
	if morning.StreamURL != "rtmp://ingest.example.com/live/morning" {
		t.Errorf("morning.StreamURL = %q", morning.StreamURL)
	}

	news, ok := got.Channels["news"]
	if !ok {
		t.Fatal("expected news channel in round-tripped config")
	}
	if news.FolderPath != "/var/lib/playoutd/media/news" {
		t.Errorf("news.FolderPath = %q", news.FolderPath)
	}
}

// TestImportConfigTOMLMissingFile verifies error handling for missing files.
func TestImportConfigTOMLMissingFile(t *testing.T) {
	_, err := ImportConfigTOML("/nonexistent/config.toml")
	if err == nil {
		t.Error("ImportConfigTOML() expected error for missing file, got nil")
	}
}

// TestImportConfigTOMLInvalid verifies error handling for malformed TOML.
func TestImportConfigTOMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "bad.toml")

	if err := os.WriteFile(path, []byte("[[[not valid"), 0644); err != nil {
		t.Fatalf("failed to write test fixture: %v", err)
	}

	_, err := ImportConfigTOML(path)
	if err == nil {
		t.Error("ImportConfigTOML() expected error for invalid TOML, got nil")
	}
}

// BenchmarkExportConfigTOML measures TOML export performance.
func BenchmarkExportConfigTOML(b *testing.B) {
	tmpDir := b.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	cfg := DefaultConfig()
	cfg.Channels = map[string]ChannelConfig{
		"morning": {ChannelID: "morning", OutputMode: "stream"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ExportConfigTOML(cfg, path)
	}
}

// BenchmarkImportConfigTOML measures TOML import performance.
func BenchmarkImportConfigTOML(b *testing.B) {
	tmpDir := b.TempDir()
	path := filepath.Join(tmpDir, "config.toml")
	cfg := DefaultConfig()
	cfg.Channels = map[string]ChannelConfig{
		"morning": {ChannelID: "morning", OutputMode: "stream"},
	}
	if err := ExportConfigTOML(cfg, path); err != nil {
		b.Fatalf("setup failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ImportConfigTOML(path)
	}
}
