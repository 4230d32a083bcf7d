package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const koanfTestConfig = `
channels:
  morning:
    output_mode: stream
    ffmpeg_log_level: info
    vtt_enable: true

default:
  output_mode: hls
  ffmpeg_log_level: info
  source_mode: playlist

restart:
  initial_delay: 10s
  max_delay: 300s
  max_attempts: 50

egress:
  api_url: http://localhost:9997

monitor:
  enabled: true
  interval: 5m
  restart_unhealthy: true
`

// TestKoanfConfig_LoadYAML tests loading configuration from a YAML file.
func TestKoanfConfig_LoadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Default.OutputMode != "hls" {
		t.Errorf("Expected default output_mode hls, got %s", cfg.Default.OutputMode)
	}

	chCfg, ok := cfg.Channels["morning"]
	if !ok {
		t.Fatal("Expected morning channel config")
	}

	if chCfg.OutputMode != "stream" {
		t.Errorf("Expected morning output_mode stream, got %s", chCfg.OutputMode)
	}

	if cfg.Restart.InitialDelay != 10*time.Second {
		t.Errorf("Expected initial delay 10s, got %v", cfg.Restart.InitialDelay)
	}

	if cfg.Restart.MaxDelay != 300*time.Second {
		t.Errorf("Expected max delay 300s, got %v", cfg.Restart.MaxDelay)
	}
}

// TestKoanfConfig_LoadWithEnvOverride tests environment variable overrides.
func TestKoanfConfig_LoadWithEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("PLAYOUTD_DEFAULT_OUTPUT_MODE", "null")
	t.Setenv("PLAYOUTD_DEFAULT_FFMPEG_LOG_LEVEL", "warning")

	kc, err := NewKoanfConfig(
		WithYAMLFile(configPath),
		WithEnvPrefix("PLAYOUTD"),
	)
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Default.OutputMode != "null" {
		t.Errorf("Expected output_mode null (from env), got %s", cfg.Default.OutputMode)
	}

	if cfg.Default.FFmpegLogLevel != "warning" {
		t.Errorf("Expected ffmpeg_log_level warning (from env), got %s", cfg.Default.FFmpegLogLevel)
	}

	// Verify non-overridden values still come from YAML
	if cfg.Default.SourceMode != "playlist" {
		t.Errorf("Expected source_mode playlist (from YAML), got %s", cfg.Default.SourceMode)
	}
}

// TestKoanfConfig_LoadChannelEnvOverride tests channel-specific env overrides.
func TestKoanfConfig_LoadChannelEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("PLAYOUTD_CHANNELS_MORNING_OUTPUT_MODE", "hls")
	t.Setenv("PLAYOUTD_CHANNELS_MORNING_VTT_ENABLE", "false")

	kc, err := NewKoanfConfig(
		WithYAMLFile(configPath),
		WithEnvPrefix("PLAYOUTD"),
	)
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	chCfg, ok := cfg.Channels["morning"]
	if !ok {
		t.Fatal("Expected morning channel config")
	}

	if chCfg.OutputMode != "hls" {
		t.Errorf("Expected morning output_mode hls (from env), got %s", chCfg.OutputMode)
	}

	if chCfg.VTTEnable != false {
		t.Errorf("Expected morning vtt_enable false (from env), got %v", chCfg.VTTEnable)
	}
}

// TestKoanfConfig_Reload tests manual configuration reload.
func TestKoanfConfig_Reload(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Default.OutputMode != "hls" {
		t.Fatalf("Expected initial output_mode hls, got %s", cfg.Default.OutputMode)
	}

	updatedConfig := strings.Replace(koanfTestConfig, "output_mode: hls", "output_mode: null", 1)
	if err := os.WriteFile(configPath, []byte(updatedConfig), 0644); err != nil {
		t.Fatalf("Failed to update test config: %v", err)
	}

	if err := kc.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	cfg, err = kc.Load()
	if err != nil {
		t.Fatalf("Load after reload failed: %v", err)
	}

	if cfg.Default.OutputMode != "null" {
		t.Errorf("Expected reloaded output_mode null, got %s", cfg.Default.OutputMode)
	}
}

// TestKoanfConfig_Watch tests configuration file watching.
func TestKoanfConfig_Watch(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	watchCalled := make(chan string, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_ = kc.Watch(ctx, func(event string, err error) {
			if err != nil {
				watchCalled <- "error: " + err.Error()
				return
			}
			watchCalled <- event
		})
	}()

	time.Sleep(100 * time.Millisecond)

	updatedConfig := strings.Replace(koanfTestConfig, "output_mode: hls", "output_mode: desktop", 1)
	if err := os.WriteFile(configPath, []byte(updatedConfig), 0644); err != nil {
		t.Fatalf("Failed to update test config: %v", err)
	}

	select {
	case event := <-watchCalled:
		if event != "config reloaded" {
			t.Errorf("Expected event 'config reloaded', got %s", event)
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch callback not called within timeout")
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load after watch failed: %v", err)
	}

	if cfg.Default.OutputMode != "desktop" {
		t.Errorf("Expected watched output_mode desktop, got %s", cfg.Default.OutputMode)
	}
}

// TestKoanfConfig_BackwardCompatibility tests backward compatibility with LoadConfig.
func TestKoanfConfig_BackwardCompatibility(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	oldCfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	newCfg, err := kc.Load()
	if err != nil {
		t.Fatalf("koanf Load failed: %v", err)
	}

	if oldCfg.Default.OutputMode != newCfg.Default.OutputMode {
		t.Errorf("OutputMode mismatch: old=%s, new=%s", oldCfg.Default.OutputMode, newCfg.Default.OutputMode)
	}

	oldCh := oldCfg.Channels["morning"]
	newCh := newCfg.Channels["morning"]

	if oldCh.OutputMode != newCh.OutputMode {
		t.Errorf("Channel output_mode mismatch: old=%s, new=%s", oldCh.OutputMode, newCh.OutputMode)
	}
}

// TestKoanfConfig_InvalidYAML tests handling of invalid YAML.
func TestKoanfConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidConfig := `
default:
  output_mode: [this, is, not, a, string]
`
	if err := os.WriteFile(configPath, []byte(invalidConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		return
	}

	_, err = kc.Load()
	if err == nil {
		t.Error("Expected error loading invalid YAML, got nil")
	}
}

// TestKoanfConfig_MissingFile tests handling of missing config file.
func TestKoanfConfig_MissingFile(t *testing.T) {
	_, err := NewKoanfConfig(WithYAMLFile("/nonexistent/config.yaml"))
	if err == nil {
		t.Error("Expected error loading missing file, got nil")
	}
}

// TestKoanfConfig_GetMethods tests typed getter methods.
func TestKoanfConfig_GetMethods(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	mode := kc.GetString("default.output_mode")
	if mode != "hls" {
		t.Errorf("Expected output_mode hls, got %s", mode)
	}

	enabled := kc.GetBool("monitor.enabled")
	if !enabled {
		t.Error("Expected monitor enabled to be true")
	}

	delay := kc.GetDuration("restart.initial_delay")
	if delay != 10*time.Second {
		t.Errorf("Expected delay 10s, got %v", delay)
	}

	if !kc.Exists("default.output_mode") {
		t.Error("Expected default.output_mode to exist")
	}

	if kc.Exists("nonexistent.key") {
		t.Error("Expected nonexistent.key to not exist")
	}
}

// TestKoanfConfig_NoFile tests loading without a file (env vars only).
func TestKoanfConfig_NoFile(t *testing.T) {
	t.Setenv("PLAYOUTD_DEFAULT_OUTPUT_MODE", "hls")
	t.Setenv("PLAYOUTD_DEFAULT_FFMPEG_LOG_LEVEL", "info")

	kc, err := NewKoanfConfig(WithEnvPrefix("PLAYOUTD"))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	cfg, err := kc.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Default.OutputMode != "hls" {
		t.Errorf("Expected output_mode hls, got %s", cfg.Default.OutputMode)
	}
}

// TestKoanfConfig_All tests the All() method for complete map access.
func TestKoanfConfig_All(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	allConfig := kc.All()

	if allConfig == nil {
		t.Fatal("All() returned nil")
	}

	if _, ok := allConfig["default.output_mode"]; !ok {
		t.Error("All() should contain 'default.output_mode' key")
	}

	if _, ok := allConfig["restart.initial_delay"]; !ok {
		t.Error("All() should contain 'restart.initial_delay' key")
	}

	if _, ok := allConfig["egress.api_url"]; !ok {
		t.Error("All() should contain 'egress.api_url' key")
	}

	if _, ok := allConfig["monitor.enabled"]; !ok {
		t.Error("All() should contain 'monitor.enabled' key")
	}
}

// TestKoanfConfig_WatchNoFile tests Watch with no file specified.
func TestKoanfConfig_WatchNoFile(t *testing.T) {
	kc, err := NewKoanfConfig(WithEnvPrefix("PLAYOUTD"))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = kc.Watch(ctx, func(event string, watchErr error) {
		t.Error("Callback should not be called when no file is set")
	})

	if err == nil {
		t.Error("Watch without file should return an error")
	}

	if err != nil && !strings.Contains(err.Error(), "no file path specified") {
		t.Errorf("Expected error about no file path, got: %v", err)
	}
}

// TestKoanfConfig_WatchContextCancellation tests Watch with context cancellation.
func TestKoanfConfig_WatchContextCancellation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		_ = kc.Watch(ctx, func(event string, err error) {})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Watch did not return when context was cancelled")
	}
}

// TestKoanfConfig_ConcurrentReloadAndRead tests that concurrent Reload and
// getter calls do not cause a data race on the internal koanf pointer.
func TestKoanfConfig_ConcurrentReloadAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte(koanfTestConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	kc, err := NewKoanfConfig(WithYAMLFile(configPath))
	if err != nil {
		t.Fatalf("NewKoanfConfig failed: %v", err)
	}

	const numGoroutines = 10
	const numIterations = 50

	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.Reload()
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.GetString("default.output_mode")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.GetBool("monitor.enabled")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.GetDuration("restart.initial_delay")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.Exists("default.output_mode")
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_ = kc.All()
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				_, _ = kc.Load()
			}
		}()
	}

	wg.Wait()
}
