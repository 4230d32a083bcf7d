// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ffplayout/playoutd/internal/config"
	"github.com/ffplayout/playoutd/internal/diagnostics"
	"github.com/ffplayout/playoutd/internal/egress"
	"github.com/ffplayout/playoutd/internal/menu"
	"github.com/ffplayout/playoutd/internal/updater"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

const (
	defaultConfigPath = "/etc/playoutd/config.yaml"
	exitSuccess       = 0
	exitError         = 1
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}

// run is the main entry point, extracted for testability.
func run(args []string) error {
	if len(args) == 0 {
		return runHelp()
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "help", "--help", "-h":
		return runHelp()
	case "version", "--version", "-v":
		return runVersion()
	case "migrate":
		return runMigrate(commandArgs)
	case "validate":
		return runValidate(commandArgs)
	case "status":
		return runStatus(commandArgs)
	case "setup":
		return runSetup(commandArgs)
	case "diagnose":
		return runDiagnose(commandArgs)
	case "check-system":
		return runCheckSystem(commandArgs)
	case "update":
		return runUpdate(commandArgs)
	case "menu":
		return runMenu(commandArgs)
	default:
		return fmt.Errorf("unknown command: %s (run 'playoutctl help' for usage)", command)
	}
}

// runHelp displays usage information.
func runHelp() error {
	fmt.Printf(`playoutctl v%s

USAGE:
    playoutctl [COMMAND] [OPTIONS]

COMMANDS:
    help              Show this help message
    version           Show version information
    migrate           Import a channel config from TOML
    validate          Validate configuration file
    status            Show channel status
    setup             Interactive setup wizard
    diagnose          Run system diagnostics
    check-system      Check system compatibility
    update            Check for and install updates
    menu              Launch interactive management menu

OPTIONS:
    --config PATH     Path to configuration file (default: %s)
    --help, -h        Show help for specific command

EXAMPLES:
    # Interactive setup (recommended for first-time channels)
    sudo playoutctl setup

    # Non-interactive setup
    sudo playoutctl setup --auto

    # Show channel status
    playoutctl status

    # Show channel status as JSON (for scripting)
    playoutctl status --json

    # Import a channel from a TOML file
    playoutctl migrate --from=/etc/playoutd/channels/main.toml

    # Validate configuration
    playoutctl validate --config=/etc/playoutd/config.yaml

    # Run system diagnostics
    playoutctl diagnose

    # Check for updates
    playoutctl update --check
`, Version, defaultConfigPath)
	return nil
}

// runVersion displays version information.
func runVersion() error {
	fmt.Printf("playoutd\n")
	fmt.Printf("  Version:    %s\n", Version)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
	fmt.Printf("  Built:      %s\n", BuildDate)
	return nil
}

// runMigrate imports a channel configuration from a standalone TOML file
// and merges it into the main config.
func runMigrate(args []string) error {
	fromPath := ""
	toPath := defaultConfigPath
	force := false

	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], "--from="):
			fromPath = strings.TrimPrefix(args[i], "--from=")
		case args[i] == "--from" && i+1 < len(args):
			fromPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--to="):
			toPath = strings.TrimPrefix(args[i], "--to=")
		case args[i] == "--to" && i+1 < len(args):
			toPath = args[i+1]
			i++
		case args[i] == "--force":
			force = true
		}
	}

	if fromPath == "" {
		return fmt.Errorf("--from path is required")
	}

	channelID, cc, err := config.ImportChannelTOML(fromPath)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if err := cc.Validate(); err != nil {
		return fmt.Errorf("imported channel is invalid: %w", err)
	}

	cfg, err := config.LoadConfig(toPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	if _, exists := cfg.Channels[channelID]; exists && !force {
		return fmt.Errorf("channel %q already exists in %s (use --force to overwrite)", channelID, toPath)
	}

	if cfg.Channels == nil {
		cfg.Channels = make(map[string]config.ChannelConfig)
	}
	cfg.Channels[channelID] = cc

	if err := os.MkdirAll(filepath.Dir(toPath), 0750); err != nil { // #nosec G301 -- config dir needs group access
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := cfg.Save(toPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Imported channel %q from %s into %s\n", channelID, fromPath, toPath)
	fmt.Println("Run 'playoutctl validate' to verify the configuration")
	return nil
}

// runValidate validates a configuration file.
func runValidate(args []string) error {
	configPath := defaultConfigPath

	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		}
	}

	fmt.Printf("Validating configuration: %s\n\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("Loaded %d channel configuration(s)\n", len(cfg.Channels))

	if len(cfg.Channels) > 0 {
		fmt.Println("\nConfigured channels:")
		for name, cc := range cfg.Channels {
			fmt.Printf("  - %s (%s, source: %s)\n", name, cc.OutputMode, cc.SourceMode)
		}
	}

	return nil
}

// StatusOutput represents the JSON output format for the status command.
type StatusOutput struct {
	ServiceStatus string          `json:"service_status"`
	ChannelCount  int             `json:"channel_count"`
	Channels      []ChannelStatus `json:"channels"`
	Error         string          `json:"error,omitempty"`
}

// ChannelStatus reports the runtime state of a single configured channel.
type ChannelStatus struct {
	ChannelID  string `json:"channel_id"`
	Status     string `json:"status"`
	PID        int    `json:"pid,omitempty"`
	OutputURL  string `json:"output_url,omitempty"`
	EgressSeen bool   `json:"egress_seen,omitempty"`
}

// runStatus shows channel status.
func runStatus(args []string) error {
	lockDir := "/var/run/playoutd"
	configPath := defaultConfigPath
	jsonOutput := false
	for i := 0; i < len(args); i++ {
		switch {
		case strings.HasPrefix(args[i], "--lock-dir="):
			lockDir = strings.TrimPrefix(args[i], "--lock-dir=")
		case strings.HasPrefix(args[i], "--config="):
			configPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--json" || args[i] == "-j":
			jsonOutput = true
		}
	}

	status := StatusOutput{}
	status.ServiceStatus = getServiceStatus("playoutd")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	status.ChannelCount = len(cfg.Channels)

	for channelID, cc := range cfg.Channels {
		lockFile := filepath.Join(lockDir, channelID+".lock")
		cs := ChannelStatus{ChannelID: channelID}

		pid, err := readLockPID(lockFile)
		switch {
		case err != nil:
			cs.Status = "stopped"
		case pid > 0 && processExists(pid):
			cs.Status = "running"
			cs.PID = pid
		default:
			cs.Status = "stale"
			cs.PID = pid
		}

		if cc.OutputMode == "stream" && cfg.Egress.APIURL != "" {
			cs.OutputURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Egress.APIURL, "/"), channelID)
			cs.EgressSeen = isEgressHealthy(cfg.Egress.APIURL, channelID)
		}

		status.Channels = append(status.Channels, cs)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	fmt.Println("playoutd Channel Status")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Printf("Service: %s\n", status.ServiceStatus)
	fmt.Printf("Channels configured: %d\n", status.ChannelCount)
	fmt.Println()

	if len(status.Channels) == 0 {
		fmt.Println("  (no channels configured)")
		return nil
	}

	for _, cs := range status.Channels {
		switch cs.Status {
		case "running":
			fmt.Printf("  %s: running (PID %d)\n", cs.ChannelID, cs.PID)
		case "stale":
			fmt.Printf("  %s: stale lock (PID %d not running)\n", cs.ChannelID, cs.PID)
		default:
			fmt.Printf("  %s: stopped\n", cs.ChannelID)
		}
		if cs.OutputURL != "" {
			seen := "not yet receiving data"
			if cs.EgressSeen {
				seen = "receiving data"
			}
			fmt.Printf("      output: %s (%s)\n", cs.OutputURL, seen)
		}
	}

	return nil
}

// isEgressHealthy asks the receiving media server whether it is actually
// seeing bytes for the named channel path.
func isEgressHealthy(apiURL, channelID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := egress.NewClient(apiURL)
	healthy, err := client.IsStreamHealthy(ctx, channelID)
	return err == nil && healthy
}

// getServiceStatus checks systemd service status.
func getServiceStatus(serviceName string) string {
	cmd := exec.Command("systemctl", "is-active", serviceName) // #nosec G204 -- serviceName is a controlled constant, not user input
	output, err := cmd.Output()
	if err != nil {
		return "not running (or systemd unavailable)"
	}

	status := strings.TrimSpace(string(output))
	switch status {
	case "active":
		return "active (running)"
	case "inactive":
		return "inactive (stopped)"
	case "failed":
		return "failed"
	default:
		return status
	}
}

// readLockPID reads the PID from a lock file.
func readLockPID(lockFile string) (int, error) {
	data, err := os.ReadFile(lockFile) // #nosec G304 -- lock files are in a controlled directory
	if err != nil {
		return 0, err
	}

	var pid int
	_, err = fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &pid)
	return pid, err
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// runSetup runs the interactive setup wizard.
func runSetup(args []string) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("setup requires root privileges (run with sudo)")
	}

	autoMode := false
	for _, arg := range args {
		if arg == "--auto" || arg == "-y" {
			autoMode = true
		}
	}

	fmt.Println("playoutd Setup Wizard")
	fmt.Println("=====================")
	fmt.Println()

	fmt.Println("Step 1: Checking prerequisites...")
	prereqsOK := true

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		fmt.Println("  [!] FFmpeg not found - required for encoding/decoding")
		fmt.Println("      Install with: sudo apt-get install ffmpeg")
		prereqsOK = false
	} else {
		fmt.Println("  [ok] FFmpeg installed")
	}

	if !prereqsOK && !autoMode {
		fmt.Println()
		fmt.Println("Some prerequisites are missing. Continue anyway? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			return fmt.Errorf("setup cancelled - install missing prerequisites first")
		}
	}
	fmt.Println()

	fmt.Println("Step 2: Configuration")
	if _, err := os.Stat(defaultConfigPath); err == nil {
		fmt.Printf("  [ok] Configuration exists (%s)\n", defaultConfigPath)
	} else {
		if autoMode || promptYesNo("  Create default configuration?") {
			fmt.Println("  Creating default configuration...")
			cfg := config.DefaultConfig()
			if err := os.MkdirAll(filepath.Dir(defaultConfigPath), 0750); err != nil { // #nosec G301 -- config dir needs group access
				fmt.Printf("  [!] Failed to create config directory: %v\n", err)
			} else if err := cfg.Save(defaultConfigPath); err != nil {
				fmt.Printf("  [!] Failed to save configuration: %v\n", err)
			} else {
				fmt.Printf("  [ok] Configuration saved to %s\n", defaultConfigPath)
			}
		} else {
			fmt.Println("  [!] Skipping configuration creation")
		}
	}
	fmt.Println()

	fmt.Println("Step 3: Systemd Service")
	servicePath := "/etc/systemd/system/playoutd.service"
	if _, err := os.Stat(servicePath); err == nil {
		fmt.Println("  [ok] Service already installed")
	} else {
		if autoMode || promptYesNo("  Install playoutd service?") {
			fmt.Println("  Installing systemd service...")
			if err := installPlayoutdService(); err != nil {
				fmt.Printf("  [!] Service installation failed: %v\n", err)
			} else {
				fmt.Println("  [ok] Service installed")
			}
		} else {
			fmt.Println("  [!] Skipping service installation")
		}
	}
	fmt.Println()

	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Add a channel:          edit /etc/playoutd/config.yaml")
	fmt.Println("  2. Start playout:          sudo systemctl start playoutd")
	fmt.Println("  3. Enable on boot:         sudo systemctl enable playoutd")
	fmt.Println("  4. Check status:           playoutctl status")

	return nil
}

// promptYesNo displays a yes/no prompt and returns true for yes.
func promptYesNo(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var response string
	_, _ = fmt.Scanln(&response)
	return strings.ToLower(response) == "y"
}

// playoutdServiceContent is the full systemd service file content written by
// installPlayoutdServiceToPath.
var playoutdServiceContent = `# playoutd channel playout service
#
# This service runs the playout daemon, driving one player loop per
# configured channel with automatic restart on failure.
#
# Installation:
#   sudo cp playoutd.service /etc/systemd/system/
#   sudo systemctl daemon-reload
#   sudo systemctl enable playoutd
#   sudo systemctl start playoutd
#
# Configuration:
#   Primary: /etc/playoutd/config.yaml
#
# Logs: journalctl -u playoutd -f
#
# Reload sends SIGHUP; playoutd does not reload its configuration in
# place, it shuts down gracefully on SIGHUP:
#   sudo systemctl reload playoutd

[Unit]
Description=playoutd Channel Playout Daemon
After=network.target
StartLimitIntervalSec=300
StartLimitBurst=5

[Service]
Type=simple
User=root

# Default configuration (can be overridden via environment file)
EnvironmentFile=-/etc/playoutd/environment
Environment=PLAYOUTD_CONFIG=/etc/playoutd/config.yaml
Environment=PLAYOUTD_LOG_LEVEL=info

# Main executable
ExecStart=/usr/local/bin/playoutd --config=${PLAYOUTD_CONFIG} --log-level=${PLAYOUTD_LOG_LEVEL}

# SIGHUP makes playoutd shut down gracefully (no in-place reload)
ExecReload=/bin/kill -HUP $MAINPID

# Graceful shutdown
ExecStop=/bin/kill -SIGTERM $MAINPID
TimeoutStopSec=30

# Restart policy
Restart=always
RestartSec=10

# Security hardening
NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=true
PrivateTmp=true
ProtectKernelTunables=true
ProtectKernelModules=true
ProtectControlGroups=true
RestrictSUIDSGID=yes
RestrictNamespaces=yes
LockPersonality=yes
MemoryDenyWriteExecute=yes
RestrictRealtime=yes
SystemCallFilter=@system-service
SystemCallArchitectures=native

# Allow access to required paths
ReadWritePaths=/var/run/playoutd
ReadOnlyPaths=/etc/playoutd

# Resource limits
LimitNOFILE=65536
LimitNPROC=4096

[Install]
WantedBy=multi-user.target
`

// installPlayoutdService installs the playoutd systemd service.
func installPlayoutdService() error {
	return installPlayoutdServiceToPath("/etc/systemd/system/playoutd.service")
}

// installPlayoutdServiceToPath writes the playoutd service file to path and
// reloads systemd. Separated for testability.
func installPlayoutdServiceToPath(servicePath string) error {
	// #nosec G306 - systemd service files should be world-readable
	if err := os.WriteFile(servicePath, []byte(playoutdServiceContent), 0644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	reloadCmd := exec.Command("systemctl", "daemon-reload") // #nosec G204 -- "systemctl" is a literal
	if output, err := reloadCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl daemon-reload failed: %w: %s", err, string(output))
	}

	return nil
}

// runDiagnose runs the full system diagnostics bundle.
func runDiagnose(args []string) error {
	jsonOutput := false
	mode := diagnostics.ModeFull
	for _, arg := range args {
		switch arg {
		case "--json":
			jsonOutput = true
		case "--debug":
			mode = diagnostics.ModeDebug
		}
	}

	opts := diagnostics.DefaultOptions()
	opts.Mode = mode

	runner := diagnostics.NewRunner(opts)
	report, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("diagnostics failed: %w", err)
	}

	if jsonOutput {
		data, err := report.ToJSON()
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	diagnostics.PrintReport(os.Stdout, report)
	return nil
}

// runCheckSystem runs a quick compatibility check.
func runCheckSystem(args []string) error {
	opts := diagnostics.DefaultOptions()
	opts.Mode = diagnostics.ModeQuick

	runner := diagnostics.NewRunner(opts)
	report, err := runner.Run(context.Background())
	if err != nil {
		return fmt.Errorf("check-system failed: %w", err)
	}

	diagnostics.PrintReport(os.Stdout, report)

	if report.Summary.Critical > 0 {
		return fmt.Errorf("%d critical issue(s) found", report.Summary.Critical)
	}
	return nil
}

// runUpdate checks for and installs updates.
func runUpdate(args []string) error {
	checkOnly := false
	force := false

	for _, arg := range args {
		switch arg {
		case "--check":
			checkOnly = true
		case "--force":
			force = true
		}
	}

	fmt.Println("playoutd Update")
	fmt.Println("===============")
	fmt.Println()

	u := updater.New(updater.WithCurrentVersion(Version))

	ctx := context.Background()

	fmt.Println("Checking for updates...")
	info, err := u.CheckForUpdates(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	fmt.Println(updater.FormatUpdateInfo(info))

	if !info.UpdateAvailable {
		return nil
	}

	if checkOnly {
		fmt.Println("\nRun 'playoutctl update' without --check to install the update.")
		return nil
	}

	if !force {
		fmt.Print("Download and install update? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			fmt.Println("Update cancelled.")
			return nil
		}
	}

	binaryPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to determine binary path: %w", err)
	}
	binaryPath, err = filepath.EvalSymlinks(binaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve binary path: %w", err)
	}

	if strings.HasPrefix(binaryPath, "/usr/") && os.Geteuid() != 0 {
		return fmt.Errorf("update requires root privileges for %s (run with sudo)", binaryPath)
	}

	fmt.Println()
	fmt.Println("Downloading update...")

	lastPercent := 0
	progress := func(downloaded, total int64) {
		if total > 0 {
			percent := int(float64(downloaded) / float64(total) * 100)
			if percent > lastPercent+5 || percent == 100 {
				fmt.Printf("\rProgress: %d%%", percent)
				lastPercent = percent
			}
		}
	}

	if err := u.Update(ctx, info, binaryPath, progress); err != nil {
		fmt.Println()
		if u.HasBackup(binaryPath) {
			fmt.Println("Update failed. Rolling back...")
			if rbErr := u.Rollback(binaryPath); rbErr != nil {
				return fmt.Errorf("update failed (%w) and rollback failed (%w)", err, rbErr)
			}
			fmt.Println("Rolled back to previous version.")
		}
		return fmt.Errorf("update failed: %w", err)
	}

	fmt.Println()
	fmt.Printf("Successfully updated to %s!\n", info.LatestVersion)
	fmt.Println("Restart playoutd to use the new version.")

	return nil
}

// runMenu launches the interactive management menu.
func runMenu(args []string) error {
	m := menu.CreateMainMenu()
	return m.Display()
}
