// Package main implements playoutd, the 24/7 channel playout daemon.
//
// playoutd is designed for unattended operation, driving one player loop
// per configured channel with automatic failure recovery and graceful
// shutdown.
//
// Usage:
//
//	playoutd [options]
//
// Options:
//
//	--config=PATH       Path to config file (default: /etc/playoutd/config.yaml)
//	--lock-dir=PATH     Directory for lock files (default: /var/run/playoutd)
//	--log-level=LEVEL   Log level: debug, info, warn, error (default: info)
//	--health-addr=ADDR  Address for the /healthz and /metrics endpoints (default: 127.0.0.1:9955)
//	--help              Show this help message
//
// Example:
//
//	# Run with default config
//	playoutd
//
//	# Run with custom config
//	playoutd --config=/path/to/config.yaml
//
// The daemon:
//   - Loads channel configuration
//   - Starts one player loop per channel, each locked to a single instance
//   - Restarts a failed channel with exponential backoff
//   - Handles SIGINT/SIGTERM for graceful shutdown
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ffplayout/playoutd/internal/config"
	"github.com/ffplayout/playoutd/internal/health"
	"github.com/ffplayout/playoutd/internal/lock"
	"github.com/ffplayout/playoutd/internal/playout"
	"github.com/ffplayout/playoutd/internal/source"
	"github.com/ffplayout/playoutd/internal/supervisor"
	"github.com/ffplayout/playoutd/internal/util"
)

// Build information (set by ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Command line flags
var (
	configPath = flag.String("config", "/etc/playoutd/config.yaml", "Path to configuration file")
	lockDir    = flag.String("lock-dir", "/var/run/playoutd", "Directory for lock files")
	logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	healthAddr = flag.String("health-addr", "127.0.0.1:9955", "Address for the /healthz and /metrics endpoints")
	showHelp   = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	logger.Info("starting playoutd", "version", Version, "commit", Commit, "built", BuildTime)

	if err := os.MkdirAll(*lockDir, 0750); err != nil { //nolint:gosec // group-readable for service monitoring
		logger.Error("failed to create lock directory", "error", err)
		os.Exit(1)
	}

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded configuration", "path", *configPath, "channels", len(cfg.Channels))

	ffmpegPath, err := findFFmpegPath()
	if err != nil {
		logger.Error("ffmpeg not found", "error", err)
		os.Exit(1)
	}
	logger.Info("using ffmpeg", "path", ffmpegPath)

	sup := supervisor.New(supervisor.Config{
		Name:              "playoutd",
		ShutdownTimeout:   cfg.Restart.StopTimeout,
		RestartDelay:      cfg.Restart.InitialDelay,
		MaxRestartDelay:   cfg.Restart.MaxDelay,
		RestartMultiplier: 2.0,
		Logger:            logger,
	})

	registry := newChannelRegistry()
	registry.sup = sup

	if len(cfg.Channels) == 0 {
		logger.Warn("no channels configured, nothing to run")
	}

	for channelID, cc := range cfg.Channels {
		snap := playout.NewSnapshot(channelID, cc)

		fl, err := lock.NewFileLock(filepath.Join(*lockDir, channelID+".lock"))
		if err != nil {
			logger.Warn("failed to create lock file", "channel", channelID, "error", err)
			continue
		}
		if err := fl.Acquire(5 * time.Second); err != nil {
			logger.Warn("channel already locked by another instance", "channel", channelID, "error", err)
			continue
		}

		iter, err := newIterator(snap)
		if err != nil {
			logger.Warn("failed to build source iterator", "channel", channelID, "error", err)
			_ = fl.Release()
			continue
		}

		mgr := playout.NewManager(channelID, snap)

		svc := &channelService{
			channelID: channelID,
			mgr:       mgr,
			iter:      iter,
			cfg:       snap,
			logger:    logger,
			lock:      fl,
		}
		registry.add(channelID, mgr)

		if err := sup.Add(svc); err != nil {
			logger.Warn("failed to register channel", "channel", channelID, "error", err)
			_ = fl.Release()
			continue
		}

		logger.Info("registered channel", "channel", channelID, "output_mode", cc.OutputMode, "source_mode", cc.SourceMode)
	}

	if sup.ServiceCount() == 0 {
		logger.Warn("no channels registered, exiting")
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	healthHandler := health.NewHandler(registry)
	util.SafeGo("health-endpoint", os.Stderr, func() {
		if err := health.ListenAndServe(ctx, *healthAddr, healthHandler); err != nil {
			logger.Error("health endpoint stopped", "error", err)
		}
	}, nil)
	logger.Info("health endpoint listening", "addr", *healthAddr)

	logger.Info("starting channels", "count", sup.ServiceCount())
	if err := sup.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("supervisor exited with error", "error", err)
	}

	logger.Info("shutdown complete")
}

// channelService wraps one channel's player loop as a supervisor.Service.
type channelService struct {
	channelID string
	mgr       *playout.Manager
	iter      playout.Iterator
	cfg       playout.Snapshot
	logger    *slog.Logger
	lock      *lock.FileLock
}

func (s *channelService) Name() string { return s.channelID }

func (s *channelService) Run(ctx context.Context) error {
	s.logger.Info("starting channel", "channel", s.channelID)

	if s.cfg.IngestEnable {
		util.SafeGo("ingest-"+s.channelID, os.Stderr, func() {
			if err := playout.RunIngest(ctx, s.mgr, s.logger); err != nil && ctx.Err() == nil {
				s.logger.Warn("ingest supervisor stopped", "channel", s.channelID, "error", err)
			}
		}, nil)
	}

	err := playout.Run(ctx, s.mgr, s.iter, s.logger)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("channel stopped with error", "channel", s.channelID, "error", err)
	} else {
		s.logger.Info("channel stopped", "channel", s.channelID)
	}
	return err
}

// newIterator builds the node source for a channel according to its
// configured source mode.
func newIterator(cfg playout.Snapshot) (playout.Iterator, error) {
	switch cfg.SourceMode {
	case "folder":
		if cfg.FolderPath == "" {
			return nil, fmt.Errorf("folder source mode requires folder_path")
		}
		return source.NewFolderIterator(cfg.FolderPath), nil
	default:
		if cfg.PlaylistDir == "" {
			return nil, fmt.Errorf("playlist source mode requires playlist_dir")
		}
		return source.NewPlaylistIterator(cfg.PlaylistDir, cfg.ChannelID), nil
	}
}

// channelRegistry tracks per-channel managers for health reporting.
type channelRegistry struct {
	sup      *supervisor.Supervisor
	managers map[string]*playout.Manager
}

func newChannelRegistry() *channelRegistry {
	return &channelRegistry{managers: make(map[string]*playout.Manager)}
}

func (r *channelRegistry) add(channelID string, mgr *playout.Manager) {
	r.managers[channelID] = mgr
}

// Services implements health.StatusProvider, merging supervisor restart
// state with each channel's own liveness as reported by its Manager.
func (r *channelRegistry) Services() []health.ServiceInfo {
	var infos []health.ServiceInfo
	for _, st := range r.statuses() {
		mgr := r.managers[st.Name]
		info := health.ServiceInfo{
			Name:     st.Name,
			State:    st.State.String(),
			Uptime:   st.Uptime,
			Healthy:  st.State == supervisor.ServiceStateRunning,
			Restarts: st.Restarts,
		}
		if st.LastError != nil {
			info.Error = st.LastError.Error()
		}
		if mgr != nil {
			info.Healthy = info.Healthy && mgr.IsAlive()
		}
		infos = append(infos, info)
	}
	return infos
}

func (r *channelRegistry) statuses() []supervisor.ServiceStatus {
	if r.sup == nil {
		return nil
	}
	return r.sup.Status()
}

// loadConfiguration loads the config file, falling back to defaults if it doesn't exist.
func loadConfiguration(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.DefaultConfig(), nil
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// findFFmpegPath locates the ffmpeg binary.
func findFFmpegPath() (string, error) {
	paths := []string{
		"/usr/bin/ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/opt/homebrew/bin/ffmpeg",
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		p := filepath.Join(dir, "ffmpeg")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("ffmpeg not found in common locations or PATH")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printUsage() {
	fmt.Println("playoutd - channel playout daemon")
	fmt.Printf("Version: %s (%s)\n\n", Version, Commit)
	fmt.Println("Usage: playoutd [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("The daemon drives one player loop per configured channel, encoding")
	fmt.Println("whatever the channel's output mode names (desktop, HLS, null, or a")
	fmt.Println("remote stream target).")
	fmt.Println()
	fmt.Println("Signals:")
	fmt.Println("  SIGINT, SIGTERM  Graceful shutdown")
	fmt.Println("  SIGHUP           Graceful shutdown (configuration is not reloaded)")
}
