package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"channelcast/internal/app"
	"channelcast/internal/storage"
	"channelcast/pkg/config"
)

var (
	verbose    bool
	workDir    string
	configPath string
	logFormat  string
	runID      = uuid.NewString()
)

var rootCmd = &cobra.Command{
	Use:   "channelcast",
	Short: "Turn a YouTube channel into MP3 episodes",
	Long: `Channelcast lists every upload of a YouTube channel, downloads each video's audio
and encodes it to MP3. Progress is kept in video_info_cache.json so an
interrupted run resumes where it stopped.

Settings are read from config.yaml or config.toml. An older config.ini is
not read; run "channelcast setup" to write a config.yaml in its place.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVarP(&workDir, "working-directory", "d", "", "Working directory, created if absent")
	flags.StringVar(&configPath, "config", "", "Config file (default config.yaml, then config.toml)")
	flags.StringVar(&logFormat, "log-format", "", "Log format: auto, text or json")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		setupLogger(os.Stdout, logFormat)
		return enterWorkingDirectory(workDir)
	}
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Fatal error", "error", err)
		return err
	}
	return nil
}

func setupLogger(w io.Writer, format string) {
	slog.SetDefault(slog.New(newLogHandler(w, format, verbose)).With("run_id", runID))
}

func newLogHandler(w io.Writer, format string, debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	}

	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func enterWorkingDirectory(dir string) error {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
		if err := os.Chdir(dir); err != nil {
			return fmt.Errorf("failed to enter working directory: %w", err)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	slog.Debug("Working directory", "path", cwd)
	return nil
}

// loadConfig reads the config and applies its log format unless one was
// given on the command line.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return nil, err
	}
	if logFormat == "" && cfg.Log.Format != "auto" {
		setupLogger(os.Stdout, cfg.Log.Format)
	}
	return cfg, nil
}

// cachePath prefers the configured cache file and falls back to the default
// so read-only commands work without credentials.
func cachePath(ctx context.Context) string {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		slog.Debug("Using default cache path", "reason", err)
		return storage.DefaultCacheFile
	}
	return cfg.Cache.Path
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	lock, err := storage.AcquireLock(".")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	service, err := app.BuildService(ctx, cfg, ".")
	if err != nil {
		return err
	}

	slog.Info("Starting sync", "channel_id", cfg.Main.ChannelID)
	_, result, err := app.NewPipeline(service).Sync(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Warn("Run interrupted")
		return err
	}
	if err != nil {
		return err
	}

	slog.Info("Sync complete", "downloaded", result.Downloaded, "encoded", result.Encoded, "failed", result.Failed)
	return nil
}
