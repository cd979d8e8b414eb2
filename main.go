// dwm-status sets the dwm status bar from a set of independently refreshed
// blocks.
//
// Each block (volume, network, load, memory, battery, backlight, clock, ...)
// refreshes on its own cadence or when its wake source fires. A single
// aggregator composes the latest fragment of every block into one line and
// writes it to the root window name, which dwm displays.
//
// Usage:
//
//	dwm-status [flags]
//	dwm-status check | once | refresh [block] | status | quit | version
//
// Flags:
//
//	--config string   Path to configuration file (default: $XDG_CONFIG_HOME/dwm-status/config.toml)
//	--sink string     Override general.sink (x11|stdout)
//	--verbose         Enable debug logging
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ForyoungYu/dwm-status/pkg/blockset"
	"github.com/ForyoungYu/dwm-status/pkg/config"
	"github.com/ForyoungYu/dwm-status/pkg/daemon"
	"github.com/ForyoungYu/dwm-status/pkg/sink"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

var (
	configPath   string
	sinkOverride string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "dwm-status",
	Short: "Status line daemon for dwm",
	Long: `dwm-status refreshes a configurable set of blocks and writes the
composed line to the X root window name, where dwm shows it.

Run without arguments to start the daemon. Send SIGUSR1 or use
"dwm-status refresh" to refresh every block immediately.`,
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (.toml, .yaml)")
	rootCmd.PersistentFlags().StringVar(&sinkOverride, "sink", "", "override general.sink (x11|stdout)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(checkCmd, onceCmd, refreshCmd, statusCmd, quitCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves, loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		if _, statErr := os.Stat(configPath); statErr != nil {
			return nil, fmt.Errorf("config: %w", statErr)
		}
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if sinkOverride != "" {
		cfg.General.Sink = sinkOverride
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	return cfg, nil
}

// setupLogger builds the process logger. Output goes to stderr and, when
// configured, is duplicated to a log file. The returned func closes the file.
func setupLogger(g config.GeneralConfig) (*slog.Logger, func(), error) {
	level, err := config.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if g.LogFile != "" {
		if err := ensureLogDir(g.LogFile); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	return newLogger(w, level, isTerminal(os.Stderr)), closeFn, nil
}

// newLogger returns a text logger for terminals and a JSON logger otherwise.
func newLogger(w io.Writer, level slog.Level, terminal bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if terminal {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func ensureLogDir(logFile string) error {
	return os.MkdirAll(filepath.Dir(logFile), 0o755)
}

// newSink opens the configured output sink and, when notifications are
// enabled, adds a desktop notifier. A missing session bus only disables
// notifications.
func newSink(g config.GeneralConfig, log *slog.Logger, out io.Writer) (sink.Sink, error) {
	var primary sink.Sink
	switch g.Sink {
	case "stdout":
		primary = sink.NewWriter(out)
	case "x11":
		x, err := sink.NewX11(g.Display)
		if err != nil {
			return nil, err
		}
		primary = x
	default:
		return nil, fmt.Errorf("unknown sink %q", g.Sink)
	}

	if !g.Notify {
		return primary, nil
	}
	n, err := sink.NewDBusNotifier("dwm-status", g.NotifyTimeout.Duration)
	if err != nil {
		log.Warn("desktop notifications disabled", "error", err)
		return primary, nil
	}
	return sink.Multi{primary, n}, nil
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closeLog, err := setupLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()

	set, err := blockset.Build(cfg.ResolvedBlocks(), blockset.Env{})
	if err != nil {
		log.Error("build blocks", "error", err)
		return err
	}

	out, err := newSink(cfg.General, log, cmd.OutOrStdout())
	if err != nil {
		log.Error("open sink", "sink", cfg.General.Sink, "error", err)
		return err
	}

	d := daemon.New(daemon.Options{
		General: cfg.General,
		Blocks:  set,
		Sink:    out,
		Logger:  log,
		Version: version,
	})
	if err := d.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("daemon failed", "error", err)
		return err
	}
	return nil
}
