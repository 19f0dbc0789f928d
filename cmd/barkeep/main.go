// Command barkeep is a status command for sway and i3: it runs the
// commands configured for each block, assembles their output into
// swaybar-protocol(7) JSON, and writes the resulting stream to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/asheshgoplani/barkeep/internal/bar"
	"github.com/asheshgoplani/barkeep/internal/config"
	"github.com/asheshgoplani/barkeep/internal/logging"
	"github.com/asheshgoplani/barkeep/internal/sigwatch"
	"github.com/asheshgoplani/barkeep/internal/watch"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("barkeep", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the configuration file")
	watchConfig := fs.Bool("watch", false, "reload when the configuration file changes")
	logLevel := fs.String("log-level", "info", "minimum log level: debug, info, warn, error")
	logDir := fs.String("log-dir", "", "directory for a rotated log file, in addition to stderr")
	logFormat := fs.String("log-format", "text", "log format: text or json")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: barkeep [flags]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Emit a swaybar-protocol status stream on stdout.")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *showVersion {
		fmt.Println("barkeep " + version)
		return 0
	}

	logging.Init(logging.Config{
		LogDir: *logDir,
		Level:  *logLevel,
		Format: *logFormat,
	})
	defer logging.Shutdown()
	mainLog := logging.ForComponent(logging.CompMain)

	path := *configPath
	if path == "" {
		fallback, err := config.DefaultPath()
		if err != nil {
			mainLog.Error("no_config_path", slog.String("error", err.Error()))
			return 1
		}
		path = fallback
	}

	cfg, err := config.Load(path)
	if err != nil {
		mainLog.Error("config_load_failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 1
	}

	b := bar.New(cfg, os.Stdout)
	if err := b.WriteHeader(); err != nil {
		mainLog.Error("header_write_failed", slog.String("error", err.Error()))
		return 1
	}

	b.AddStopper(sigwatch.Start(b, cfg.Bar.Header.Cont(), cfg.Bar.Header.Stop()))

	if *watchConfig {
		cw, err := watch.Start(b, cfg.Path)
		if err != nil {
			mainLog.Warn("config_watch_unavailable", slog.String("error", err.Error()))
		} else {
			b.AddStopper(cw)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := b.Run(ctx); err != nil {
		mainLog.Error("bar_failed", slog.String("error", err.Error()))
		return 1
	}

	mainLog.Info("shut_down")
	return 0
}
