package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"nmea-bridge/internal/config"
	"nmea-bridge/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath  string
	logLevel    string
	showVersion bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("nmea-bridge", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", "config.yaml", "Path to YAML config")
	fs.StringVar(&o.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	// A bare path is accepted as the config file.
	switch fs.NArg() {
	case 0:
	case 1:
		if fs.Changed("config") {
			return o, fmt.Errorf("config given twice: --config %s and %s", o.configPath, fs.Arg(0))
		}
		o.configPath = fs.Arg(0)
	default:
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args()[1:])
	}
	return o, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "nmea-bridge %s\n", version)
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config load failed: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logs := web.NewLogBuffer(2000)
	logger, err := newLogger(cfg.Logging, io.MultiWriter(stderr, logs))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("nmea-bridge starting", "version", version, "config", opts.configPath)
	if err := runBridge(ctx, cfg, logger, logs); err != nil {
		logger.Error("nmea-bridge failed", "err", err)
		return 1
	}
	logger.Info("nmea-bridge stopped")
	return 0
}
