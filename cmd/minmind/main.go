// minmind ingests articles, summarizes them through an external worker
// process and walks a reviewer through approving summaries into notes.
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

	"github.com/thomaskoefod/minmind/internal/config"
	"github.com/thomaskoefod/minmind/internal/database"
	"github.com/thomaskoefod/minmind/internal/ingest"
	"github.com/thomaskoefod/minmind/internal/logging"
	"github.com/thomaskoefod/minmind/internal/pipeline"
	"github.com/thomaskoefod/minmind/internal/summary"
	"github.com/thomaskoefod/minmind/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.DB
	ctrl     *pipeline.Controller
	ingester *ingest.Ingester
	in       io.Reader
	out      io.Writer
}

type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	var g globalFlags
	flagSet := pflag.NewFlagSet("minmind", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&g.configPath, "config", config.DefaultConfigPath(), "path to the YAML config file")
	flagSet.StringVar(&g.dbPath, "db", "", "database path (overrides the config file)")
	flagSet.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides the config file)")
	flagSet.Usage = func() { printUsage(out, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(out, flagSet)
		return nil
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (run minmind --help)", rest[0])
	}

	a, err := open(ctx, g, in, out)
	if err != nil {
		return err
	}
	defer a.close()

	return cmd.run(ctx, a, rest[1:])
}

func open(ctx context.Context, g globalFlags, in io.Reader, out io.Writer) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.dbPath != "" {
		cfg.Database.Path = g.dbPath
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	db, err := database.New(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.Pipeline.ShouldSeed() {
		if err := summary.SeedDefault(ctx, db, logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	summarizer, err := newSummarizer(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	staleAfter, err := cfg.Pipeline.GetStaleAfter()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid stale_after: %w", err)
	}

	ctrl := pipeline.New(db, summarizer, pipeline.Options{
		Provider:   cfg.Worker.Provider,
		Model:      cfg.Worker.Model,
		Workers:    cfg.Pipeline.Workers,
		StaleAfter: staleAfter,
	}, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		ctrl:     ctrl,
		ingester: ingest.New(db, logger),
		in:       in,
		out:      out,
	}, nil
}

func newSummarizer(cfg *config.Config, logger *slog.Logger) (worker.Summarizer, error) {
	timeout, err := cfg.Worker.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid worker timeout: %w", err)
	}
	backoff, err := cfg.Worker.GetBackoff()
	if err != nil {
		return nil, fmt.Errorf("invalid worker backoff: %w", err)
	}

	bindings := make(map[string]worker.Binding, len(cfg.Worker.Bindings))
	for provider, b := range cfg.Worker.Bindings {
		bindings[provider] = worker.Binding{Command: b.Command, Args: b.Args}
	}

	bridge, err := worker.NewProcessBridge(worker.BridgeConfig{
		Default:  worker.Binding{Command: cfg.Worker.Command, Args: cfg.Worker.Args},
		Bindings: bindings,
		Timeout:  timeout,
		EnvFile:  cfg.Worker.EnvFile,
	}, logger)
	if err != nil {
		return nil, err
	}

	return worker.WithRetry(bridge, cfg.Worker.MaxAttempts, backoff, logger), nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `minmind - article summarization and review

Usage:
  minmind [flags] <command> [args]

Commands:
`)
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nFlags:\n%s", flagSet.FlagUsages())
}
