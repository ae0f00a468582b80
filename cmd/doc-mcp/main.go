package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/ironsheep/doc-tools-mcp/internal/batch"
	"github.com/ironsheep/doc-tools-mcp/internal/config"
	"github.com/ironsheep/doc-tools-mcp/internal/convert"
	"github.com/ironsheep/doc-tools-mcp/internal/ocr"
	"github.com/ironsheep/doc-tools-mcp/internal/office"
	"github.com/ironsheep/doc-tools-mcp/internal/pipeline"
	"github.com/ironsheep/doc-tools-mcp/internal/render"
	"github.com/ironsheep/doc-tools-mcp/internal/server"
	"github.com/ironsheep/doc-tools-mcp/internal/storage"
	"github.com/ironsheep/doc-tools-mcp/internal/tool"
	"github.com/ironsheep/doc-tools-mcp/internal/workspace"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and --help before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("doc-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage(os.Stdout)
			return
		}
	}

	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "doc-tools-mcp: %v\n", err)
		os.Exit(1)
	}
}

func usage(w *os.File) {
	fmt.Fprintln(w, "doc-tools-mcp - MCP server for document conversion")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: doc-tools-mcp [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  --version, -v    Print version information")
	fmt.Fprintln(w, "  --help, -h       Print this help message")
	fmt.Fprintln(w, "  --check          Report the external tools found on PATH and exit")
	fmt.Fprintln(w)
	cfg := config.Default()
	fs := newFlagSet(&cfg, new(bool))
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Every option can also be set in the environment, e.g. %s=debug.\n", config.EnvName("log-level"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "This server communicates via MCP protocol over stdin/stdout.")
	fmt.Fprintln(w, "Configure it in your MCP client (e.g., Claude Desktop).")
}

func newFlagSet(cfg *config.Config, check *bool) *flag.FlagSet {
	fs := flag.NewFlagSet("doc-tools-mcp", flag.ContinueOnError)
	fs.BoolVar(check, "check", false, "report the external tools found on PATH and exit")
	cfg.RegisterFlags(fs)
	return fs
}

func run(args []string) error {
	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	var check bool
	if err := newFlagSet(&cfg, &check).Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Log to stderr; stdout is for the MCP protocol
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	found, _ := tool.Probe(cfg.Pdftoppm, cfg.Pdftotext, cfg.Tesseract, cfg.Soffice)
	_, probeErr := tool.Probe(cfg.RequiredTools()...)
	if check {
		names := []string{cfg.Pdftoppm, cfg.Pdftotext, cfg.Tesseract, cfg.Soffice}
		sort.Strings(names)
		for _, name := range names {
			path, ok := found[name]
			if !ok {
				path = "not found"
			}
			fmt.Printf("%-12s %s\n", name, path)
		}
		fmt.Printf("%-12s %v\n", "gosseract", ocr.Available())
		return probeErr
	}
	if probeErr != nil {
		if !cfg.AllowMissingTools {
			return fmt.Errorf("%w (use --allow-missing-tools to start anyway)", probeErr)
		}
		logger.Warn("external tools missing, dependent operations are disabled", "err", probeErr)
	}
	logger.Debug("starting", "version", Version, "built", BuildTime, "commit", GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workspaces, err := workspace.NewManager(workspace.Options{
		Root:   cfg.WorkspaceRoot,
		Prefix: cfg.WorkspacePrefix,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	workspaces.StartSweeper(ctx, cfg.SweepInterval, cfg.SweepMaxAge)
	defer workspaces.Drain()

	runner := tool.NewRunner(logger)

	installed := func(names ...string) bool {
		for _, name := range names {
			if _, ok := found[name]; !ok {
				return false
			}
		}
		return true
	}

	// Adapters for missing tools stay nil; the engine reports tool_not_found.
	var renderer convert.Renderer
	if installed(cfg.Pdftoppm, cfg.Pdftotext) {
		renderer = render.New(runner, render.Config{
			Pdftoppm:    cfg.Pdftoppm,
			Pdftotext:   cfg.Pdftotext,
			Timeout:     cfg.RenderTimeout,
			Concurrency: cfg.RenderConcurrency,
		}, logger)
	}

	var engine ocr.Engine
	switch {
	case cfg.InProcessOCR:
		inproc, err := ocr.NewInProcess(cfg.TessdataPrefix)
		if err != nil {
			return err
		}
		engine = inproc
	case installed(cfg.Tesseract):
		engine = ocr.NewTesseract(runner, cfg.Tesseract, cfg.OCRTimeout, logger)
	}

	profiles, err := tool.NewPool(filepath.Join(workspaces.Root(), "office-profiles"), cfg.OfficeSlots, logger)
	if err != nil {
		return err
	}
	defer profiles.Close()
	var lo convert.OfficeConverter
	if installed(cfg.Soffice) {
		lo = office.New(runner, profiles, office.Config{Soffice: cfg.Soffice, Timeout: cfg.OfficeTimeout}, logger)
	}

	conv := convert.New(renderer, engine, lo, convert.Config{OCRConcurrency: cfg.OCRConcurrency}, logger)
	orch := batch.New(conv, batch.Options{Workers: cfg.BatchWorkers, OfficeSlots: cfg.OfficeSlots, Logger: logger})
	pipe := pipeline.New(workspaces, conv, orch, pipeline.Options{DefaultTimeout: cfg.JobTimeout, Logger: logger})

	opts := server.Options{
		OutputDir:         cfg.OutputDir,
		StagingDir:        filepath.Join(workspaces.Root(), "staging"),
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		Tools:             found,
		Slots:             profiles,
		Version:           Version,
		Logger:            logger,
	}
	if cfg.S3Region != "" || cfg.S3Profile != "" {
		store, err := storage.New(storage.Options{Region: cfg.S3Region, Profile: cfg.S3Profile, Logger: logger})
		if err != nil {
			return err
		}
		opts.Store = store
	}

	srv := server.New(pipe, opts)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
