// Package main is the cvtext CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/cvtext/internal/cli"
	"github.com/hyperjump/cvtext/internal/config"
	"github.com/hyperjump/cvtext/internal/extract"
	"github.com/hyperjump/cvtext/internal/intake"
	"github.com/hyperjump/cvtext/internal/keyword"
	"github.com/hyperjump/cvtext/internal/metrics"
	"github.com/hyperjump/cvtext/internal/models"
	"github.com/hyperjump/cvtext/internal/server"
	"github.com/hyperjump/cvtext/internal/storage"
	"github.com/hyperjump/cvtext/internal/watcher"
	"github.com/hyperjump/cvtext/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/cvtext/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// errUsage marks bad invocations; the usage text has already been printed.
var errUsage = errors.New("usage")

// errPartialFailure is returned when some inputs of a batch failed; details are in the output.
var errPartialFailure = errors.New("one or more files failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}
	var err error
	switch command, rest := args[0], args[1:]; command {
	case "parse":
		err = runParse(rest, stdout, stderr)
	case "server":
		err = runServer(rest, stderr)
	case "ingest":
		err = runIngest(rest, stdout, stderr)
	case "watch":
		err = runWatch(rest, stderr)
	case "search":
		err = runSearch(rest, stdout, stderr)
	case "list":
		err = runList(rest, stdout, stderr)
	case "delete":
		err = runDelete(rest, stdout, stderr)
	case "status":
		err = runStatus(rest, stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "cvtext version %s\n", version)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 2
	}
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errPartialFailure):
		return 1
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present, and a missing default file means built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.DefaultConfig(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func localeFor(language string) extract.Locale {
	if strings.EqualFold(language, string(extract.LocaleZH)) {
		return extract.LocaleZH
	}
	return extract.LocaleEN
}

// newParser builds a parser from the parser section of cfg.
func newParser(cfg *config.Config, logger *zap.Logger) (*extract.Parser, error) {
	enc, err := extract.LegacyEncoding(cfg.Parser.LegacyEncoding)
	if err != nil {
		return nil, fmt.Errorf("parser.legacy_encoding: %w", err)
	}
	opts := []extract.Option{
		extract.WithMaxTextBytes(cfg.Parser.MaxTextBytes),
		extract.WithMaxFileBytes(cfg.Parser.MaxFileBytes),
		extract.WithLegacyEncoding(enc),
		extract.WithRejectEmpty(cfg.Parser.RejectEmpty),
		extract.WithLocale(localeFor(cfg.Language)),
	}
	if logger != nil {
		opts = append(opts, extract.WithLogger(logger))
	}
	return extract.NewParser(opts...), nil
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	KeywordIndex keyword.KeywordIndex
	Metrics      *metrics.Metrics
	Intake       *intake.Intake
}

func (c *Components) Close() {
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	var parserLogger *zap.Logger
	if debug {
		parserLogger = logger
	}
	parser, err := newParser(cfg, parserLogger)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	m := metrics.New()
	inOpts := []intake.Option{
		intake.WithMetrics(m),
		intake.WithTimeout(cfg.Server.ParseTimeout),
		intake.WithWorkers(cfg.Watch.Workers),
	}
	if debug && logger != nil {
		inOpts = append(inOpts, intake.WithLogger(logger))
	}
	return &Components{
		Storage:      store,
		KeywordIndex: keywordIndex,
		Metrics:      m,
		Intake:       intake.New(parser, store, keywordIndex, inOpts...),
	}, nil
}

// setup loads config, builds the logger, and opens the stores.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debugFlag
	cfg.Debug = debugMode
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return cfg, logger, components, nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func outputFormat(s string, stderr io.Writer) (cli.OutputFormat, error) {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return "", errUsage
	}
	return format, nil
}

// runParse parses files without touching storage and prints their text.
func runParse(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("parse", stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path (parser section)")
	output := fs.String("output", "json", "output format: json or text")
	locale := fs.String("locale", "", "error message language: en or zh (default from config)")
	jobs := fs.Int("jobs", runtime.NumCPU(), "files parsed concurrently")
	debug := fs.Bool("debug", false, "log parser stages to stderr")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: cvtext parse [flags] <file>...\n\n")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	format, err := outputFormat(*output, stderr)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *locale != "" {
		cfg.Language = *locale
	}
	var logger *zap.Logger
	if *debug {
		logger = utils.NewLoggerOrNop(true)
		defer logger.Sync()
	}
	parser, err := newParser(cfg, logger)
	if err != nil {
		return err
	}

	files := fs.Args()
	results := make([]cli.ParsedFile, len(files))
	var g errgroup.Group
	if *jobs > 0 {
		g.SetLimit(*jobs)
	}
	for i, path := range files {
		g.Go(func() error {
			res, err := parser.Parse(path)
			if err != nil {
				results[i] = cli.ParsedFile{FileName: filepath.Base(path), Error: err.Error()}
				return err
			}
			results[i] = cli.ParsedFile{FileName: res.FileName, Text: res.Text, Kind: res.Kind.String()}
			return nil
		})
	}
	failed := g.Wait()
	if err := cli.WriteParsedFiles(stdout, results, format); err != nil {
		return err
	}
	if failed != nil {
		return errPartialFailure
	}
	return nil
}

func runServer(args []string, stderr io.Writer) error {
	fs := newFlagSet("server", stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (parser stages, watcher events, requests)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, logger, components, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Watch.Directories) > 0 {
		w := newWatcher(cfg, cfg.Watch.Directories, components.Intake, logger)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Stop()
		go w.SyncExistingFiles()
	}

	srv := server.NewServer(components.Intake, cfg, logger,
		server.WithMetrics(components.Metrics), server.WithVersion(version))
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// newWatcher wires inbox events to the intake service.
func newWatcher(cfg *config.Config, dirs []string, in *intake.Intake, logger *zap.Logger) *watcher.Watcher {
	exts := cfg.Watch.Extensions
	sink := watcher.SinkFuncs{
		OnIngest: func(path string) {
			out, err := in.IngestFile(context.Background(), path, exts)
			if err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("watch ingest", zap.String("path", path), zap.String("result", out.Result))
		},
		OnRemove: func(path string) {
			err := in.DeletePath(context.Background(), path)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
			}
		},
	}
	var opts []watcher.Option
	if cfg.Debug {
		opts = append(opts, watcher.WithLogger(logger))
	}
	return watcher.New(dirs, exts, cfg.Watch.RecursiveOrDefault(), sink, opts...)
}

// runWatch ingests the inbox directories in the foreground without the HTTP API.
func runWatch(args []string, stderr io.Writer) error {
	fs := newFlagSet("watch", stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: cvtext watch [flags] [directory...]\n\nDirectories default to watch.directories from the config.\n\n")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, logger, components, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	dirs := cfg.Watch.Directories
	if fs.NArg() > 0 {
		dirs = fs.Args()
	}
	if len(dirs) == 0 {
		fs.Usage()
		return errUsage
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	w := newWatcher(cfg, dirs, components.Intake, logger)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()
	logger.Info("watching", zap.Strings("directories", w.Directories()))
	w.SyncExistingFiles()
	<-ctx.Done()
	return nil
}

// runIngest parses and stores one file or every supported file under a directory.
func runIngest(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("ingest", stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: cvtext ingest [flags] <file-or-directory>...\n\n")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	format, err := outputFormat(*output, stderr)
	if err != nil {
		return err
	}
	cfg, logger, components, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report := &intake.BatchReport{}
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			report.Failures = append(report.Failures, intake.FileFailure{Path: path, Err: err, Message: err.Error()})
			continue
		}
		if info.IsDir() {
			r, err := components.Intake.IngestDirectory(ctx, path, cfg.Watch.Extensions)
			if r != nil {
				report.Stored += r.Stored
				report.Skipped += r.Skipped
				report.Failures = append(report.Failures, r.Failures...)
			}
			if err != nil {
				return err
			}
			continue
		}
		// An explicitly named file is ingested whatever its extension; the parser decides.
		out, err := components.Intake.IngestFile(ctx, path, nil)
		switch {
		case err != nil:
			report.Failures = append(report.Failures, intake.FileFailure{Path: path, Err: err, Message: err.Error()})
		case out.Result == intake.ResultSkipped:
			report.Skipped++
		default:
			report.Stored++
		}
	}
	if err := cli.WriteBatchReport(stdout, report, time.Since(start), format); err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		return errPartialFailure
	}
	return nil
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("search", stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the index directly when the server is not running)")
	limit := fs.Int("limit", models.DefaultSearchLimit, "number of results")
	offset := fs.Int("offset", 0, "results to skip")
	fuzzy := fs.Bool("fuzzy", false, "tolerate typos in query terms")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: cvtext search [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, searchArgsReorder(args)); err != nil {
		return err
	}
	query := &models.SearchQuery{Query: buildSearchQuery(fs.Args()), Limit: *limit, Offset: *offset, Fuzzy: *fuzzy}
	if query.Query == "" {
		fs.Usage()
		return errUsage
	}
	format, err := outputFormat(*output, stderr)
	if err != nil {
		return err
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// The server holds the index lock; go through its API.
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		_, logger, components, setupErr := setup(*configPath, false)
		if setupErr != nil {
			return setupErr
		}
		defer logger.Sync()
		defer components.Close()
		response, err = components.Intake.Search(context.Background(), query)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(stdout, response, format)
}

func runList(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("list", stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = open storage directly)")
	failures := fs.Bool("failures", false, "list parse failures instead of stored resumes")
	offset := fs.Int("offset", 0, "entries to skip")
	limit := fs.Int("limit", 50, "entries to show")
	output := fs.String("output", "text", "output format: text or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	format, err := outputFormat(*output, stderr)
	if err != nil {
		return err
	}

	if *serverURL != "" {
		c := newAPIClient(*serverURL)
		if *failures {
			list, err := c.failures(*offset, *limit)
			if err != nil {
				return err
			}
			return cli.WriteFailures(stdout, list, format)
		}
		list, err := c.resumes(*offset, *limit)
		if err != nil {
			return err
		}
		return cli.WriteResumes(stdout, list, format)
	}

	_, logger, components, err := setup(*configPath, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	if *failures {
		list, err := components.Intake.Failures(ctx, *offset, *limit)
		if err != nil {
			return err
		}
		return cli.WriteFailures(stdout, list, format)
	}
	list, err := components.Intake.List(ctx, *offset, *limit)
	if err != nil {
		return err
	}
	return cli.WriteResumes(stdout, list, format)
}

func runDelete(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("delete", stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = open storage directly)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: cvtext delete [flags] <resume-id | source-path>\n\n")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}
	target := fs.Arg(0)

	if *serverURL != "" {
		if err := newAPIClient(*serverURL).deleteResume(target); err != nil {
			return fmt.Errorf("deletion failed: %w", err)
		}
		fmt.Fprintf(stdout, "Resume deleted: %s\n", target)
		return nil
	}

	_, logger, components, err := setup(*configPath, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	err = components.Intake.Delete(ctx, target)
	if errors.Is(err, storage.ErrNotFound) {
		// Not an ID; try it as the path the resume was ingested from.
		err = components.Intake.DeletePath(ctx, target)
	}
	if err != nil {
		return fmt.Errorf("deletion failed: %w", err)
	}
	fmt.Fprintf(stdout, "Resume deleted: %s\n", target)
	return nil
}

func runStatus(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("status", stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	output := fs.String("output", "text", "output format: text or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	format, err := outputFormat(*output, stderr)
	if err != nil {
		return err
	}

	var status *models.Status
	if *serverURL != "" {
		status, err = newAPIClient(*serverURL).status()
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
	} else {
		cfg, logger, components, err := setup(*configPath, false)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer components.Close()
		status, err = components.Intake.Status(context.Background())
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		paths := append(storage.DatabaseFiles(cfg.Storage.DatabasePath), cfg.Storage.BleveIndexPath)
		if n, err := storage.DiskUsageBytes(paths...); err == nil {
			status.DiskUsageBytes = n
		}
		status.Version = version
	}
	return cli.WriteStatus(stdout, status, format)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `cvtext - resume text extraction service

Usage:
  cvtext parse [flags] <file>...          Print the text of resume files (txt, pdf, doc, docx, rtf)
  cvtext server [flags]                   Start the HTTP API (and the inbox watcher if configured)
  cvtext ingest [flags] <path>...         Parse and store files or directories
  cvtext watch [flags] [dir...]           Watch inbox directories and ingest new files
  cvtext search [flags] <query>           Search stored resumes
  cvtext list [flags]                     List stored resumes (--failures for the failure log)
  cvtext delete [flags] <id|path>         Delete a stored resume
  cvtext status [flags]                   Show counts and disk usage
  cvtext version                          Show version
  cvtext help                             Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/cvtext/config.yaml, or ./config.yaml)
  --output string    Output format: text or json
  --server string    Server URL for search/list/delete/status. Empty opens storage directly,
                     which fails while a server holds the index.

Examples:
  cvtext parse resume.pdf
  cvtext parse --output text --locale zh cv.docx
  cvtext ingest ~/inbox
  cvtext search --fuzzy kubernets
  cvtext list --server "" --failures
  cvtext status --output json`)
}
