package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitecrawl/internal/config"
	"github.com/nao1215/sitecrawl/internal/database"
	"github.com/nao1215/sitecrawl/internal/event"
	"github.com/nao1215/sitecrawl/internal/fetch"
	sclog "github.com/nao1215/sitecrawl/internal/log"
	"github.com/nao1215/sitecrawl/internal/model"
	"github.com/nao1215/sitecrawl/internal/pipeline"
	"github.com/nao1215/sitecrawl/internal/ratelimit"
	"github.com/nao1215/sitecrawl/internal/report"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl one or more sites and write page records",
		Long: `Crawl fetches pages breadth-first from each seed URL and writes one JSON
object per page: url, title, text, depth and discoveredFrom.

Only the seed's registrable domain is crawled (plus --extra-host hosts).
robots.txt is honored, requests are spaced by a global rate, and 429/5xx
responses and network errors are retried with exponential backoff.

Examples:
  # Crawl a site with the default bounds (depth 2, 50 pages)
  sitecrawl crawl https://docs.example.com/

  # Crawl deeper, write records to a file and print stats
  sitecrawl crawl -d 4 -p 500 -o pages.jsonl --stats https://docs.example.com/

  # Crawl every seed listed in a file, two at a time
  sitecrawl crawl --list seeds.txt --batch 2

  # Record the run so 'sitecrawl history' can show what changed
  sitecrawl crawl --save https://docs.example.com/

Site file (.sitecrawl) example:
  sites:
    docs.example.com:
      cookie: "session_id=abc123"
      depth: 4
      ignorePatterns:
        - "/archive/*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl bounds
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum number of links followed from the seed")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of page records per seed")
	cmd.Flags().Int("max-links", config.DefaultMaxLinks,
		"Maximum links enqueued per page, after sorting (0 = no cap)")
	cmd.Flags().Int("max-html-bytes", config.DefaultMaxHTMLBytes,
		"Skip pages with a larger raw body (0 = no limit)")
	cmd.Flags().Bool("no-content-dedup", false,
		"Emit pages even if their text was already emitted")
	cmd.Flags().StringSlice("extra-host", nil,
		"Additional host to crawl together with its subdomains (repeatable)")
	cmd.Flags().StringSlice("tracking-param", nil,
		"Query parameter removed from URLs (repeatable, replaces the default set)")
	cmd.Flags().StringP("list", "l", "",
		"File with one seed URL per line")

	// Politeness
	cmd.Flags().Float64("rps", config.DefaultRPS,
		"Global requests per second (0 = no limit; Crawl-delay still applies)")
	cmd.Flags().Int("retries", config.DefaultRetryAttempts,
		"Retries after a transient failure")
	cmd.Flags().Duration("retry-base", config.DefaultRetryBase,
		"First retry delay; later delays double")
	cmd.Flags().IntSlice("retry-status", config.DefaultRetryStatuses,
		"HTTP statuses treated as transient")
	cmd.Flags().String("robots-failure", config.DefaultRobotsFailure,
		"Policy when robots.txt cannot be fetched: allow or deny")

	// HTTP
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header; its first token selects the robots.txt group")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body bytes read")
	cmd.Flags().Bool("browser-headers", false,
		"Send browser-like Accept and Accept-Language headers")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (host:port)")

	// Batch
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled concurrently")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Site file path (default: .sitecrawl in current or home directory)")

	// Output
	cmd.Flags().StringP("output", "o", "",
		"Write page records to this file instead of stdout")
	cmd.Flags().String("events", "",
		"Write crawl events as JSON lines to this file")
	cmd.Flags().BoolP("stats", "s", false,
		"Print a stats summary to stderr")
	cmd.Flags().BoolP("json", "j", false,
		"Format the stats summary as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Format the stats summary as Markdown (mutually exclusive with --json)")
	cmd.Flags().String("report", "",
		"Write the stats summary to this file (implies --stats)")
	cmd.Flags().Bool("json-logs", false,
		"Log as JSON instead of text")

	// History
	cmd.Flags().Bool("save", false,
		"Record the run in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown.
	// An interrupted crawl still writes the records and stats it has.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.MaxLinks, err = flags.GetInt("max-links"); err != nil {
		return nil, err
	}
	if cfg.MaxHTMLBytes, err = flags.GetInt("max-html-bytes"); err != nil {
		return nil, err
	}
	noDedup, err := flags.GetBool("no-content-dedup")
	if err != nil {
		return nil, err
	}
	cfg.ContentDedup = !noDedup
	if cfg.ExtraHosts, err = flags.GetStringSlice("extra-host"); err != nil {
		return nil, err
	}
	if cfg.TrackingParams, err = flags.GetStringSlice("tracking-param"); err != nil {
		return nil, err
	}

	if cfg.RPS, err = flags.GetFloat64("rps"); err != nil {
		return nil, err
	}
	if cfg.RetryAttempts, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.RetryBase, err = flags.GetDuration("retry-base"); err != nil {
		return nil, err
	}
	if cfg.RetryStatuses, err = flags.GetIntSlice("retry-status"); err != nil {
		return nil, err
	}
	if cfg.RobotsFailure, err = flags.GetString("robots-failure"); err != nil {
		return nil, err
	}
	cfg.RobotsFailure = strings.ToLower(cfg.RobotsFailure)

	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.BrowserHeaders, err = flags.GetBool("browser-headers"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}

	if cfg.OutputFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.EventsFile, err = flags.GetString("events"); err != nil {
		return nil, err
	}
	if cfg.Stats, err = flags.GetBool("stats"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.JSONLogs, err = flags.GetBool("json-logs"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return nil, err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	// Load site-specific configurations from the site file.
	// If the user explicitly specified a path, a missing file is an error.
	// If no path was specified, a missing file means no site settings.
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load site file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	// Seeds come from the arguments, then from the list file.
	cfg.Seeds = append(cfg.Seeds, args...)
	listPath, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	if listPath != "" {
		seeds, err := readSeedList(listPath)
		if err != nil {
			return nil, err
		}
		cfg.Seeds = append(cfg.Seeds, seeds...)
	}

	return cfg, nil
}

// readSeedList reads one seed per line. Blank lines and lines starting
// with '#' are skipped.
func readSeedList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided seed list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open seed list: %w", err)
	}
	defer f.Close()

	seeds := make([]string, 0)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed list: %w", err)
	}
	return seeds, nil
}

// setupLogger creates the redacting logger selected by the config.
func setupLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.JSONLogs {
		return sclog.NewRedactingJSONLogger(w, cfg.Verbose)
	}
	return sclog.NewRedactingLogger(w, cfg.Verbose)
}

// runCrawl crawls every seed of cfg. Records go to stdout or the output
// file; the stats summary goes to stderr or the report file.
func runCrawl(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"seeds", len(cfg.Seeds),
		"max_depth", cfg.MaxDepth,
		"max_pages", cfg.MaxPages,
		"rps", cfg.RPS,
		"batch", cfg.BatchSize,
	)

	fetcher, err := fetch.NewHTTPFetcher(
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithBrowserHeaders(cfg.BrowserHeaders),
		fetch.WithProxy(cfg.ProxyAddress),
		fetch.WithSites(pipeline.SiteAuth(cfg.SiteConfigs, cfg.Seeds)),
	)
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	// Events always reach the debug log; the events file is optional.
	emitters := []event.Emitter{event.NewLogEmitter(logger)}
	var eventLog *event.JSONLEmitter
	if cfg.EventsFile != "" {
		f, err := createOutputFile(cfg.EventsFile)
		if err != nil {
			return err
		}
		defer f.Close()
		eventLog = event.NewJSONLEmitter(f)
		emitters = append(emitters, eventLog)
	}

	factory, err := pipeline.NewSpiderFactory(cfg, pipeline.Shared{
		Fetcher: fetcher,
		Limiter: ratelimit.New(cfg.RPS),
		Emitter: event.NewMulti(emitters...),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	p, closeSinks, err := buildPipeline(cfg, stdout, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	bp := pipeline.NewBatchProcessor(factory, p,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)
	summary, crawlErr := bp.ProcessBatch(ctx, cfg.Seeds)

	if err := writeSummary(cfg, summary, stderr); err != nil {
		logger.Error("failed to write stats summary", "error", err)
	}
	if eventLog != nil {
		if err := eventLog.Err(); err != nil {
			logger.Error("event log incomplete", "error", err)
		}
	}

	if crawlErr != nil {
		return fmt.Errorf("crawl interrupted: %w", crawlErr)
	}
	return failedSeeds(summary)
}

// buildPipeline creates the record sinks selected by the config. The
// returned function closes the files the sinks write to.
func buildPipeline(cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Error("failed to close output", "error", err)
			}
		}
	}

	p := pipeline.New(pipeline.WithLogger(logger))

	records := stdout
	if cfg.OutputFile != "" {
		f, err := createOutputFile(cfg.OutputFile)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, f)
		records = f

		// With records in a file, stdout shows progress instead.
		p.AddSink(pipeline.NewEchoSink(stdout))
	}
	p.AddSink(pipeline.NewRecordSink(report.NewRecordWriter(records)))

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open history database: %w", err)
		}
		closers = append(closers, db)
		p.AddSink(pipeline.NewHistorySink(db, pipeline.WithHistoryLogger(logger)))
		logger.Info("history database opened", "path", db.Path())
	}

	return p, closeAll, nil
}

// writeSummary writes the stats summary when one was requested.
func writeSummary(cfg *config.Config, summary *model.RunSummary, stderr io.Writer) error {
	if !cfg.Stats && cfg.ReportFile == "" && !cfg.JSONReport && !cfg.MarkdownReport {
		return nil
	}

	output := stderr
	if cfg.ReportFile != "" {
		f, err := createOutputFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(summary)
	return err
}

// errSeedsFailed is returned when no seed produced a single page.
var errSeedsFailed = errors.New("no pages crawled")

// failedSeeds reports an error when every seed ended without a page, so
// scripts can tell a dead site from a crawl that worked.
func failedSeeds(summary *model.RunSummary) error {
	if summary.Total().FetchedOK > 0 {
		return nil
	}
	if len(summary.Seeds) == 1 {
		s := summary.Seeds[0]
		if s.Error != "" {
			return fmt.Errorf("%w: %s: %s", errSeedsFailed, s.Seed, s.Error)
		}
		return fmt.Errorf("%w: %s", errSeedsFailed, s.Seed)
	}
	return fmt.Errorf("%w from %d seeds", errSeedsFailed, len(summary.Seeds))
}

// createOutputFile creates path and its parent directories.
func createOutputFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
