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
	"strings"
	"syscall"

	"github.com/nao1215/linkcheck/internal/checker"
	"github.com/nao1215/linkcheck/internal/config"
	"github.com/nao1215/linkcheck/internal/database"
	"github.com/nao1215/linkcheck/internal/fileset"
	"github.com/nao1215/linkcheck/internal/model"
	"github.com/nao1215/linkcheck/internal/report"
	"github.com/nao1215/linkcheck/internal/tor"
	"github.com/nao1215/linkcheck/internal/watch"
	"github.com/spf13/cobra"
)

// errBrokenLinks is returned when a run finds broken references so that the
// process exits non-zero.
var errBrokenLinks = errors.New("broken references found")

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [dir]",
		Short: "Check the references of the HTML documents in a directory",
		Long: `Check loads every file below dir (default: the current directory), extracts
the references of the documents matching the HTML pattern and validates them.

Local references must name a file in the tree, or a directory holding an
index.html. Remote http and https references are probed with HEAD, falling
back to GET when the server answers 405. References with other schemes
(mailto:, tel:, data:, ...) are accepted as is.

The command exits with a non-zero status when any reference is broken.

Examples:
  # Check the generated site in public/
  linkcheck check public/

  # Skip references to localhost and check <video> sources as well
  linkcheck check --ignore '^https?://localhost' --tag video=src,poster public/

  # Write a Markdown report for a CI summary
  linkcheck check -m -o report.md public/

  # Re-check whenever the tree changes
  linkcheck check --watch public/

  # Probe .onion references through a running Tor proxy
  linkcheck check --external-tor 127.0.0.1:9050 public/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCheckCmd,
	}

	// Document selection flags
	cmd.Flags().StringP("pattern", "p", config.DefaultPattern,
		"Glob selecting the documents to scan (supports **)")
	cmd.Flags().StringArray("tag", nil,
		"Tag and attributes holding references, as tag=attr[,attr] (repeatable, replaces the defaults)")
	cmd.Flags().StringArrayP("ignore", "i", nil,
		"Regular expression of references to skip (repeatable)")

	// Remote probe flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each remote probe")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header sent with remote probes")
	cmd.Flags().IntP("parallelism", "P", config.DefaultParallelism(),
		"Maximum number of remote probes in flight")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy for all remote probes (e.g., 127.0.0.1:1080)")

	// Tor flags
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon to probe .onion references")
	cmd.Flags().StringP("external-tor", "e", "",
		"Probe .onion references through an external Tor proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .linkcheck.yaml in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().BoolP("summary", "s", false,
		"Print a one-line run summary after the text report")
	cmd.Flags().Bool("tee", false,
		"Also print the text report to stdout when writing to --output")

	cmd.Flags().BoolP("watch", "w", false,
		"Re-check the tree whenever a file changes")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")

	return cmd
}

// checkOptions holds the check command settings that are not part of the
// checker configuration.
type checkOptions struct {
	summary bool
	watch   bool
	tee     bool
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCheckConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var opts checkOptions
	if opts.summary, err = cmd.Flags().GetBool("summary"); err != nil {
		return err
	}
	if opts.watch, err = cmd.Flags().GetBool("watch"); err != nil {
		return err
	}

	if opts.tee, err = cmd.Flags().GetBool("tee"); err != nil {
		return err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	logger, err := newLogger(cmd, cfg.Verbose)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCheck(ctx, cmd.OutOrStdout(), cfg, opts, logger)
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

// buildCheckConfig creates a Config from defaults, the configuration file and
// the command flags, in increasing order of precedence. Flags only override
// the file when they were set explicitly.
func buildCheckConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	if len(args) > 0 {
		cfg.Root = args[0]
	}

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly given configuration file must exist; otherwise a missing
	// file just means defaults.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.Merge(file)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	flags := cmd.Flags()
	if flags.Changed("pattern") {
		if cfg.HTML.Pattern, err = flags.GetString("pattern"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("tag") {
		specs, err := flags.GetStringArray("tag")
		if err != nil {
			return nil, err
		}
		if cfg.HTML.Tags, err = parseTagFlags(specs); err != nil {
			return nil, err
		}
	}
	if flags.Changed("ignore") {
		if cfg.Ignore, err = flags.GetStringArray("ignore"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("parallelism") {
		if cfg.Parallelism, err = flags.GetInt("parallelism"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("proxy") {
		if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("tor") {
		if cfg.Tor.Enabled, err = flags.GetBool("tor"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("external-tor") {
		if cfg.Tor.Proxy, err = flags.GetString("external-tor"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("tor-timeout") {
		if cfg.Tor.StartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
			return nil, err
		}
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	if noHistory {
		cfg.SaveHistory = false
	}

	return cfg, nil
}

// parseTagFlags parses --tag values of the form tag=attr[,attr].
func parseTagFlags(specs []string) (map[string]config.AttrList, error) {
	tags := make(map[string]config.AttrList, len(specs))
	for _, spec := range specs {
		tag, attrs, ok := strings.Cut(spec, "=")
		tag = strings.TrimSpace(tag)
		if !ok || tag == "" {
			return nil, fmt.Errorf("invalid --tag %q: expected tag=attr[,attr]", spec)
		}
		for _, attr := range strings.Split(attrs, ",") {
			if attr = strings.TrimSpace(attr); attr != "" {
				tags[tag] = append(tags[tag], attr)
			}
		}
		if len(tags[tag]) == 0 {
			return nil, fmt.Errorf("invalid --tag %q: no attributes", spec)
		}
	}
	return tags, nil
}

// runCheck checks cfg.Root once, and then on every change when watching.
func runCheck(ctx context.Context, out io.Writer, cfg *config.Config, opts checkOptions, logger *slog.Logger) error {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", cfg.Root, err)
	}

	logger.Info("starting check",
		"root", root,
		"pattern", cfg.HTML.Pattern,
		"parallelism", cfg.Parallelism,
		"saveHistory", cfg.SaveHistory,
	)

	var db *database.HistoryDB
	if cfg.SaveHistory {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		logger.Info("history database opened", "path", db.Path())
	}

	embeddedTor, err := setupTor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if embeddedTor != nil {
		defer func() {
			logger.Info("stopping embedded Tor daemon...")
			if err := embeddedTor.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
	}

	chk, err := checker.New(cfg, checker.WithLogger(logger), checker.WithRoot(root))
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	run, err := checkOnce(ctx, out, cfg, opts, chk, db, root, logger)
	if err != nil {
		return err
	}
	if !opts.watch {
		return brokenLinksError(run)
	}
	return watchAndCheck(ctx, out, cfg, opts, chk, db, root, logger)
}

// checkOnce loads the tree, runs the checker, writes the report and records
// the run.
func checkOnce(ctx context.Context, out io.Writer, cfg *config.Config, opts checkOptions, chk *checker.Checker, db *database.HistoryDB, root string, logger *slog.Logger) (*model.Run, error) {
	set, err := fileset.Load(ctx, root,
		fileset.WithContentFilter(chk.Matches),
		fileset.WithSkipHidden(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", root, err)
	}

	if _, err := chk.Run(ctx, set); err != nil {
		return nil, fmt.Errorf("check failed: %w", err)
	}
	run := chk.LastRun()

	if err := outputReport(out, cfg, opts, run); err != nil {
		return nil, err
	}
	if err := saveRun(ctx, db, run, logger); err != nil {
		logger.Error("failed to save run", "root", root, "error", err)
	}
	return run, nil
}

// watchAndCheck re-runs the check after each batch of changes until ctx is
// cancelled. Broken references do not stop the loop.
func watchAndCheck(ctx context.Context, out io.Writer, cfg *config.Config, opts checkOptions, chk *checker.Checker, db *database.HistoryDB, root string, logger *slog.Logger) error {
	watchOpts := []watch.Option{
		watch.WithFilter(watch.NoHiddenFilter),
		watch.WithLogger(logger),
	}
	// Writing the report must not trigger another run when it lives in root.
	if cfg.ReportFile != "" {
		reportPath, err := filepath.Abs(cfg.ReportFile)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", cfg.ReportFile, err)
		}
		watchOpts = append(watchOpts, watch.WithFilter(func(path string) bool {
			return filepath.Clean(path) != reportPath
		}))
	}

	w, err := watch.New(watchOpts...)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	if err := w.AddRecursive(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s for changes (press Ctrl+C to stop)...\n", root)

	return w.Run(ctx, func(ctx context.Context, paths []string) error {
		logger.Info("change detected, re-checking", "paths", len(paths))
		_, err := checkOnce(ctx, out, cfg, opts, chk, db, root, logger)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// brokenLinksError returns errBrokenLinks with the count when run failed.
func brokenLinksError(run *model.Run) error {
	if !run.Failed() {
		return nil
	}
	return fmt.Errorf("%w: %d in %d documents",
		errBrokenLinks, run.Report.BrokenCount(), len(run.Report.Documents()))
}

// setupTor prepares Tor for .onion references. An external proxy is verified
// before use; otherwise, when enabled, an embedded daemon is started and
// cfg.Tor.Proxy is pointed at it. The caller stops the returned daemon.
func setupTor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tor.EmbeddedTor, error) {
	if cfg.Tor.Proxy != "" {
		client, err := tor.NewClient(cfg.Tor.Proxy, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		status := client.CheckConnection(ctx)
		if status != tor.ProxyStatusOK {
			return nil, fmt.Errorf("tor proxy check failed: %s (make sure Tor is running at %s)",
				status, cfg.Tor.Proxy)
		}
		logger.Info("Tor proxy connection verified", "address", cfg.Tor.Proxy)
		return nil, nil
	}
	if !cfg.Tor.Enabled {
		return nil, nil
	}
	return startEmbeddedTor(ctx, cfg, logger)
}

// startEmbeddedTor starts an embedded Tor daemon using tornago.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tor.EmbeddedTor, error) {
	fmt.Fprintln(os.Stderr, "Starting embedded Tor daemon...")
	fmt.Fprintf(os.Stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(cfg.Tor.StartupTimeout),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	client, err := embeddedTor.NewClient(cfg.Timeout)
	if err != nil {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("failed to create Tor client: %w", err)
	}
	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		_ = embeddedTor.Stop() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	logger.Info("embedded Tor daemon started", "socksAddr", embeddedTor.SocksAddr())
	cfg.Tor.Proxy = embeddedTor.SocksAddr()
	return embeddedTor, nil
}

// outputReport writes the run in the requested format to the report file or
// out. With tee, the text report also goes to out when a file is written.
func outputReport(out io.Writer, cfg *config.Config, opts checkOptions, run *model.Run) error {
	if cfg.ReportFile == "" {
		return writeReport(newReportWriter(out, cfg, opts), run)
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports can contain internal URLs, so the file is owner-only.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	writer := newReportWriter(f, cfg, opts)
	if opts.tee {
		writer = report.NewMultiWriter(writer, report.NewTextWriter(out, report.WithSummary(opts.summary)))
	}
	return writeReport(writer, run)
}

// newReportWriter returns the writer for the format selected in cfg.
func newReportWriter(w io.Writer, cfg *config.Config, opts checkOptions) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewTextWriter(w, report.WithSummary(opts.summary))
	}
}

func writeReport(writer report.Writer, run *model.Run) error {
	if _, err := writer.Write(run); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// saveRun records run in db. A nil db is a no-op.
func saveRun(ctx context.Context, db *database.HistoryDB, run *model.Run, logger *slog.Logger) error {
	if db == nil {
		return nil
	}
	if err := db.SaveRun(ctx, run); err != nil {
		return err
	}
	logger.Info("run saved to history", "id", run.ID, "broken", run.Report.BrokenCount())
	return nil
}
