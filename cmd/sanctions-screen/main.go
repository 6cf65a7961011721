package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aluiziolira/sanctions-screen/config"
	"github.com/aluiziolira/sanctions-screen/input"
	"github.com/aluiziolira/sanctions-screen/models"
	"github.com/aluiziolira/sanctions-screen/parser"
	"github.com/aluiziolira/sanctions-screen/pipeline"
	"github.com/aluiziolira/sanctions-screen/scraper"
)

const (
	exitSetup       = 1
	exitNoNames     = 2
	exitInterrupted = 130
)

var errNoNames = errors.New("no names provided: use --name, --input-txt or --input-csv")

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return exitSetup
}

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

// newRootCmd builds the command tree. A non-nil transport replaces the
// HTTP transport of every search.
func newRootCmd(transport http.RoundTripper) *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:   "sanctions-screen",
		Short: "Screen a list of names against the OpenSanctions search",
		Long: `sanctions-screen queries the OpenSanctions web search once per name and
writes one row per name with the match status, the number of linked
entities and the first few entity links.

Every flag can also be set through SANCTIONS_SCREEN_<FLAG> environment
variables (dashes become underscores) or a YAML file passed with --config.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, names, nil)
			if err != nil {
				return err
			}
			closeLog := setupLogging(cmd.ErrOrStderr(), cfg)
			defer closeLog()
			return runScreen(cmd, cfg, transport)
		},
	}

	addQueryFlags(cmd.PersistentFlags())

	flags := cmd.Flags()
	d := config.DefaultConfig()
	flags.StringArrayVar(&names, "name", nil, "Name to screen (repeatable)")
	flags.String(config.KeyInputTxt, "", "Text file with one name per line")
	flags.String(config.KeyInputCSV, "", "CSV file with a header row")
	flags.String(config.KeyNameColumn, "", "CSV column holding the full name")
	flags.String(config.KeyFirstNameColumn, d.Input.FirstNameColumn, "CSV column holding the first name")
	flags.String(config.KeyLastNameColumn, d.Input.LastNameColumn, "CSV column holding the last name")
	flags.String(config.KeyCSVDelimiter, string(d.Input.CSVDelimiter), "Input CSV delimiter (\\t for tab)")
	flags.String(config.KeyOutput, d.OutputFile, "Output file path")
	flags.String(config.KeyFormat, d.OutputFormat, "Output format: csv, json, or dual")
	flags.Int(config.KeyMaxLinks, d.MaxLinks, "Entity links kept per name")
	flags.Float64(config.KeySleep, d.Delay.Seconds(), "Seconds to wait between requests")
	flags.Int(config.KeyLimit, d.Limit, "Screen at most this many names after deduplication (0 = all)")
	flags.Bool(config.KeyNoDedupe, !d.Dedupe, "Keep duplicate names")
	flags.String(config.KeyMetricsAddr, "", "Prometheus metrics listen address (e.g. :9090)")

	cmd.AddCommand(newLookupCmd(transport))
	return cmd
}

// addQueryFlags registers the flags shared by batch and lookup mode.
func addQueryFlags(flags *pflag.FlagSet) {
	d := config.DefaultConfig()
	flags.String("config", "", "Optional YAML config file")
	flags.String(config.KeySearchURL, d.SearchURL, "Search URL template containing "+config.QueryPlaceholder)
	flags.String(config.KeyEntityPrefix, d.EntityPathPrefix, "Path prefix of entity detail pages")
	flags.StringArray(config.KeyNoMatchMarker, d.NoMatchMarkers, "Text marking a page without results (repeatable)")
	flags.String(config.KeyExtractor, d.Extractor, "Link extractor: document or pattern")
	flags.Float64(config.KeyTimeout, d.Timeout.Seconds(), "HTTP timeout in seconds")
	flags.String(config.KeyUserAgent, d.UserAgent, "User-Agent header sent with every search")
	flags.String(config.KeyLogFile, "", "Write rotated logs to this file instead of stderr")
	flags.BoolP(config.KeyVerbose, "v", false, "Enable verbose logging")
}

// loadConfig layers flags over environment over config file over defaults.
func loadConfig(cmd *cobra.Command, names []string, defaults map[string]any) (*config.Config, error) {
	v := config.NewViper()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if err := config.ReadFile(v, path); err != nil {
		return nil, err
	}

	cfg, err := config.Load(v, names)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newScraper(cfg *config.Config, transport http.RoundTripper) (*scraper.Scraper, error) {
	extractor, err := parser.NewExtractor(cfg.Extractor, cfg.BaseURL(), cfg.EntityPathPrefix)
	if err != nil {
		return nil, err
	}
	s, err := scraper.NewScraper(cfg, extractor)
	if err != nil {
		return nil, fmt.Errorf("initialising scraper: %w", err)
	}
	if transport != nil {
		s.WithTransport(transport)
	}
	return s, nil
}

func runScreen(cmd *cobra.Command, cfg *config.Config, transport http.RoundTripper) error {
	collection, err := input.Collect(cfg.Input)
	if err != nil {
		return err
	}
	for _, line := range collection.SkippedRows {
		slog.Info("skipping csv row without a name", slog.String("file", cfg.Input.CSVFile), slog.Int("line", line))
	}
	if len(collection.Names) == 0 {
		return &exitError{code: exitNoNames, err: errNoNames}
	}

	names := input.Select(collection.Names, cfg.Dedupe, cfg.Limit)
	slog.Info("starting screening",
		slog.Int("collected", len(collection.Names)),
		slog.Int("literal", collection.Literal),
		slog.Int("text_file", collection.FromText),
		slog.Int("csv_file", collection.FromCSV),
		slog.Int("queries", len(names)),
		slog.String("search_url", cfg.SearchURL),
	)

	s, err := newScraper(cfg, transport)
	if err != nil {
		return err
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)
	defer stopMetricsServer(metricsServer)

	p := pipeline.NewPipeline(writer)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	summary, err := s.Run(ctx, names, p)
	if err != nil {
		p.Close()
		return err
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	printSummary(cmd.OutOrStdout(), summary, cfg.OutputFile, p.GetMetrics())

	if summary.Interrupted {
		return &exitError{
			code: exitInterrupted,
			err:  fmt.Errorf("interrupted after %d of %d names", summary.TotalCount, len(names)),
		}
	}
	return nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(w io.Writer, summary *models.RunSummary, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	if summary.Interrupted {
		fmt.Fprintln(w, "Screening interrupted")
	} else {
		fmt.Fprintln(w, "Screening complete")
	}

	fmt.Fprintf(w, "  Names:         %d\n", summary.TotalCount)
	fmt.Fprintf(w, "  Match:         %d\n", summary.ByStatus[models.StatusMatch])
	fmt.Fprintf(w, "  No match:      %d\n", summary.ByStatus[models.StatusNoMatch])
	fmt.Fprintf(w, "  Unknown:       %d\n", summary.ByStatus[models.StatusUnknown])
	fmt.Fprintf(w, "  Errors:        %d\n", summary.ByStatus[models.StatusError])
	if len(summary.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", summary.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond))
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}
