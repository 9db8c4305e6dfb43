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
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("scraper exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Crawl the books catalog into a tabular file",
		Long: `scraper walks every listing page of the catalog in order, visits each
product page once and appends one row per product to the output as soon as
it is complete. Interrupting the run keeps every row written so far.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, configFile)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.StringP("output", "o", defaults.OutputFile, "Output file path")
	flags.String("format", defaults.OutputFormat, "Output format: csv, json, dual or sqlite")
	flags.Duration("delay", defaults.Delay, "Delay between consecutive requests")
	flags.Duration("timeout", defaults.Timeout, "Per-request timeout")
	flags.Int("detail-cache", defaults.DetailCacheSize, "Product pages kept in the in-run cache (0 disables)")
	flags.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	flags.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolP("verbose", "v", defaults.Verbose, "Enable verbose logging")

	return cmd
}

func run(cmd *cobra.Command, configFile string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := scraper.NewChannelReporter(64)
	crawler, err := scraper.NewCrawler(cfg, reporter, logger)
	if err != nil {
		return fmt.Errorf("initialise crawler: %w", err)
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, crawler.Metrics, logger)
	defer stopMetricsServer(metricsServer, logger)

	out := cmd.OutOrStdout()
	var result *models.CrawlResult
	g := new(errgroup.Group)
	g.Go(func() error {
		defer reporter.Close()
		var runErr error
		result, runErr = crawler.Run(ctx, cfg.OutputFile)
		return runErr
	})
	g.Go(func() error {
		drainEvents(out, reporter.Events())
		return nil
	})
	runErr := g.Wait()

	if result != nil {
		printSummary(out, result)
	}
	return runErr
}

// drainEvents prints notifications until the worker closes the stream.
func drainEvents(w io.Writer, events <-chan scraper.Event) {
	for ev := range events {
		switch ev.Kind {
		case scraper.EventStatus:
			fmt.Fprintln(w, ev.Message)
		case scraper.EventProgress:
			if ev.Progress.TotalKnown() {
				fmt.Fprintf(w, "Progress: page %d of %d\n", ev.Progress.Page, ev.Progress.TotalPages)
			} else {
				fmt.Fprintf(w, "Progress: page %d\n", ev.Progress.Page)
			}
		}
	}
}

func startMetricsServer(addr string, metrics *scraper.Metrics, logger *slog.Logger) *http.Server {
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
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server, logger *slog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(w io.Writer, result *models.CrawlResult) {
	duration := result.EndTime.Sub(result.StartTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.Scraped) / duration.Seconds()
	}

	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintf(w, "Scrape %s\n", result.State)
	fmt.Fprintf(w, "  Products:        %d\n", result.Scraped)
	if result.TotalPages > 0 {
		fmt.Fprintf(w, "  Pages:           %d of %d\n", result.Pages, result.TotalPages)
	} else {
		fmt.Fprintf(w, "  Pages:           %d\n", result.Pages)
	}
	fmt.Fprintf(w, "  Requests:        %d\n", result.RequestCount)
	fmt.Fprintf(w, "  Detail failures: %d\n", result.DetailFailures)
	if len(result.ErrorsByType) > 0 {
		kinds := make([]string, 0, len(result.ErrorsByType))
		for kind := range result.ErrorsByType {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(w, "  Errors (%s): %d\n", kind, result.ErrorsByType[kind])
		}
	}
	fmt.Fprintf(w, "  Failed URLs:     %d\n", len(result.FailedURLs))
	fmt.Fprintf(w, "  Duration:        %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Items/sec:       %.2f\n", itemsPerSec)
	fmt.Fprintf(w, "  Output file:     %s\n", result.OutputFile)
	fmt.Fprintln(w, separator)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
