// Package scraper drives the catalog crawl: it fetches listing and detail pages
// one at a time, spaced by a polite delay, and streams every record to the output
// as soon as it is complete.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
)

const progressLogInterval = 30 * time.Second

// Crawler traverses the catalog sequentially. A Crawler runs once; its state
// moves from Idle to Running and then to Completed, Cancelled or Failed.
type Crawler struct {
	cfg      *config.Config
	fetcher  *PageFetcher
	limiter  *RateLimiter
	details  *lru.Cache[string, models.DetailRecord]
	reporter Reporter
	logger   *slog.Logger
	now      func() time.Time
	Metrics  *Metrics

	state atomic.Int32

	// Owned by the goroutine executing Run.
	requestCount   int
	detailFailures int
	errorsByType   map[string]int
	failedURLs     []string
}

// NewCrawler builds a crawler from cfg. A nil reporter or logger discards output.
func NewCrawler(cfg *config.Config, reporter Reporter, logger *slog.Logger) (*Crawler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	metrics := NewMetrics()
	fetcher, err := NewPageFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}

	c := &Crawler{
		cfg:          cfg,
		fetcher:      fetcher,
		limiter:      NewRateLimiter(cfg.Delay),
		reporter:     reporter,
		logger:       logger,
		now:          time.Now,
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}
	if cfg.DetailCacheSize > 0 {
		c.details, err = lru.New[string, models.DetailRecord](cfg.DetailCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create detail cache: %w", err)
		}
	}
	return c, nil
}

// State returns the current lifecycle state. Safe to call from any goroutine.
func (c *Crawler) State() models.State {
	return models.State(c.state.Load())
}

// Run crawls the catalog into outputPath and returns once a terminal state is
// reached. Cancelling ctx stops the crawl at the next check point; that is not an
// error. The returned result is non-nil whenever the crawler was Idle, and its
// Scraped count always equals the number of rows in the output.
func (c *Crawler) Run(ctx context.Context, outputPath string) (*models.CrawlResult, error) {
	if !c.state.CompareAndSwap(int32(models.StateIdle), int32(models.StateRunning)) {
		return nil, ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.CrawlResult{
		OutputFile: outputPath,
		StartTime:  c.now(),
	}
	c.logger.Info("starting scrape",
		slog.String("base_url", c.cfg.BaseURL),
		slog.String("output", outputPath),
		slog.String("format", c.cfg.OutputFormat),
		slog.Duration("delay", c.limiter.Interval()),
	)
	c.status("Starting scrape...")

	sink, err := pipeline.Open(c.cfg.OutputFormat, outputPath)
	if err != nil {
		return c.finish(result, 0, models.StateFailed, fmt.Errorf("open output: %w", err))
	}
	if err := sink.WriteHeader(); err != nil {
		if closeErr := sink.Close(); closeErr != nil {
			c.logger.Error("close output", slog.Any("error", closeErr))
		}
		return c.finish(result, 0, models.StateFailed, fmt.Errorf("write header: %w", err))
	}

	sink.StartMetricsReporting(progressLogInterval, c.logger)

	state, runErr := c.crawl(ctx, sink, result)

	if err := sink.Close(); err != nil {
		c.logger.Error("close output", slog.Any("error", err))
		if runErr == nil {
			state, runErr = models.StateFailed, fmt.Errorf("close output: %w", err)
		}
	}
	if runErr == nil {
		if err := sink.Validate(); err != nil {
			c.logger.Warn("output validation failed", slog.String("output", outputPath), slog.Any("error", err))
		}
	}
	return c.finish(result, sink.Rows(), state, runErr)
}

func (c *Crawler) crawl(ctx context.Context, sink *pipeline.Pipeline, result *models.CrawlResult) (models.State, error) {
	pageURL := c.cfg.BaseURL
	doc, err := c.fetch(ctx, phaseListing, pageURL)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return c.stopRequested(), nil
		}
		return models.StateFailed, fmt.Errorf("fetch start page: %w", err)
	}

	total, known := parser.TotalPages(doc)
	result.TotalPages = total
	if known {
		c.logger.Info("discovered total pages", slog.Int("total_pages", total))
		c.status(fmt.Sprintf("Found %d pages. Starting scraping.", total))
	} else {
		c.logger.Info("discovered total pages", slog.String("total_pages", "unknown"))
		c.status("Starting scraping (total pages unknown).")
	}

	visited := map[string]struct{}{pageURL: {}, doc.Url.String(): {}}
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return c.stopRequested(), nil
		}

		if page > 1 {
			doc, err = c.fetch(ctx, phaseListing, pageURL)
			if err != nil {
				if errors.Is(err, ErrCancelled) {
					return c.stopRequested(), nil
				}
				c.logger.Warn("failed to fetch page",
					slog.Int("page", page),
					slog.String("url", pageURL),
					slog.Any("error", err),
				)
				c.status(fmt.Sprintf("Failed to fetch page %d: %v", page, err))
				return models.StateCompleted, nil
			}
			visited[doc.Url.String()] = struct{}{}
			if t, ok := parser.TotalPages(doc); ok {
				total = t
				result.TotalPages = t
			}
		}

		c.logger.Info("parsing page", slog.Int("page", page), slog.String("url", pageURL))
		c.status(fmt.Sprintf("Parsing page %d...", page))

		stopped, err := c.processPage(ctx, doc, sink)
		if err != nil {
			return models.StateFailed, err
		}
		result.Pages = page
		c.Metrics.IncPages()
		c.reporter.OnProgress(models.Progress{Page: page, TotalPages: total})
		if stopped {
			return c.stopRequested(), nil
		}

		next, ok := parser.NextPageURL(doc, doc.Url)
		if !ok {
			c.logger.Info("no next page, scraping finished", slog.Int("pages", page))
			return models.StateCompleted, nil
		}
		if _, seen := visited[next]; seen {
			c.logger.Warn("next page already visited, stopping", slog.String("url", next))
			return models.StateCompleted, nil
		}
		visited[next] = struct{}{}
		pageURL = next
	}
}

// processPage writes one record per card in document order. It reports true when
// cancellation was observed before the page was exhausted.
func (c *Crawler) processPage(ctx context.Context, doc *goquery.Document, sink *pipeline.Pipeline) (bool, error) {
	cards := doc.Find(parser.CardSelector)
	for i := range cards.Length() {
		item := parser.ParseListingItem(cards.Eq(i), doc.Url)
		if err := parser.ValidateItem(item); err != nil {
			c.logger.Warn("incomplete listing card", slog.Int("index", i), slog.Any("error", err))
		}
		c.logger.Debug("parsed product summary", slog.String("name", item.Name))

		detail, err := c.detail(ctx, item)
		if err != nil {
			return true, nil
		}

		record := &models.CrawlRecord{
			CapturedAt:   c.now().UTC().Truncate(time.Second),
			ListingItem:  item,
			DetailRecord: detail,
		}
		if err := sink.Append(record); err != nil {
			return false, fmt.Errorf("append record: %w", err)
		}
		c.Metrics.IncRecords()

		if ctx.Err() != nil {
			return true, nil
		}
	}
	return false, nil
}

// detail fetches and parses the product page of item. Fetch failures are
// absorbed and yield an empty record; only cancellation is returned.
func (c *Crawler) detail(ctx context.Context, item models.ListingItem) (models.DetailRecord, error) {
	if item.URL == "" {
		return models.DetailRecord{}, nil
	}
	if c.details != nil {
		if cached, ok := c.details.Get(item.URL); ok {
			c.Metrics.IncCacheHit()
			return cached, nil
		}
	}

	doc, err := c.fetch(ctx, phaseDetail, item.URL)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return models.DetailRecord{}, err
		}
		c.detailFailures++
		c.logger.Warn("failed to fetch product page",
			slog.String("url", item.URL),
			slog.Any("error", err),
		)
		c.status(fmt.Sprintf("Failed to fetch product page %s: %v", item.URL, err))
		return models.DetailRecord{}, nil
	}

	detail := parser.ParseDetail(doc)
	if c.details != nil {
		c.details.Add(item.URL, detail)
	}
	if detail.UPC != nil {
		c.logger.Debug("parsed product detail", slog.String("name", item.Name), slog.String("upc", *detail.UPC))
	}
	return detail, nil
}

// fetch waits for the polite delay and issues one request.
func (c *Crawler) fetch(ctx context.Context, phase, rawURL string) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	c.requestCount++
	c.Metrics.IncRequest(phase)
	doc, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		label := errorTypeLabel(err)
		c.errorsByType[label]++
		c.failedURLs = append(c.failedURLs, rawURL)
		c.Metrics.IncError(phase, label)
		c.logger.Debug("request error",
			slog.String("phase", phase),
			slog.String("url", rawURL),
			slog.String("category", label),
			slog.Any("error", err),
		)
		return nil, err
	}
	return doc, nil
}

func (c *Crawler) stopRequested() models.State {
	c.logger.Info("stop requested, exiting loop")
	c.status("Stopping as requested...")
	return models.StateCancelled
}

func (c *Crawler) finish(result *models.CrawlResult, rows int64, state models.State, err error) (*models.CrawlResult, error) {
	result.State = state
	result.Scraped = int(rows)
	result.EndTime = c.now()
	result.RequestCount = c.requestCount
	result.DetailFailures = c.detailFailures
	result.ErrorsByType = maps.Clone(c.errorsByType)
	result.FailedURLs = append([]string(nil), c.failedURLs...)
	c.state.Store(int32(state))

	switch state {
	case models.StateCompleted:
		c.logger.Info("scraping completed", slog.Int("products", result.Scraped), slog.Int("pages", result.Pages))
		c.status(fmt.Sprintf("Completed: %d products saved to %s", result.Scraped, result.OutputFile))
	case models.StateCancelled:
		c.logger.Info("scraping stopped by user", slog.Int("products", result.Scraped), slog.Int("pages", result.Pages))
		c.status(fmt.Sprintf("Stopped by user. %d products saved to %s", result.Scraped, result.OutputFile))
	default:
		c.logger.Error("scraping failed", slog.Int("products", result.Scraped), slog.Any("error", err))
		c.status(fmt.Sprintf("Error: %v", err))
	}
	return result, err
}

func (c *Crawler) status(message string) {
	c.reporter.OnStatus(message)
}
