package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

const (
	ctxKeyStart  = "start"
	ctxKeyBody   = "body"
	ctxKeyURL    = "url"
	ctxKeyStatus = "status"
)

// Fetcher retrieves one HTML document.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// PageFetcher performs single GET requests through a synchronous colly collector.
// It never retries; the caller decides how severe a failure is.
type PageFetcher struct {
	collector *colly.Collector
	metrics   *Metrics
}

// NewPageFetcher builds a fetcher restricted to the configured site.
func NewPageFetcher(cfg *config.Config, metrics *Metrics) (*PageFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
	}); err != nil {
		return nil, fmt.Errorf("configure limits: %w", err)
	}

	f := &PageFetcher{
		collector: collector,
		metrics:   metrics,
	}
	f.configureHandlers()
	return f, nil
}

func (f *PageFetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxKeyStart, time.Now())
	})

	f.collector.OnResponse(func(r *colly.Response) {
		f.observe(r)
		r.Ctx.Put(ctxKeyBody, r.Body)
		r.Ctx.Put(ctxKeyURL, r.Request.URL)
	})

	f.collector.OnError(func(r *colly.Response, _ error) {
		if r == nil || r.Ctx == nil {
			return
		}
		f.observe(r)
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
	})
}

func (f *PageFetcher) observe(r *colly.Response) {
	if f.metrics == nil || r.Request == nil {
		return
	}
	if start, ok := r.Ctx.GetAny(ctxKeyStart).(time.Time); ok {
		f.metrics.ObserveDuration(time.Since(start))
	}
}

// Fetch issues one GET for rawURL and parses the body. It refuses to start once
// ctx is done; a request already in flight is allowed to complete.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil); err != nil {
		status, _ := reqCtx.GetAny(ctxKeyStatus).(int)
		return nil, &FetchError{URL: rawURL, StatusCode: status, Err: classifyError(err, status)}
	}

	body, ok := reqCtx.GetAny(ctxKeyBody).([]byte)
	if !ok {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("empty response")}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("parse html: %w", err)}
	}
	if final, ok := reqCtx.GetAny(ctxKeyURL).(*url.URL); ok {
		doc.Url = final
	} else if parsed, err := url.Parse(rawURL); err == nil {
		doc.Url = parsed
	}
	return doc, nil
}
