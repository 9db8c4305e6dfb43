// Package models defines data structures for the crawler.
package models

import (
	"strconv"
	"time"
)

// Columns is the fixed header of the tabular output.
var Columns = []string{
	"capture_timestamp_utc",
	"name",
	"price_text",
	"price",
	"rating",
	"availability",
	"product_url",
	"upc",
	"category",
	"description",
}

// ListingItem holds the summary fields of one card on a listing page.
type ListingItem struct {
	Name         string   `json:"name"`
	PriceText    string   `json:"price_text"`
	Price        *float64 `json:"price"`
	Rating       *int     `json:"rating"`
	Availability string   `json:"availability"`
	URL          string   `json:"product_url"`
}

// DetailRecord holds the fields read from a product detail page.
type DetailRecord struct {
	UPC         *string `json:"upc"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
}

// CrawlRecord is one persisted row: a listing item, its detail fields and the capture time.
type CrawlRecord struct {
	CapturedAt time.Time `json:"capture_timestamp_utc"`
	ListingItem
	DetailRecord
}

// Row renders the record in Columns order. Absent fields become empty cells.
func (r *CrawlRecord) Row() []string {
	return []string{
		r.CapturedAt.UTC().Format(time.RFC3339),
		r.Name,
		r.PriceText,
		formatFloat(r.Price),
		formatInt(r.Rating),
		r.Availability,
		r.URL,
		deref(r.UPC),
		deref(r.Category),
		deref(r.Description),
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// State is the lifecycle of a crawl run.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Progress is emitted once per processed listing page.
type Progress struct {
	Page       int
	TotalPages int // 0 when the site does not advertise a total
}

// TotalKnown reports whether the page count indicator was found.
func (p Progress) TotalKnown() bool {
	return p.TotalPages > 0
}

// CrawlResult holds the overall result of a crawl run.
type CrawlResult struct {
	State          State
	Scraped        int
	Pages          int
	TotalPages     int
	DetailFailures int
	RequestCount   int
	ErrorsByType   map[string]int
	FailedURLs     []string
	OutputFile     string
	StartTime      time.Time
	EndTime        time.Time
}
