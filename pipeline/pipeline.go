// Package pipeline persists crawl records as they are produced. Every append is
// durable before it returns, so an interrupted run leaves a well-formed output.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

var (
	// ErrPipelineClosed is returned when Append is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")

	// ErrHeaderNotWritten is returned when Append is called before WriteHeader.
	ErrHeaderNotWritten = errors.New("pipeline: header not written")
)

// IOError describes a failure to create or write the output destination.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	WriteHeader() error
	Write(record *models.CrawlRecord) error
	Close() error
	Validate() error
}

// NewWriter builds the writer for format at path.
func NewWriter(format, path string) (OutputWriter, error) {
	switch format {
	case config.FormatCSV, "":
		return NewCSVWriter(path)
	case config.FormatJSON:
		return NewJSONWriter(path)
	case config.FormatDual:
		return NewDualWriter(path, JSONLPath(path))
	case config.FormatSQLite:
		return NewSQLiteWriter(path)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidFormat, format)
	}
}

// Pipeline is the record sink used by the crawler. It owns one writer and counts
// the rows that reached it.
type Pipeline struct {
	writer OutputWriter
	path   string
	rows   atomic.Int64

	mu            sync.Mutex // guards headerWritten/closed
	headerWritten bool
	closed        bool

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Open creates or truncates the destination at path in the given format.
func Open(format, path string) (*Pipeline, error) {
	writer, err := NewWriter(format, path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	p := NewPipeline(writer)
	p.path = path
	return p, nil
}

// NewPipeline wraps an existing writer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		shutdown: make(chan struct{}),
	}
}

// Path returns the destination the pipeline was opened on.
func (p *Pipeline) Path() string {
	return p.path
}

// WriteHeader writes the column header. Calling it twice is a no-op.
func (p *Pipeline) WriteHeader() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if p.headerWritten {
		return nil
	}
	if err := p.writer.WriteHeader(); err != nil {
		return &IOError{Op: "write header", Path: p.path, Err: err}
	}
	p.headerWritten = true
	return nil
}

// Append writes one record; it is durable once Append returns nil.
func (p *Pipeline) Append(record *models.CrawlRecord) error {
	if record == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if !p.headerWritten {
		return ErrHeaderNotWritten
	}
	if err := p.writer.Write(record); err != nil {
		return &IOError{Op: "append", Path: p.path, Err: err}
	}
	p.rows.Add(1)
	return nil
}

// Rows returns the number of records appended so far.
func (p *Pipeline) Rows() int64 {
	return p.rows.Load()
}

// Close flushes and closes the writer. Later calls return nil.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})

	if err := p.writer.Close(); err != nil {
		return &IOError{Op: "close", Path: p.path, Err: err}
	}
	return nil
}

// Validate checks that the output holds data.
func (p *Pipeline) Validate() error {
	return p.writer.Validate()
}

// StartMetricsReporting logs the row count every interval until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration, logger *slog.Logger) {
	if interval <= 0 || logger == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logger.Info("pipeline progress", slog.Int64("rows", p.Rows()), slog.String("output", p.path))
			case <-p.shutdown:
				return
			}
		}
	}()
}
