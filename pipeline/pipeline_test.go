package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

type mockWriter struct {
	mu          sync.Mutex
	header      int
	records     []*models.CrawlRecord
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) WriteHeader() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.header++
	return nil
}

func (mw *mockWriter) Write(record *models.CrawlRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	mw.records = append(mw.records, record)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func TestPipelineAppendCountsRows(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)

	if err := p.WriteHeader(); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := p.WriteHeader(); err != nil {
		t.Fatalf("second header: %v", err)
	}
	for range 3 {
		if err := p.Append(sampleRecord()); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := p.Append(nil); err != nil {
		t.Fatalf("append nil: %v", err)
	}

	if got := p.Rows(); got != 3 {
		t.Fatalf("rows=%d, want 3", got)
	}
	if writer.header != 1 {
		t.Fatalf("header written %d times, want 1", writer.header)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !writer.closed {
		t.Fatalf("writer not closed")
	}
}

func TestPipelineAppendBeforeHeader(t *testing.T) {
	p := NewPipeline(&mockWriter{})
	if err := p.Append(sampleRecord()); !errors.Is(err, ErrHeaderNotWritten) {
		t.Fatalf("err=%v, want ErrHeaderNotWritten", err)
	}
}

func TestPipelineAppendAfterClose(t *testing.T) {
	p := NewPipeline(&mockWriter{})
	if err := p.WriteHeader(); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := p.Append(sampleRecord()); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("err=%v, want ErrPipelineClosed", err)
	}
}

func TestPipelineWriteErrorIsIOError(t *testing.T) {
	cause := errors.New("disk full")
	p := NewPipeline(&mockWriter{writeErr: cause})
	if err := p.WriteHeader(); err != nil {
		t.Fatalf("write header: %v", err)
	}

	err := p.Append(sampleRecord())
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err=%T, want *IOError", err)
	}
	if ioErr.Op != "append" || !errors.Is(err, cause) {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Rows() != 0 {
		t.Fatalf("failed append must not count")
	}
}

func TestOpenFormats(t *testing.T) {
	tests := []struct {
		format string
		file   string
		extra  string
	}{
		{format: config.FormatCSV, file: "out.csv"},
		{format: config.FormatJSON, file: "out.jsonl"},
		{format: config.FormatDual, file: "out.csv", extra: "out.jsonl"},
		{format: config.FormatSQLite, file: "out.db"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "sub", tt.file)

			p, err := Open(tt.format, path)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if err := p.WriteHeader(); err != nil {
				t.Fatalf("header: %v", err)
			}
			if err := p.Append(sampleRecord()); err != nil {
				t.Fatalf("append: %v", err)
			}
			if err := p.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			if err := p.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}
			if p.Path() != path {
				t.Fatalf("path=%q, want %q", p.Path(), path)
			}
			if tt.extra != "" {
				if _, err := os.Stat(filepath.Join(dir, "sub", tt.extra)); err != nil {
					t.Fatalf("companion file: %v", err)
				}
			}
		})
	}
}

func TestOpenTruncatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := os.WriteFile(path, []byte("stale,data\n1,2\n3,4\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	p, err := Open(config.FormatCSV, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := p.WriteHeader(); err != nil {
		t.Fatalf("header: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	records := readCSV(t, path)
	if len(records) != 1 || records[0][0] != "capture_timestamp_utc" {
		t.Fatalf("unexpected contents: %v", records)
	}
}

func TestOpenFailures(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name   string
		format string
		path   string
		target error
	}{
		{name: "unknown format", format: "xml", path: filepath.Join(dir, "out.xml"), target: config.ErrInvalidFormat},
		{name: "parent is a file", format: config.FormatCSV, path: filepath.Join(blocker, "out.csv")},
		{name: "path is a directory", format: config.FormatCSV, path: dir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.format, tt.path)
			var ioErr *IOError
			if !errors.As(err, &ioErr) {
				t.Fatalf("err=%v, want *IOError", err)
			}
			if ioErr.Path != tt.path {
				t.Fatalf("path=%q, want %q", ioErr.Path, tt.path)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Fatalf("err=%v, want %v", err, tt.target)
			}
		})
	}
}
