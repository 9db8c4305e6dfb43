package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aluiziolira/go-scrape-catalog/models"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	capture_timestamp_utc TEXT NOT NULL,
	name TEXT NOT NULL,
	price_text TEXT NOT NULL,
	price REAL,
	rating INTEGER,
	availability TEXT NOT NULL,
	product_url TEXT NOT NULL,
	upc TEXT,
	category TEXT,
	description TEXT
)`

const insertRecord = `
INSERT INTO records (
	capture_timestamp_utc, name, price_text, price, rating,
	availability, product_url, upc, category, description
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLiteWriter stores records in the table "records" of a SQLite database.
// Each insert is autocommitted, so rows written before an interruption survive.
type SQLiteWriter struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

// NewSQLiteWriter creates a fresh database at filename, replacing any existing file.
func NewSQLiteWriter(filename string) (*SQLiteWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite", filename+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &SQLiteWriter{path: filename, db: db}, nil
}

// WriteHeader creates the records table.
func (sw *SQLiteWriter) WriteHeader() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if _, err := sw.db.ExecContext(context.Background(), createRecordsTable); err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// Write inserts one record.
func (sw *SQLiteWriter) Write(record *models.CrawlRecord) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	_, err := sw.db.ExecContext(context.Background(), insertRecord,
		record.CapturedAt.UTC().Format(time.RFC3339),
		record.Name,
		record.PriceText,
		nullFloat(record.Price),
		nullInt(record.Rating),
		record.Availability,
		record.URL,
		nullString(record.UPC),
		nullString(record.Category),
		nullString(record.Description),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	return sw.db.Close()
}

// Validate ensures the database file exists and is not empty.
func (sw *SQLiteWriter) Validate() error {
	return validateFile(sw.path, "sqlite")
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
