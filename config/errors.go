// Package config holds crawler configuration, its defaults and validation.
package config

import "errors"

// Validation errors returned by Config.Validate, usable with errors.Is.
var (
	ErrEmptyBaseURL     = errors.New("base URL cannot be empty")
	ErrInvalidBaseURL   = errors.New("invalid base URL")
	ErrInvalidDelay     = errors.New("delay cannot be negative")
	ErrInvalidTimeout   = errors.New("timeout must be positive")
	ErrInvalidCacheSize = errors.New("detail cache size cannot be negative")
	ErrEmptyOutput      = errors.New("output file cannot be empty")
	ErrInvalidFormat    = errors.New("output format must be csv, json, dual, or sqlite")
	ErrEmptyUserAgent   = errors.New("user agent cannot be empty")

	// ErrConfigNotFound is returned by Load when an explicit config file is missing.
	ErrConfigNotFound = errors.New("configuration file not found")
)
