// Package output writes crawl datasets to files or stdout.
package output

import (
	"fmt"
	"io"
	"os"
)

// Formats.
const (
	FormatJSON  = "json"  // one JSON document
	FormatJSONL = "jsonl" // one record per line
)

// Writer defines the interface for dataset writers.
type Writer interface {
	// WriteResult writes a complete document, e.g. the page list or the
	// whole crawl result.
	WriteResult(v any) error

	// WriteRecord writes one record. Only stream writers emit records.
	WriteRecord(v any) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format   string
	Pretty   bool
	FilePath string // "" or "-" for stdout
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case FormatJSONL:
		return NewJSONWriter(w, false, true)
	default:
		return NewJSONWriter(w, config.Pretty, false)
	}
}

// Open creates a writer for config.FilePath. Stdout is never closed.
func Open(config Config) (Writer, error) {
	if config.FilePath == "" || config.FilePath == "-" {
		return NewWriter(nopCloser{os.Stdout}, config), nil
	}
	f, err := os.Create(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return NewWriter(f, config), nil
}

type nopCloser struct {
	io.Writer
}
