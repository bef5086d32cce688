// Package adapter provides the execution engines pipelines run on. An
// adapter loads files into tables, runs SQL, materializes tables as frames
// for lineage tracking and writes tables back out.
package adapter

import (
	"context"
	"database/sql"

	"github.com/souptikmandal/lineagekit/pkg/core"
)

// Config holds the configuration for connecting to an engine.
type Config struct {
	// Type specifies the engine type (e.g., "duckdb")
	Type string `koanf:"type"`

	// Path is the database file. Use ":memory:" (or "") for in-memory.
	Path string `koanf:"path"`

	// Options contains additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Column represents a column in a table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata holds metadata about a table.
type Metadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter defines the interface every execution engine implements.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// GetTableMetadata retrieves metadata for a table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// LoadFile creates (or replaces) table from a data file. An empty
	// format is inferred from the file extension.
	LoadFile(ctx context.Context, table, path, format string) error

	// ReadFrame materializes a table as a frame.
	ReadFrame(ctx context.Context, table string) (*core.Frame, error)

	// WriteFile writes a table to a data file.
	WriteFile(ctx context.Context, table, path, format string) error
}
