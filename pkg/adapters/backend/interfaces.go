// Package backend defines the execution surface shared by the SQL
// warehouse and semantic model adapters, and the execution error
// taxonomy the correction loop keys off.
package backend

import (
	"context"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// Backend executes queries against one connected data backend and
// discovers its schema. Implementations own their connections and must
// be closed when done.
type Backend interface {
	// Kind returns which backend this is.
	Kind() models.BackendKind

	// Execute runs a query and returns at most rowLimit rows.
	// Failures are returned as *ExecutionError.
	Execute(ctx context.Context, query string, rowLimit int) (*QueryResult, error)

	// DiscoverSchema performs a discovery pass over the backend's
	// structure. Callers cache the result; this is expected to be slow.
	DiscoverSchema(ctx context.Context) (*models.Schema, error)

	// Close releases the underlying connection.
	Close() error
}

// QueryResult contains the normalized result of a query execution.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	// TotalRows is the row count before the cap was applied; it may
	// exceed len(Rows).
	TotalRows int  `json:"total_rows"`
	Truncated bool `json:"truncated"`
}
