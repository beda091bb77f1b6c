// Package queryrun defines the query-execution contract consumed by the
// executor, plus a SQL implementation backed by a .sql catalog.
package queryrun

import "context"

// Request identifies one execution of a catalog query.
type Request struct {
	// Query is the query identifier, a filename in the catalog.
	Query      string
	Connection string
	Parameters map[string]any
}

// Result is the runner's outcome. Ordinary query failures come back with
// Success=false and an ErrorMessage; the runner does not turn them into
// errors. Rows are ordered flat records; Columns preserves the select
// order so exports keep stable column positions.
type Result struct {
	Success      bool
	RowCount     int
	Columns      []string
	Rows         []map[string]any
	ErrorMessage string
}

// Runner executes predefined queries. Implementations may block and are
// invoked from worker goroutines; they must honor ctx for cancellation
// of their own I/O but need not make it prompt.
type Runner interface {
	Execute(ctx context.Context, req Request) *Result
}
