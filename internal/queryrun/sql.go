package queryrun

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DSNResolver maps a logical connection name to a driver DSN.
type DSNResolver interface {
	DatabaseDSN(name string) (driver, dsn string, err error)
}

// SQLRunner reads query text from a .sql catalog directory and runs it
// against the connection the job names. Connections are pooled per
// logical name and reused across fires.
type SQLRunner struct {
	queriesDir string
	resolver   DSNResolver

	mu    sync.Mutex
	pools map[string]*sqlx.DB
}

func NewSQLRunner(queriesDir string, resolver DSNResolver) *SQLRunner {
	return &SQLRunner{
		queriesDir: queriesDir,
		resolver:   resolver,
		pools:      make(map[string]*sqlx.DB),
	}
}

// Execute loads the query text and streams all rows into memory. Failures
// at any stage produce a failed Result rather than an error; the caller
// records the message in the execution history verbatim.
func (r *SQLRunner) Execute(ctx context.Context, req Request) *Result {
	text, err := os.ReadFile(filepath.Join(r.queriesDir, req.Query))
	if err != nil {
		return failed(fmt.Sprintf("query file not readable: %v", err))
	}

	db, err := r.pool(req.Connection)
	if err != nil {
		return failed(err.Error())
	}

	query := string(text)
	var rows *sqlx.Rows
	if len(req.Parameters) > 0 {
		rows, err = sqlx.NamedQueryContext(ctx, db, query, req.Parameters)
	} else {
		rows, err = db.QueryxContext(ctx, query)
	}
	if err != nil {
		return failed(err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return failed(err.Error())
	}

	var out []map[string]any
	for rows.Next() {
		record := make(map[string]any, len(columns))
		if err := rows.MapScan(record); err != nil {
			return failed(err.Error())
		}
		for k, v := range record {
			if b, ok := v.([]byte); ok {
				record[k] = string(b)
			}
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return failed(err.Error())
	}

	return &Result{Success: true, RowCount: len(out), Columns: columns, Rows: out}
}

func (r *SQLRunner) pool(name string) (*sqlx.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.pools[name]; ok {
		return db, nil
	}
	driver, dsn, err := r.resolver.DatabaseDSN(name)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection %q: %w", name, err)
	}
	r.pools[name] = db
	return db, nil
}

// Close releases every pooled connection. Called during shutdown.
func (r *SQLRunner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, db := range r.pools {
		if err := db.Close(); err != nil {
			log.Printf("queryrun: close connection %s: %v", name, err)
		}
		delete(r.pools, name)
	}
}

func failed(msg string) *Result {
	return &Result{Success: false, ErrorMessage: msg}
}
