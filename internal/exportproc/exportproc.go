// Package exportproc invokes the opaque, non-paginated database export
// procedure and exposes its result as a streaming row source. The core
// never materializes the full row set in memory: rows are consumed one
// at a time by the caller (internal/csvexport).
package exportproc

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RowIterator streams rows one at a time. Callers must call Close when done.
type RowIterator interface {
	Next() bool
	Values() ([]string, error)
	Err() error
	Close()
}

// Source invokes the export procedure for a unit's natural key.
type Source interface {
	Stream(ctx context.Context, indexKey string, effectiveDate int, asofIndicator string) (RowIterator, error)
}

// PostgresSource calls a database function that returns a row set; the
// engine treats the function as opaque.
type PostgresSource struct {
	pool         *pgxpool.Pool
	functionName string
}

// NewPostgresSource builds a Source bound to the given function name,
// invoked as "SELECT * FROM <functionName>(key, effective_date, asof)".
func NewPostgresSource(pool *pgxpool.Pool, functionName string) *PostgresSource {
	if functionName == "" {
		functionName = "export_rows"
	}
	return &PostgresSource{pool: pool, functionName: functionName}
}

func (s *PostgresSource) Stream(ctx context.Context, indexKey string, effectiveDate int, asofIndicator string) (RowIterator, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s($1, $2, $3)", s.functionName), indexKey, effectiveDate, asofIndicator)
	if err != nil {
		return nil, fmt.Errorf("invoke export procedure: %w", err)
	}
	return &pgxRowIterator{rows: rows}, nil
}

type pgxRowIterator struct {
	rows interface {
		Next() bool
		Values() ([]any, error)
		Err() error
		Close()
	}
}

func (it *pgxRowIterator) Next() bool { return it.rows.Next() }

func (it *pgxRowIterator) Values() ([]string, error) {
	vals, err := it.rows.Values()
	if err != nil {
		return nil, fmt.Errorf("read row values: %w", err)
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = stringify(v)
	}
	return out, nil
}

func (it *pgxRowIterator) Err() error { return it.rows.Err() }
func (it *pgxRowIterator) Close()     { it.rows.Close() }

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
