// Package csvexport streams rows from an exportproc.Source into CSV,
// writing directly into an io.Writer so that rows are never fully
// materialized in memory.
package csvexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"batchexport/internal/exportproc"
)

// Stream invokes the export procedure and writes every row as a CSV line
// into w. It returns the number of rows written.
func Stream(ctx context.Context, source exportproc.Source, w io.Writer, indexKey string, effectiveDate int, asofIndicator string) (int64, error) {
	iter, err := source.Stream(ctx, indexKey, effectiveDate, asofIndicator)
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	writer := csv.NewWriter(w)
	var count int64
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		record, err := iter.Values()
		if err != nil {
			return count, fmt.Errorf("read export row: %w", err)
		}
		if err := writer.Write(record); err != nil {
			return count, fmt.Errorf("write csv row: %w", err)
		}
		count++
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("export procedure stream: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return count, fmt.Errorf("flush csv: %w", err)
	}
	return count, nil
}
