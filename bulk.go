package strata

import (
	"context"
	"fmt"
	"strings"
)

// maxBulkArgs caps the parameter count of one statement. PostgreSQL's wire
// protocol limit is 65535 bind parameters; staying well below it keeps
// statements cheap to parse.
const maxBulkArgs = 30000

// bulkInsert builds multi-row INSERT statements with generated placeholders,
// so callers never count $n positions by hand. Rows are flushed in chunks
// that respect the parameter limit.
type bulkInsert struct {
	table   string
	columns []string
	suffix  string // e.g. "ON CONFLICT (name) DO NOTHING"
	rows    [][]any
}

// newBulkInsert creates a builder for the given table and column list.
func newBulkInsert(table string, columns ...string) *bulkInsert {
	return &bulkInsert{table: table, columns: columns}
}

// onConflict appends a conflict clause to every generated statement.
func (b *bulkInsert) onConflict(clause string) *bulkInsert {
	b.suffix = clause
	return b
}

// add queues one row. The argument count must match the column list.
func (b *bulkInsert) add(args ...any) {
	if len(args) != len(b.columns) {
		panic(fmt.Sprintf("bulkInsert %s: got %d args, want %d", b.table, len(args), len(b.columns)))
	}
	b.rows = append(b.rows, args)
}

// statements renders the queued rows into one or more (query, args) pairs.
func (b *bulkInsert) statements() []statement {
	if len(b.rows) == 0 {
		return nil
	}

	rowsPerChunk := maxBulkArgs / len(b.columns)
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	var stmts []statement
	for start := 0; start < len(b.rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(b.rows) {
			end = len(b.rows)
		}
		chunk := b.rows[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]any, 0, len(chunk)*len(b.columns))
		argIdx := 1

		for _, row := range chunk {
			ph := make([]string, len(row))
			for i := range row {
				ph[i] = fmt.Sprintf("$%d", argIdx)
				argIdx++
			}
			values = append(values, "("+strings.Join(ph, ", ")+")")
			args = append(args, row...)
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			b.table, strings.Join(b.columns, ", "), strings.Join(values, ", "))
		if b.suffix != "" {
			query += " " + b.suffix
		}
		stmts = append(stmts, statement{query: query, args: args})
	}

	return stmts
}

// exec flushes all queued rows through the given Execer.
func (b *bulkInsert) exec(ctx context.Context, db Execer) error {
	for _, st := range b.statements() {
		if _, err := db.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", b.table, err)
		}
	}
	return nil
}

// statement is one rendered query with its bind arguments.
type statement struct {
	query string
	args  []any
}

// placeholders renders "$1, $2, ... $n" starting at 1, for IN lists.
func placeholders(n int) string {
	ph := make([]string, n)
	for i := 0; i < n; i++ {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

// placeholdersFrom renders "$start, ... $start+n-1".
func placeholdersFrom(start, n int) string {
	ph := make([]string, n)
	for i := 0; i < n; i++ {
		ph[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ph, ", ")
}
