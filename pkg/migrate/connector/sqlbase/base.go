// Package sqlbase implements the engine agnostic half of a database/sql backed connector.
// Engine packages embed *Base and fill in connecting and introspection.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/baderkha/shelter/pkg/migrate/table"
)

const defaultInsertChunkRows = 1000

// Dialect : the few ways engines disagree on sql text
type Dialect struct {
	Name        string
	QuoteIdent  func(string) string
	Placeholder func(n int) string
	// MaxParams : bind parameter limit of a single statement
	MaxParams int
}

// Backtick : mysql style identifier quoting
func Backtick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// DoubleQuote : ansi identifier quoting
func DoubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Bare : no quoting, the engine resolves identifier case itself
func Bare(s string) string {
	return s
}

// QuestionMark : ? placeholders
func QuestionMark(int) string {
	return "?"
}

// Dollar : $n placeholders
func Dollar(n int) string {
	return "$" + strconv.Itoa(n)
}

// Base : connector methods that only need a *sql.DB and a dialect
type Base struct {
	DB              *sql.DB
	Dialect         Dialect
	Log             zerolog.Logger
	InsertChunkRows int
}

// Disconnect : closes the pool, safe to call twice
func (b *Base) Disconnect() error {
	if b.DB == nil {
		return nil
	}
	err := b.DB.Close()
	b.DB = nil
	return err
}

// TestConnection : round trips SELECT 1
func (b *Base) TestConnection(ctx context.Context) bool {
	if b.DB == nil {
		return false
	}
	var one int
	if err := b.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		b.Log.Warn().Err(err).Str("engine", b.Dialect.Name).Msg("test query failed")
		return false
	}
	return one == 1
}

// QuoteTable : quotes every part of a possibly qualified table name
func (b *Base) QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = b.Dialect.QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// GetRowCount : SELECT COUNT(*)
func (b *Base) GetRowCount(ctx context.Context, tableName string) (int64, error) {
	var n int64
	err := b.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+b.QuoteTable(tableName)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows of %s : %w", tableName, err)
	}
	return n, nil
}

// ReadQuery : paging query for one batch
func (b *Base) ReadQuery(tableName string, limit int64, offset int64, sortColumn string) string {
	var q strings.Builder
	q.WriteString("SELECT * FROM ")
	q.WriteString(b.QuoteTable(tableName))
	if sortColumn != "" {
		q.WriteString(" ORDER BY ")
		q.WriteString(b.Dialect.QuoteIdent(sortColumn))
	}
	fmt.Fprintf(&q, " LIMIT %d OFFSET %d", limit, offset)
	return q.String()
}

// ReadTable : reads rows [offset, offset+limit), ordered by sortColumn when given
func (b *Base) ReadTable(ctx context.Context, tableName string, limit int64, offset int64, sortColumn string) (*table.RowBatch, error) {
	start := time.Now()
	rows, err := b.DB.QueryContext(ctx, b.ReadQuery(tableName, limit, offset, sortColumn))
	if err != nil {
		return nil, fmt.Errorf("read %s at offset %d : %w", tableName, offset, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	batch := &table.RowBatch{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s : %w", tableName, err)
		}
		batch.Rows = append(batch.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s at offset %d : %w", tableName, offset, err)
	}
	b.Log.Debug().
		Str("table", tableName).
		Int64("offset", offset).
		Int("rows", batch.Len()).
		Dur("dur", time.Since(start)).
		Msg("read batch")
	return batch, nil
}

func (b *Base) chunkRows(cols int) int {
	n := b.InsertChunkRows
	if n <= 0 {
		n = defaultInsertChunkRows
	}
	if b.Dialect.MaxParams > 0 && cols > 0 && n*cols > b.Dialect.MaxParams {
		n = b.Dialect.MaxParams / cols
	}
	if n < 1 {
		n = 1
	}
	return n
}

// InsertQuery : multi row insert for n rows
func (b *Base) InsertQuery(tableName string, cols []string, n int) string {
	var q strings.Builder
	q.WriteString("INSERT INTO ")
	q.WriteString(b.QuoteTable(tableName))
	q.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			q.WriteString(", ")
		}
		q.WriteString(b.Dialect.QuoteIdent(c))
	}
	q.WriteString(") VALUES ")
	param := 1
	for r := 0; r < n; r++ {
		if r > 0 {
			q.WriteString(", ")
		}
		q.WriteString("(")
		for i := range cols {
			if i > 0 {
				q.WriteString(", ")
			}
			q.WriteString(b.Dialect.Placeholder(param))
			param++
		}
		q.WriteString(")")
	}
	return q.String()
}

// WriteTable : inserts the batch in chunks inside one transaction
func (b *Base) WriteTable(ctx context.Context, tableName string, batch *table.RowBatch) (err error) {
	if batch.Len() == 0 {
		b.Log.Warn().Str("table", tableName).Msg("empty batch, nothing to write")
		return nil
	}
	start := time.Now()
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write to %s : %w", tableName, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	chunk := b.chunkRows(len(batch.Columns))
	for lo := 0; lo < len(batch.Rows); lo += chunk {
		hi := min(lo+chunk, len(batch.Rows))
		args := make([]any, 0, (hi-lo)*len(batch.Columns))
		for _, row := range batch.Rows[lo:hi] {
			args = append(args, row...)
		}
		if _, err = tx.ExecContext(ctx, b.InsertQuery(tableName, batch.Columns, hi-lo), args...); err != nil {
			return fmt.Errorf("insert into %s : %w", tableName, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit write to %s : %w", tableName, err)
	}
	b.Log.Debug().
		Str("table", tableName).
		Int("rows", batch.Len()).
		Dur("dur", time.Since(start)).
		Msg("wrote batch")
	return nil
}

// DeleteAllRows : DELETE FROM
func (b *Base) DeleteAllRows(ctx context.Context, tableName string) error {
	if _, err := b.DB.ExecContext(ctx, "DELETE FROM "+b.QuoteTable(tableName)); err != nil {
		return fmt.Errorf("delete rows of %s : %w", tableName, err)
	}
	return nil
}

// QueryColumn : every value of one result column, picked by name (case insensitive)
// or the first column when name is empty
func (b *Base) QueryColumn(ctx context.Context, query string, name string, args ...any) ([]string, error) {
	var res []string
	err := b.scanRaw(ctx, query, args, func(cols []string, vals []sql.RawBytes) error {
		idx, err := columnIndex(cols, name)
		if err != nil {
			return err
		}
		res = append(res, string(vals[idx]))
		return nil
	})
	return res, err
}

// Describe : schema out of a describe style query, one row per column
func (b *Base) Describe(ctx context.Context, query string, nameCol string, typeCol string, args ...any) (table.Schema, error) {
	var res table.Schema
	err := b.scanRaw(ctx, query, args, func(cols []string, vals []sql.RawBytes) error {
		ni, err := columnIndex(cols, nameCol)
		if err != nil {
			return err
		}
		ti, err := columnIndex(cols, typeCol)
		if err != nil {
			return err
		}
		res = append(res, table.Column{Name: string(vals[ni]), Type: string(vals[ti])})
		return nil
	})
	return res, err
}

func (b *Base) scanRaw(ctx context.Context, query string, args []any, fn func(cols []string, vals []sql.RawBytes) error) error {
	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	vals := make([]sql.RawBytes, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := fn(cols, vals); err != nil {
			return err
		}
	}
	return rows.Err()
}

func columnIndex(cols []string, name string) (int, error) {
	if name == "" && len(cols) > 0 {
		return 0, nil
	}
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %s not in result %v", name, cols)
}
