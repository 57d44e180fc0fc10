// Package postgres is the postgres connector. Writes go through COPY when the pool is
// backed by pgx directly, multi row inserts otherwise.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connection"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/connector/sqlbase"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

const (
	Engine = "postgres"

	defaultSchema = "public"
)

var errNotPgx = errors.New("connection is not a pgx connection")

func init() {
	connector.MustRegister(Engine, New)
}

// Dialect : double quotes and $n placeholders
var Dialect = sqlbase.Dialect{
	Name:        Engine,
	QuoteIdent:  sqlbase.DoubleQuote,
	Placeholder: sqlbase.Dollar,
	MaxParams:   65535,
}

// Connector : postgres connector
type Connector struct {
	*sqlbase.Base
	ep   config.Endpoint
	opts connector.Options
}

// New : connector.Factory for postgres
func New(ep config.Endpoint, opts connector.Options) (connector.Connector, error) {
	return &Connector{
		Base: &sqlbase.Base{
			Dialect: Dialect,
			Log:     opts.Log.With().Str("engine", Engine).Str("host", ep.Host).Logger(),
		},
		ep:   ep,
		opts: opts,
	}, nil
}

// Connect : dials the pool
func (c *Connector) Connect(ctx context.Context) error {
	db, err := connection.DialPostgres(ctx, c.ep, connection.Options{
		MaxConns: c.opts.MaxConns,
		QueryLog: c.opts.QueryLog,
		Log:      c.Log,
	})
	if err != nil {
		return err
	}
	c.DB = db
	return nil
}

func (c *Connector) schema() string {
	if c.ep.Schema == "" {
		return defaultSchema
	}
	return c.ep.Schema
}

// GetTables : base tables of the configured schema
func (c *Connector) GetTables(ctx context.Context) ([]string, error) {
	return c.QueryColumn(ctx, `SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1 AND table_type = 'BASE TABLE'
	ORDER BY table_name`, "table_name", c.schema())
}

// GetTableSchema : information_schema columns, empty when the table does not exist
func (c *Connector) GetTableSchema(ctx context.Context, tableName string) (table.Schema, error) {
	schema, err := c.Describe(ctx, `SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`, "column_name", "data_type", c.schema(), tableName)
	if err != nil {
		return nil, fmt.Errorf("describe %s : %w", tableName, err)
	}
	return schema, nil
}

// GetPrimaryKeyColumns : primary key columns in key order
func (c *Connector) GetPrimaryKeyColumns(ctx context.Context, tableName string) ([]string, error) {
	return c.QueryColumn(ctx, `SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
	ORDER BY kcu.ordinal_position`, "column_name", c.schema(), tableName)
}

// WriteTable : COPY FROM through pgx, falling back to inserts when the driver is wrapped
func (c *Connector) WriteTable(ctx context.Context, tableName string, batch *table.RowBatch) error {
	if batch.Len() == 0 {
		return c.Base.WriteTable(ctx, tableName, batch)
	}
	err := c.copyFrom(ctx, tableName, batch)
	if errors.Is(err, errNotPgx) {
		c.Log.Debug().Str("table", tableName).Msg("copy unavailable, using inserts")
		return c.Base.WriteTable(ctx, tableName, batch)
	}
	return err
}

func (c *Connector) copyFrom(ctx context.Context, tableName string, batch *table.RowBatch) error {
	start := time.Now()
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection : %w", err)
	}
	defer conn.Close()

	var copied int64
	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errNotPgx
		}
		n, cerr := sc.Conn().CopyFrom(ctx, identifier(tableName), batch.Columns, pgx.CopyFromRows(batch.Rows))
		copied = n
		return cerr
	})
	if errors.Is(err, errNotPgx) {
		return err
	}
	if err != nil {
		return fmt.Errorf("copy into %s : %w", tableName, err)
	}
	if copied != int64(batch.Len()) {
		return fmt.Errorf("copy into %s : wrote %d of %d rows", tableName, copied, batch.Len())
	}
	c.Log.Debug().
		Str("table", tableName).
		Int64("rows", copied).
		Dur("dur", time.Since(start)).
		Msg("copied batch")
	return nil
}

// identifier : schema.table -> pgx.Identifier, unqualified names resolve through search_path
func identifier(tableName string) pgx.Identifier {
	return pgx.Identifier(strings.Split(tableName, "."))
}
