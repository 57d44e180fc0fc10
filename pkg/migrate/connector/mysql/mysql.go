// Package mysql holds the mysql and singlestore connectors. Both speak the mysql wire
// protocol, singlestore adds parquet bulk ingestion through pipelines.
package mysql

import (
	"context"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connection"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/connector/sqlbase"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

const (
	EngineMySQL       = "mysql"
	EngineSingleStore = "singlestore"

	errNoSuchTable = 1146
)

func init() {
	connector.MustRegister(EngineMySQL, NewMySQL)
	connector.MustRegister(EngineSingleStore, NewSingleStore)
}

// Dialect : backticks and ? placeholders
var Dialect = sqlbase.Dialect{
	Name:        EngineMySQL,
	QuoteIdent:  sqlbase.Backtick,
	Placeholder: sqlbase.QuestionMark,
	MaxParams:   65535,
}

// Connector : mysql connector
type Connector struct {
	*sqlbase.Base
	ep   config.Endpoint
	opts connector.Options
}

// NewMySQL : connector.Factory for mysql
func NewMySQL(ep config.Endpoint, opts connector.Options) (connector.Connector, error) {
	return newConnector(ep, opts), nil
}

func newConnector(ep config.Endpoint, opts connector.Options) *Connector {
	return &Connector{
		Base: &sqlbase.Base{
			Dialect: Dialect,
			Log:     opts.Log.With().Str("engine", ep.Engine).Str("host", ep.Host).Logger(),
		},
		ep:   ep,
		opts: opts,
	}
}

// Connect : dials the pool
func (c *Connector) Connect(ctx context.Context) error {
	db, err := connection.DialMysql(ctx, c.ep, connection.Options{
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

// GetTables : SHOW TABLES
func (c *Connector) GetTables(ctx context.Context) ([]string, error) {
	return c.QueryColumn(ctx, "SHOW TABLES", "")
}

// GetTableSchema : DESCRIBE, an unknown table yields an empty schema
func (c *Connector) GetTableSchema(ctx context.Context, tableName string) (table.Schema, error) {
	schema, err := c.Describe(ctx, "DESCRIBE "+c.QuoteTable(tableName), "Field", "Type")
	var merr *gomysql.MySQLError
	if errors.As(err, &merr) && merr.Number == errNoSuchTable {
		c.Log.Debug().Str("table", tableName).Msg("table not found")
		return table.Schema{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("describe %s : %w", tableName, err)
	}
	return schema, nil
}

// GetPrimaryKeyColumns : primary key columns in key order
func (c *Connector) GetPrimaryKeyColumns(ctx context.Context, tableName string) ([]string, error) {
	return c.QueryColumn(ctx, `SELECT COLUMN_NAME
	FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
	ORDER BY ORDINAL_POSITION`, "COLUMN_NAME", c.ep.Database, tableName)
}
