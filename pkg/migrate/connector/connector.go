// Package connector defines the capability every database engine implements for a migration,
// and the registry mapping engine names to constructors.
package connector

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

// Connector : per engine implementation of everything a migration needs from a database.
// GetTableSchema returns an empty schema, not an error, when the table does not exist.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect() error
	TestConnection(ctx context.Context) bool
	GetTables(ctx context.Context) ([]string, error)
	GetTableSchema(ctx context.Context, table string) (table.Schema, error)
	GetRowCount(ctx context.Context, table string) (int64, error)
	GetPrimaryKeyColumns(ctx context.Context, table string) ([]string, error)
	ReadTable(ctx context.Context, table string, limit int64, offset int64, sortColumn string) (*table.RowBatch, error)
	WriteTable(ctx context.Context, table string, batch *table.RowBatch) error
	DeleteAllRows(ctx context.Context, table string) error
}

// Credentials : object storage credentials handed to a server side bulk load
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// BulkIngester : optional capability, loads staged parquet files server side in one call.
// pathPattern looks like "bucket/prefix/job/*.parquet".
type BulkIngester interface {
	IngestFromStaged(ctx context.Context, table string, pathPattern string, creds Credentials) error
}

// Options : passed to every connector constructor
type Options struct {
	Log      zerolog.Logger
	QueryLog bool
	MaxConns int
}

// Factory : builds an unconnected connector for an endpoint
type Factory func(ep config.Endpoint, opts Options) (Connector, error)
