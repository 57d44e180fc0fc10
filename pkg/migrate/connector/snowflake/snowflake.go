// Package snowflake is the snowflake connector, bulk loading staged parquet files with COPY INTO
package snowflake

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connection"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/connector/sqlbase"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

const (
	Engine = "snowflake"

	// object does not exist or not authorized
	errObjectNotFound = 2003
)

func init() {
	connector.MustRegister(Engine, New)
}

// Dialect : identifiers stay bare so snowflake upper cases them the way it created them
var Dialect = sqlbase.Dialect{
	Name:        Engine,
	QuoteIdent:  sqlbase.Bare,
	Placeholder: sqlbase.QuestionMark,
}

// Connector : snowflake connector
type Connector struct {
	*sqlbase.Base
	ep   config.Endpoint
	opts connector.Options
}

var _ connector.BulkIngester = (*Connector)(nil)

// New : connector.Factory for snowflake
func New(ep config.Endpoint, opts connector.Options) (connector.Connector, error) {
	return &Connector{
		Base: &sqlbase.Base{
			Dialect: Dialect,
			Log:     opts.Log.With().Str("engine", Engine).Str("account", ep.Host).Logger(),
		},
		ep:   ep,
		opts: opts,
	}, nil
}

// Connect : dials the pool
func (c *Connector) Connect(ctx context.Context) error {
	db, err := connection.DialSnowflake(ctx, c.ep, connection.Options{
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
	return c.QueryColumn(ctx, "SHOW TABLES", "name")
}

// GetTableSchema : DESCRIBE TABLE, an unknown table yields an empty schema
func (c *Connector) GetTableSchema(ctx context.Context, tableName string) (table.Schema, error) {
	schema, err := c.Describe(ctx, "DESCRIBE TABLE "+c.QuoteTable(tableName), "name", "type")
	var serr *gosnowflake.SnowflakeError
	if errors.As(err, &serr) && serr.Number == errObjectNotFound {
		c.Log.Debug().Str("table", tableName).Msg("table not found")
		return table.Schema{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("describe %s : %w", tableName, err)
	}
	return schema, nil
}

// GetPrimaryKeyColumns : SHOW PRIMARY KEYS ordered by key_sequence
func (c *Connector) GetPrimaryKeyColumns(ctx context.Context, tableName string) ([]string, error) {
	keys, err := c.Describe(ctx, "SHOW PRIMARY KEYS IN TABLE "+c.QuoteTable(tableName), "column_name", "key_sequence")
	if err != nil {
		return nil, err
	}
	seq := func(i int) int {
		n, _ := strconv.Atoi(keys[i].Type)
		return n
	}
	sort.SliceStable(keys, func(i, j int) bool { return seq(i) < seq(j) })
	return keys.Names(), nil
}

// CopyQuery : COPY INTO matching parquet columns to table columns by name. FORCE
// reloads files whose names were already loaded by an earlier run of the same job id.
func CopyQuery(tableName string, pathPattern string, creds connector.Credentials) string {
	dir, glob := path.Split(pathPattern)
	return fmt.Sprintf(`COPY INTO %s
FROM 's3://%s'
CREDENTIALS = (AWS_KEY_ID = '%s' AWS_SECRET_KEY = '%s')
PATTERN = '%s'
FILE_FORMAT = (TYPE = PARQUET USE_LOGICAL_TYPE = TRUE)
MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE
FORCE = TRUE`,
		tableName,
		escapeLiteral(dir),
		escapeLiteral(creds.AccessKeyID),
		escapeLiteral(creds.SecretAccessKey),
		escapeLiteral(GlobToRegex(glob)),
	)
}

// GlobToRegex : *.parquet -> .*[.]parquet
func GlobToRegex(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '^', '$', '|', '{', '}', '\\':
			b.WriteString("[")
			b.WriteRune(r)
			b.WriteString("]")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IngestFromStaged : COPY INTO from the staged files
func (c *Connector) IngestFromStaged(ctx context.Context, tableName string, pathPattern string, creds connector.Credentials) error {
	start := time.Now()
	res, err := c.DB.ExecContext(ctx, CopyQuery(c.QuoteTable(tableName), pathPattern, creds))
	if err != nil {
		return fmt.Errorf("copy into %s : %w", tableName, err)
	}
	loaded, _ := res.RowsAffected()
	c.Log.Info().
		Str("table", tableName).
		Int64("rows", loaded).
		Dur("dur", time.Since(start)).
		Msg("ingested staged files")
	return nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
