package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

func newMocked(t *testing.T, ep config.Endpoint) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
	})
	c, err := New(ep, connector.Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	pg := c.(*Connector)
	pg.DB = db
	return pg, mock
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, connector.Default.Engines(), Engine)
}

func TestGetTableSchema(t *testing.T) {
	c, mock := newMocked(t, config.Endpoint{Engine: Engine, Schema: "sales"})
	mock.ExpectQuery(`SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`).
		WithArgs("sales", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "bigint").
			AddRow("placed_at", "timestamp without time zone"))

	schema, err := c.GetTableSchema(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, table.Schema{
		{Name: "id", Type: "bigint"},
		{Name: "placed_at", Type: "timestamp without time zone"},
	}, schema)
}

func TestGetTableSchemaMissingTable(t *testing.T) {
	c, mock := newMocked(t, config.Endpoint{Engine: Engine})
	mock.ExpectQuery(`SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`).
		WithArgs("public", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}))

	schema, err := c.GetTableSchema(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, schema)
}

func TestGetTablesAndPrimaryKey(t *testing.T) {
	c, mock := newMocked(t, config.Endpoint{Engine: Engine})
	mock.ExpectQuery(`SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1 AND table_type = 'BASE TABLE'
	ORDER BY table_name`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))
	mock.ExpectQuery(`SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
	ORDER BY kcu.ordinal_position`).
		WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))

	tables, err := c.GetTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, tables)

	pk, err := c.GetPrimaryKeyColumns(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, pk)
}

func TestWriteTableFallsBackToInserts(t *testing.T) {
	c, mock := newMocked(t, config.Endpoint{Engine: Engine})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "orders" ("id", "note") VALUES ($1, $2), ($3, $4)`).
		WithArgs(int64(1), "a", int64(2), nil).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := c.WriteTable(context.Background(), "orders", &table.RowBatch{
		Columns: []string{"id", "note"},
		Rows:    [][]any{{int64(1), "a"}, {int64(2), nil}},
	})
	require.NoError(t, err)
}

func TestReadQuery(t *testing.T) {
	c, _ := newMocked(t, config.Endpoint{Engine: Engine})
	assert.Equal(t,
		`SELECT * FROM "sales"."orders" ORDER BY "id" LIMIT 10 OFFSET 20`,
		c.ReadQuery("sales.orders", 10, 20, "id"))
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, pgx.Identifier{"sales", "orders"}, identifier("sales.orders"))
	assert.Equal(t, pgx.Identifier{"orders"}, identifier("orders"))
}
