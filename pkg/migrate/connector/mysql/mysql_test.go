package mysql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

func newMocked(t *testing.T, engine string) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
	})
	c := newConnector(config.Endpoint{Engine: engine, Host: "db", Database: "app"}, connector.Options{Log: zerolog.Nop()})
	c.DB = db
	return c, mock
}

func TestRegistered(t *testing.T) {
	assert.True(t, connector.Default.Has(EngineMySQL))
	assert.True(t, connector.Default.Has(EngineSingleStore))

	c, err := connector.Default.New(config.Endpoint{Engine: EngineSingleStore}, connector.Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	_, ok := c.(connector.BulkIngester)
	assert.True(t, ok, "singlestore ingests staged files")

	c, err = connector.Default.New(config.Endpoint{Engine: EngineMySQL}, connector.Options{Log: zerolog.Nop()})
	require.NoError(t, err)
	_, ok = c.(connector.BulkIngester)
	assert.False(t, ok, "plain mysql has no bulk path")
}

func TestGetTableSchema(t *testing.T) {
	c, mock := newMocked(t, EngineMySQL)
	mock.ExpectQuery("DESCRIBE `events`").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("id", "bigint(20)", "NO", "PRI", nil, "").
			AddRow("name", "varchar(255)", "YES", "", nil, ""))

	schema, err := c.GetTableSchema(context.Background(), "events")
	require.NoError(t, err)
	assert.Equal(t, table.Schema{
		{Name: "id", Type: "bigint(20)"},
		{Name: "name", Type: "varchar(255)"},
	}, schema)
}

func TestGetTableSchemaMissingTable(t *testing.T) {
	c, mock := newMocked(t, EngineMySQL)
	mock.ExpectQuery("DESCRIBE `ghost`").
		WillReturnError(&gomysql.MySQLError{Number: errNoSuchTable, Message: "Table 'app.ghost' doesn't exist"})

	schema, err := c.GetTableSchema(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, schema)
}

func TestGetTableSchemaOtherError(t *testing.T) {
	c, mock := newMocked(t, EngineMySQL)
	mock.ExpectQuery("DESCRIBE `events`").WillReturnError(sql.ErrConnDone)

	_, err := c.GetTableSchema(context.Background(), "events")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestGetTablesAndPrimaryKey(t *testing.T) {
	c, mock := newMocked(t, EngineMySQL)
	mock.ExpectQuery("SHOW TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_app"}).AddRow("events").AddRow("users"))
	mock.ExpectQuery(`SELECT COLUMN_NAME
	FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
	ORDER BY ORDINAL_POSITION`).
		WithArgs("app", "events").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME"}).AddRow("tenant").AddRow("id"))

	tables, err := c.GetTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"events", "users"}, tables)

	pk, err := c.GetPrimaryKeyColumns(context.Background(), "events")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant", "id"}, pk)
}

func TestPipelineName(t *testing.T) {
	assert.Equal(t,
		"es_3f2a_11ee_pipeline",
		PipelineName("bucket/epic-shelter/3f2a-11ee/*.parquet"))
}

func TestPipelineQuery(t *testing.T) {
	q, err := PipelineQuery("es_job_pipeline", "events", "bucket/p/job/*.parquet", table.Schema{
		{Name: "id", Type: "bigint(20)"},
		{Name: "created_at", Type: "timestamp(6)"},
	}, connector.Credentials{AccessKeyID: "AK", SecretAccessKey: "SK"})
	require.NoError(t, err)

	assert.Equal(t, `CREATE OR REPLACE PIPELINE es_job_pipeline
AS LOAD DATA S3 'bucket/p/job/*.parquet'
CONFIG '{"region":"us-west-2"}'
CREDENTIALS '{"aws_access_key_id":"AK","aws_secret_access_key":"SK"}'
REPLACE INTO TABLE events
FORMAT PARQUET
(
    id <- id,
    @created_at <- created_at
)
SET created_at = FROM_UNIXTIME(@created_at/1000000)`, q)
}

func TestIngestFromStaged(t *testing.T) {
	c, mock := newMocked(t, EngineSingleStore)
	s := &SingleStore{Connector: c}

	mock.ExpectQuery("DESCRIBE `events`").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type"}).AddRow("id", "bigint(20)"))
	mock.ExpectExec(`CREATE OR REPLACE PIPELINE es_job_1_pipeline
AS LOAD DATA S3 'bucket/p/job-1/*.parquet'
CONFIG '{"region":"eu-west-1"}'
CREDENTIALS '{"aws_access_key_id":"AK","aws_secret_access_key":"SK"}'
REPLACE INTO TABLE events
FORMAT PARQUET
(
    id <- id
)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("START PIPELINE es_job_1_pipeline FOREGROUND").WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec("DROP PIPELINE es_job_1_pipeline").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.IngestFromStaged(context.Background(), "events", "bucket/p/job-1/*.parquet", connector.Credentials{
		AccessKeyID: "AK", SecretAccessKey: "SK", Region: "eu-west-1",
	})
	require.NoError(t, err)
}

func TestIngestFromStagedDropsPipelineOnFailure(t *testing.T) {
	c, mock := newMocked(t, EngineSingleStore)
	s := &SingleStore{Connector: c}

	mock.ExpectQuery("DESCRIBE `events`").
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type"}).AddRow("id", "bigint(20)"))
	mock.ExpectExec(`CREATE OR REPLACE PIPELINE es_job_pipeline
AS LOAD DATA S3 'bucket/job/*.parquet'
CONFIG '{"region":"us-west-2"}'
CREDENTIALS '{"aws_access_key_id":"AK","aws_secret_access_key":"SK"}'
REPLACE INTO TABLE events
FORMAT PARQUET
(
    id <- id
)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("START PIPELINE es_job_pipeline FOREGROUND").WillReturnError(assert.AnError)
	mock.ExpectExec("DROP PIPELINE es_job_pipeline").WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.IngestFromStaged(context.Background(), "events", "bucket/job/*.parquet", connector.Credentials{AccessKeyID: "AK", SecretAccessKey: "SK"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestIngestFromStagedMissingTable(t *testing.T) {
	c, mock := newMocked(t, EngineSingleStore)
	s := &SingleStore{Connector: c}
	mock.ExpectQuery("DESCRIBE `ghost`").
		WillReturnError(&gomysql.MySQLError{Number: errNoSuchTable})

	err := s.IngestFromStaged(context.Background(), "ghost", "bucket/job/*.parquet", connector.Credentials{})
	assert.Error(t, err)
}
