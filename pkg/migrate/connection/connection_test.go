package connection

import (
	"net/url"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baderkha/shelter/pkg/migrate/config"
)

func TestMysqlDSN(t *testing.T) {
	dsn := MysqlDSN(config.Endpoint{
		Host: "db", Port: 3306, User: "root", Password: "p@ss", Database: "app",
		Options: map[string]string{"sql_mode": "'ANSI'"},
	})
	c, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:3306", c.Addr)
	assert.Equal(t, "p@ss", c.Passwd)
	assert.Equal(t, "app", c.DBName)
	assert.True(t, c.ParseTime)
	assert.Equal(t, "true", c.Params["autocommit"])
	assert.Equal(t, "'ANSI'", c.Params["sql_mode"])
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.Endpoint{
		Host: "pg", Port: 5432, User: "app", Password: "s3cr/t", Database: "warehouse", Schema: "staging",
	})
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "pg:5432", u.Host)
	assert.Equal(t, "/warehouse", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "s3cr/t", pw)
	assert.Equal(t, "staging", u.Query().Get("search_path"))
	assert.Equal(t, "prefer", u.Query().Get("sslmode"))
}

func TestSnowflakeDSN(t *testing.T) {
	dsn, err := SnowflakeDSN(config.Endpoint{
		Host: "acme-xy123", User: "loader", Password: "pw", Database: "ANALYTICS",
		Options: map[string]string{"warehouse": "LOAD_WH", "role": "LOADER"},
	})
	require.NoError(t, err)

	cfg, err := gosnowflake.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "acme-xy123", cfg.Account)
	assert.Equal(t, "loader", cfg.User)
	assert.Equal(t, "ANALYTICS", cfg.Database)
	assert.Equal(t, "PUBLIC", cfg.Schema)
	assert.Equal(t, "LOAD_WH", cfg.Warehouse)
	assert.Equal(t, "LOADER", cfg.Role)
}
