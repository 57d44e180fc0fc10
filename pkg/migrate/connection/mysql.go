package connection

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/baderkha/shelter/pkg/migrate/config"
)

// MysqlDSN : dsn for mysql wire compatible engines, endpoint options become session variables
func MysqlDSN(ep config.Endpoint) string {
	c := mysql.NewConfig()
	c.User = ep.User
	c.Passwd = ep.Password
	c.Net = "tcp"
	c.Addr = ep.Addr()
	c.DBName = ep.Database
	c.ParseTime = true
	c.Loc = time.UTC
	c.Collation = "utf8mb4_general_ci"
	c.Params = map[string]string{"autocommit": "true"}
	for k, v := range ep.Options {
		c.Params[k] = v
	}
	return c.FormatDSN()
}

// DialMysql : pool to a mysql or singlestore database
func DialMysql(ctx context.Context, ep config.Endpoint, opts Options) (*sql.DB, error) {
	return open(ctx, "mysql", MysqlDSN(ep), opts)
}
