package connection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/snowflakedb/gosnowflake"

	"github.com/baderkha/shelter/pkg/migrate/config"
)

// SnowflakeDSN : the endpoint host is the account identifier, warehouse and role come from options
func SnowflakeDSN(ep config.Endpoint) (string, error) {
	utc := "UTC"
	cfg := &gosnowflake.Config{
		Account:   ep.Host,
		User:      ep.User,
		Password:  ep.Password,
		Database:  ep.Database,
		Schema:    ep.Option("schema", stringOr(ep.Schema, "PUBLIC")),
		Warehouse: ep.Option("warehouse", ""),
		Role:      ep.Option("role", ""),
		Params:    map[string]*string{"timezone": &utc},
	}
	if ep.Port != 0 {
		cfg.Port = ep.Port
	}
	dsn, err := gosnowflake.DSN(cfg)
	if err != nil {
		return "", fmt.Errorf("snowflake : bad connection config : %w", err)
	}
	return dsn, nil
}

// DialSnowflake : pool to a snowflake database, checked with SELECT 1
func DialSnowflake(ctx context.Context, ep config.Endpoint, opts Options) (*sql.DB, error) {
	dsn, err := SnowflakeDSN(ep)
	if err != nil {
		return nil, err
	}
	db, err := open(ctx, "snowflake", dsn, opts)
	if err != nil {
		return nil, err
	}
	var res string
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&res); err != nil || res != "1" {
		_ = db.Close()
		return nil, fmt.Errorf("can't ping snowflake via select 1 : %v", err)
	}
	return db, nil
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
