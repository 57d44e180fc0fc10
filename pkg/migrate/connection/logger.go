package connection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
)

// Options : how a connection pool gets dialed
type Options struct {
	MaxConns int
	QueryLog bool
	Log      zerolog.Logger
}

// AddLogger : re-opens the pool through a driver wrapper logging every query
func AddLogger(db *sql.DB, dsn string, driverName string, log zerolog.Logger) *sql.DB {
	loggerAdapter := zerologadapter.New(log.With().Str("driver", driverName).Logger())
	logged := sqldblogger.OpenDriver(dsn, db.Driver(), loggerAdapter,
		sqldblogger.WithWrapResult(false),
		sqldblogger.WithDurationFieldname("dur_ms"),
		sqldblogger.WithDurationUnit(sqldblogger.DurationMillisecond),
		sqldblogger.WithSQLQueryAsMessage(true),
		sqldblogger.WithSQLQueryFieldname("sql_query"),
		sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
	)
	_ = db.Close()
	return logged
}

func open(ctx context.Context, driverName string, dsn string, opts Options) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s : could not open connection : %w", driverName, err)
	}
	if opts.QueryLog {
		db = AddLogger(db, dsn, driverName, opts.Log)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
		db.SetMaxIdleConns(opts.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s : could not reach database : %w", driverName, err)
	}
	opts.Log.Debug().Str("driver", driverName).Msg("connection established")
	return db, nil
}
