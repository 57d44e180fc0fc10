package connection

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/baderkha/shelter/pkg/migrate/config"
)

// PostgresDSN : postgres:// url, a schema turns into the search_path
func PostgresDSN(ep config.Endpoint) string {
	q := url.Values{}
	q.Set("sslmode", ep.Option("sslmode", "prefer"))
	if ep.Schema != "" {
		q.Set("search_path", ep.Schema)
	}
	for k, v := range ep.Options {
		if k != "sslmode" {
			q.Set(k, v)
		}
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(ep.User, ep.Password),
		Host:     ep.Host + ":" + strconv.Itoa(ep.Port),
		Path:     "/" + ep.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// DialPostgres : pool to a postgres database through pgx's database/sql driver
func DialPostgres(ctx context.Context, ep config.Endpoint, opts Options) (*sql.DB, error) {
	return open(ctx, "pgx", PostgresDSN(ep), opts)
}
