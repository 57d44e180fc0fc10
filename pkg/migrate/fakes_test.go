package migrate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

// fakeDB : one in memory table shared by every connector opened against it
type fakeDB struct {
	mu sync.Mutex

	schema table.Schema
	pk     []string
	rows   [][]any

	connectErr error
	testFails  bool
	readErrAt  map[int64]error
	writeErr   error
	countSkew  int64
	bulkFrom   *fakeDB

	connects          int
	disconnects       int
	reads             int
	writes            int
	deletes           int
	ingests           []string
	countAtFirstWrite int64
}

func newFakeDB(schema table.Schema, n int) *fakeDB {
	db := &fakeDB{schema: schema, readErrAt: map[int64]error{}, countAtFirstWrite: -1}
	for i := 0; i < n; i++ {
		db.rows = append(db.rows, []any{int64(i), "row"})
	}
	return db
}

func (db *fakeDB) count() int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return int64(len(db.rows))
}

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) Connect(context.Context) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.connects++
	return c.db.connectErr
}

func (c *fakeConn) Disconnect() error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.disconnects++
	return nil
}

func (c *fakeConn) TestConnection(context.Context) bool {
	return !c.db.testFails
}

func (c *fakeConn) GetTables(context.Context) ([]string, error) {
	return []string{"events"}, nil
}

func (c *fakeConn) GetTableSchema(context.Context, string) (table.Schema, error) {
	return c.db.schema, nil
}

func (c *fakeConn) GetRowCount(context.Context, string) (int64, error) {
	return c.db.count() + c.db.countSkew, nil
}

func (c *fakeConn) GetPrimaryKeyColumns(context.Context, string) ([]string, error) {
	return c.db.pk, nil
}

func (c *fakeConn) ReadTable(ctx context.Context, _ string, limit int64, offset int64, _ string) (*table.RowBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.reads++
	if err := c.db.readErrAt[offset]; err != nil {
		return nil, err
	}
	batch := &table.RowBatch{Columns: c.db.schema.Names()}
	end := min(offset+limit, int64(len(c.db.rows)))
	for i := offset; i < end; i++ {
		batch.Rows = append(batch.Rows, c.db.rows[i])
	}
	return batch, nil
}

func (c *fakeConn) WriteTable(_ context.Context, _ string, batch *table.RowBatch) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	if c.db.countAtFirstWrite < 0 {
		c.db.countAtFirstWrite = int64(len(c.db.rows))
	}
	c.db.writes++
	if c.db.writeErr != nil {
		return c.db.writeErr
	}
	c.db.rows = append(c.db.rows, batch.Rows...)
	return nil
}

func (c *fakeConn) DeleteAllRows(context.Context, string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.deletes++
	c.db.rows = nil
	return nil
}

// fakeBulkConn : a destination that loads staged files server side, simulated by
// copying every row of bulkFrom
type fakeBulkConn struct {
	*fakeConn
}

func (c *fakeBulkConn) IngestFromStaged(_ context.Context, _ string, pattern string, _ connector.Credentials) error {
	src := c.db.bulkFrom
	src.mu.Lock()
	rows := append([][]any(nil), src.rows...)
	src.mu.Unlock()

	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.ingests = append(c.db.ingests, pattern)
	c.db.rows = append(c.db.rows, rows...)
	return nil
}

// fakeStore : storage.Client recording uploads
type fakeStore struct {
	mu        sync.Mutex
	uploaded  []string
	deleted   []string
	uploadErr error
}

func (s *fakeStore) Upload(_ context.Context, _ string, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploaded = append(s.uploaded, key)
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return nil
}

// recordingObserver : collects batch notifications
type recordingObserver struct {
	mu      sync.Mutex
	planned int
	done    map[int64]int64
}

func (r *recordingObserver) BatchesPlanned(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planned = n
	r.done = map[int64]int64{}
}

func (r *recordingObserver) BatchDone(n int64, rows int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done[n] = rows
}

var eventsSchema = table.Schema{
	{Name: "id", Type: "bigint(20)"},
	{Name: "name", Type: "varchar(32)"},
}

var errConnRefused = errors.New("connection refused")

// newTestRegistry : "src", "dst" and "bulk" engines backed by the given databases
func newTestRegistry(t *testing.T, src, dst *fakeDB) *connector.Registry {
	t.Helper()
	r := connector.NewRegistry()
	require.NoError(t, r.Register("src", func(config.Endpoint, connector.Options) (connector.Connector, error) {
		return &fakeConn{db: src}, nil
	}))
	require.NoError(t, r.Register("dst", func(config.Endpoint, connector.Options) (connector.Connector, error) {
		return &fakeConn{db: dst}, nil
	}))
	require.NoError(t, r.Register("bulk", func(config.Endpoint, connector.Options) (connector.Connector, error) {
		return &fakeBulkConn{fakeConn: &fakeConn{db: dst}}, nil
	}))
	return r
}

func testJob(dstEngine string) config.Job {
	return config.Job{
		ID:          "job-1",
		Source:      config.Endpoint{Engine: "src", Table: "events"},
		Destination: config.Endpoint{Engine: dstEngine, Table: "events_copy"},
	}
}

func testConfig() config.Config {
	return config.Config{
		LocalDir:       "/stage",
		BatchSize:      5,
		Workers:        2,
		ResetDestTable: true,
	}
}

func int64p(n int64) *int64 { return &n }

// flakyReads : source whose first reads fail
type flakyReads struct {
	db       *fakeDB
	mu       sync.Mutex
	failures int
}

func (f *flakyReads) factory(config.Endpoint, connector.Options) (connector.Connector, error) {
	return &flakyConn{fakeConn: &fakeConn{db: f.db}, f: f}, nil
}

type flakyConn struct {
	*fakeConn
	f *flakyReads
}

func (c *flakyConn) ReadTable(ctx context.Context, name string, limit int64, offset int64, sortColumn string) (*table.RowBatch, error) {
	c.f.mu.Lock()
	if c.f.failures > 0 {
		c.f.failures--
		c.f.mu.Unlock()
		return nil, errConnRefused
	}
	c.f.mu.Unlock()
	return c.fakeConn.ReadTable(ctx, name, limit, offset, sortColumn)
}
