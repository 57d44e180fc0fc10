package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/encode"
	"github.com/baderkha/shelter/pkg/migrate/retry"
	"github.com/baderkha/shelter/pkg/migrate/state"
	"github.com/baderkha/shelter/pkg/migrate/storage"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

// Encoder : writes a row batch to a staged file
type Encoder interface {
	Encode(path string, schema table.Schema, batch *table.RowBatch) error
}

// Observer : notified as batches complete, calls may come from several goroutines
type Observer interface {
	BatchesPlanned(n int)
	BatchDone(batchNumber int64, rows int64)
}

// StorageFactory : builds the object storage client of a run
type StorageFactory func(cfg config.Storage) (storage.Client, error)

// Orchestrator : runs one migration job at a time
type Orchestrator struct {
	cfg        config.Config
	registry   *connector.Registry
	fs         afero.Fs
	newStorage StorageFactory
	encoder    Encoder
	state      state.Manager
	observer   Observer
	log        zerolog.Logger
	retry      retry.Policy
}

var _ Runner = (*Orchestrator)(nil)

// Option : optional Orchestrator collaborators
type Option func(*Orchestrator)

func WithRegistry(r *connector.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

func WithFs(fs afero.Fs) Option {
	return func(o *Orchestrator) { o.fs = fs }
}

func WithStorage(f StorageFactory) Option {
	return func(o *Orchestrator) { o.newStorage = f }
}

func WithEncoder(e Encoder) Option {
	return func(o *Orchestrator) { o.encoder = e }
}

func WithStateManager(m state.Manager) Option {
	return func(o *Orchestrator) { o.state = m }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithRetryPolicy : overrides the policy derived from Config.MaxRetries
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// NewOrchestrator : cfg is copied and never changed afterwards
func NewOrchestrator(cfg config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		registry: connector.Default,
		fs:       afero.NewOsFs(),
		state:    state.Noop{},
		observer: noopObserver{},
		log:      zerolog.Nop(),
		retry:    retry.Policy{MaxRetries: cfg.MaxRetries},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.encoder == nil {
		o.encoder = encode.NewParquet(o.fs)
	}
	if o.newStorage == nil {
		o.newStorage = func(s config.Storage) (storage.Client, error) {
			return storage.NewS3(s,
				storage.WithFs(o.fs),
				storage.WithRetry(o.retry),
				storage.WithLogger(o.log),
			)
		}
	}
	return o
}

// run : state shared by the batches of one Run, read only once the fan out starts
type run struct {
	job    config.Job
	schema table.Schema
	ws     workspace
	store  storage.Client
	bulk   bool
	runID  int
	log    zerolog.Logger
}

// Run : migrates job.Source into job.Destination
func (o *Orchestrator) Run(ctx context.Context, job config.Job) (sum *Summary, err error) {
	started := time.Now()
	log := o.log.With().Str("job_id", job.ID).Logger()
	if err := o.cfg.Validate(job); err != nil {
		return nil, err
	}

	var processed atomic.Int64
	runID, serr := o.state.StartRun(job.ID, job.Source.Table, job.Destination.Table)
	if serr != nil {
		log.Warn().Err(serr).Msg("could not record run start")
	}
	defer func() {
		if serr := o.state.FinishRun(runID, processed.Load(), err); serr != nil {
			log.Warn().Err(serr).Msg("could not record run end")
		}
	}()

	ws := workspace{fs: o.fs, dir: o.cfg.JobDir(job.ID), log: log}
	if err := ws.Reset(); err != nil {
		return nil, err
	}

	var opened []sideConnector
	defer func() { o.disconnect(log, opened) }()

	src, err := o.connect(ctx, SideSource, job.Source, &opened)
	if err != nil {
		return nil, err
	}
	dst, err := o.connect(ctx, SideDestination, job.Destination, &opened)
	if err != nil {
		return nil, err
	}
	r := &run{job: job, ws: ws, runID: runID, log: log}
	if o.cfg.UseObjectStorage {
		if r.store, err = o.newStorage(*job.Storage); err != nil {
			return nil, fmt.Errorf("object storage : %w", err)
		}
	}

	info, err := table.Fetch(ctx, src, job.Source.Table)
	if err != nil {
		return nil, err
	}
	if len(info.Schema) == 0 {
		return nil, fmt.Errorf("%w : %w : source table %s", ErrSchemaMismatch, ErrTableNotFound, job.Source.Table)
	}
	dstSchema, err := dst.GetTableSchema(ctx, job.Destination.Table)
	if err != nil {
		return nil, err
	}
	if !info.Schema.Equal(dstSchema) {
		return nil, fmt.Errorf("%w : %s %v vs %s %v", ErrSchemaMismatch,
			job.Source.Table, info.Schema, job.Destination.Table, dstSchema)
	}
	r.schema = info.Schema
	log.Info().Strs("primary_key", info.PrimaryKey).Int("columns", len(info.Schema)).Msg("schemas match")

	total, err := src.GetRowCount(ctx, job.Source.Table)
	if err != nil {
		return nil, err
	}
	rangeStart, rangeEnd := int64(0), total
	if job.StartOffset != nil {
		rangeStart = *job.StartOffset
	}
	if job.EndOffset != nil {
		rangeEnd = *job.EndOffset
	}
	log.Info().Int64("total_rows", total).Int64("start_row", rangeStart).Int64("end_row", rangeEnd).Msg("row range")
	if rangeStart < 0 || rangeEnd < 0 {
		return nil, fmt.Errorf("%w : offsets must not be negative, got %d and %d", ErrInvalidRange, rangeStart, rangeEnd)
	}
	if rangeStart > rangeEnd {
		return nil, fmt.Errorf("%w : start offset %d is past end offset %d", ErrInvalidRange, rangeStart, rangeEnd)
	}

	if o.cfg.ResetDestTable {
		if err := dst.DeleteAllRows(ctx, job.Destination.Table); err != nil {
			return nil, err
		}
		log.Info().Str("table", job.Destination.Table).Msg("cleared destination table")
	}

	bulk, canBulk := dst.(connector.BulkIngester)
	r.bulk = o.cfg.UseObjectStorage && canBulk

	batches := Partition(rangeStart, rangeEnd, o.cfg.BatchSize)
	results, err := o.fanOut(ctx, r, batches, &processed)
	if err != nil {
		return nil, err
	}

	if r.bulk && len(batches) > 0 {
		pattern := storage.Pattern(job.Storage.Bucket, job.Storage.Prefix, job.ID)
		log.Info().Str("pattern", pattern).Msg("bulk loading staged files")
		err := bulk.IngestFromStaged(ctx, job.Destination.Table, pattern, connector.Credentials{
			AccessKeyID:     job.Storage.AccessKeyID,
			SecretAccessKey: job.Storage.SecretAccessKey,
			Region:          job.Storage.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("%w : %w", ErrBulkLoadFailed, err)
		}
	}

	if o.cfg.UseObjectStorage || o.cfg.MigrateOnly {
		ws.Teardown()
	}

	if err := o.validateRowCounts(ctx, job, src, dst); err != nil {
		return nil, err
	}

	if o.cfg.MigrateOnly && r.store != nil {
		o.purge(ctx, log, r.store, results)
	}

	elapsed := time.Since(started)
	sum = &Summary{
		JobID:         job.ID,
		Batches:       len(batches),
		RowsProcessed: processed.Load(),
		Elapsed:       elapsed,
		FinishedAt:    time.Now(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		sum.Throughput = float64(sum.RowsProcessed) / secs
	}
	log.Info().Msg("Job completed successfully!")
	return sum, nil
}

// fanOut : one processBatch per batch on a bounded pool. The first failure cancels
// the rest, batches that have not started return without connecting.
func (o *Orchestrator) fanOut(ctx context.Context, r *run, batches []Batch, processed *atomic.Int64) ([]batchResult, error) {
	o.observer.BatchesPlanned(len(batches))
	results := make([]batchResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.Workers, 1))
	for i, b := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := o.state.StartBatch(r.runID, b.Number, b.Offset); err != nil {
				r.log.Warn().Err(err).Int64("batch", b.Number).Msg("could not record batch start")
			}
			res, err := o.processBatch(gctx, r, b)
			if serr := o.state.FinishBatch(r.runID, b.Number, res.Rows, err); serr != nil {
				r.log.Warn().Err(serr).Int64("batch", b.Number).Msg("could not record batch end")
			}
			if err != nil {
				return &BatchError{BatchNumber: b.Number, Offset: b.Offset, Err: err}
			}
			results[i] = res
			processed.Add(res.Rows)
			o.observer.BatchDone(b.Number, res.Rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) validateRowCounts(ctx context.Context, job config.Job, src, dst connector.Connector) error {
	srcCount, err := src.GetRowCount(ctx, job.Source.Table)
	if err != nil {
		return err
	}
	dstCount, err := dst.GetRowCount(ctx, job.Destination.Table)
	if err != nil {
		return err
	}
	if srcCount != dstCount {
		return &RowCountError{Source: srcCount, Destination: dstCount}
	}
	return nil
}

// purge : best effort removal of the objects this run uploaded
func (o *Orchestrator) purge(ctx context.Context, log zerolog.Logger, store storage.Client, results []batchResult) {
	for _, res := range results {
		if res.Key == "" {
			continue
		}
		if err := store.Delete(ctx, res.Key); err != nil {
			log.Warn().Err(err).Str("key", res.Key).Msg("could not delete staged object")
		}
	}
}

type sideConnector struct {
	side Side
	conn connector.Connector
}

// connect : builds, connects and tests one side. The connector is recorded in opened
// as soon as it exists so it is always disconnected.
func (o *Orchestrator) connect(ctx context.Context, side Side, ep config.Endpoint, opened *[]sideConnector) (connector.Connector, error) {
	c, err := o.registry.New(ep, o.connectorOptions(0))
	if err != nil {
		return nil, fmt.Errorf("%s : %w", side, err)
	}
	*opened = append(*opened, sideConnector{side: side, conn: c})
	if err := c.Connect(ctx); err != nil {
		return nil, &ConnectionError{Side: side, Err: err}
	}
	if !c.TestConnection(ctx) {
		return nil, &ConnectionError{Side: side, Err: errors.New("test query failed")}
	}
	o.log.Debug().Str("side", string(side)).Str("engine", ep.Engine).Msg("connected")
	return c, nil
}

func (o *Orchestrator) disconnect(log zerolog.Logger, opened []sideConnector) {
	var merr *multierror.Error
	for _, sc := range opened {
		if err := sc.conn.Disconnect(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s : %w", sc.side, err))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		log.Warn().Err(err).Msg("could not disconnect")
	}
}

func (o *Orchestrator) connectorOptions(maxConns int) connector.Options {
	return connector.Options{
		Log:      o.log,
		QueryLog: o.cfg.Verbose,
		MaxConns: maxConns,
	}
}

type noopObserver struct{}

func (noopObserver) BatchesPlanned(int) {}

func (noopObserver) BatchDone(int64, int64) {}
