package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/storage"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

// Batch : rows [Offset, Offset+Size) of the source table
type Batch struct {
	Number int64
	Offset int64
	Size   int64
}

// Partition : splits [start, end) into batches of size rows, the last one may be short.
// Batch numbers are offset / size. Negative offsets give no batches.
func Partition(start int64, end int64, size int64) []Batch {
	if size <= 0 || start < 0 || start >= end {
		return nil
	}
	batches := make([]Batch, 0, (end-start+size-1)/size)
	for offset := start; offset < end; offset += size {
		batches = append(batches, Batch{
			Number: offset / size,
			Offset: offset,
			Size:   min(size, end-offset),
		})
	}
	return batches
}

type batchResult struct {
	Rows int64
	// Key : object storage key of the staged file, empty when nothing was uploaded
	Key string
}

// processBatch : read, encode, optionally upload, then write directly unless the
// destination bulk loads the staged files later. Every connection is scoped to the batch.
func (o *Orchestrator) processBatch(ctx context.Context, r *run, b Batch) (res batchResult, err error) {
	start := time.Now()
	log := r.log.With().Int64("batch", b.Number).Int64("offset", b.Offset).Logger()
	log.Info().Msgf("Processing batch %d starting at offset %d", b.Number, b.Offset)

	src, err := o.openBatchConnector(ctx, r.job.Source)
	if err != nil {
		return res, fmt.Errorf("%s : %w", SideSource, err)
	}
	defer o.closeBatchConnector(log, SideSource, src)

	var rows *table.RowBatch
	err = o.retry.Do(ctx, log, "read", func() error {
		var rerr error
		rows, rerr = src.ReadTable(ctx, r.job.Source.Table, b.Size, b.Offset, r.job.SortColumn)
		return rerr
	})
	if err != nil {
		return res, err
	}
	res.Rows = int64(rows.Len())

	path := r.ws.ArtifactPath(r.job.Source.Table, b.Number)
	if err := o.encoder.Encode(path, r.schema, rows); err != nil {
		return res, fmt.Errorf("%w : encode %s : %w", ErrStagingIO, path, err)
	}
	log.Debug().Str("path", path).Int64("rows", res.Rows).Msgf("Batch %d saved to %s", b.Number, path)

	if r.store != nil {
		key := storage.Key(r.job.Storage.Prefix, r.job.ID, ArtifactName(r.job.Source.Table, b.Number))
		if err := r.store.Upload(ctx, path, key); err != nil {
			return res, fmt.Errorf("%w : %s : %w", ErrUploadFailed, key, err)
		}
		res.Key = key
		log.Debug().Str("key", key).Msg("uploaded batch")
	}

	if !r.bulk {
		dst, err := o.openBatchConnector(ctx, r.job.Destination)
		if err != nil {
			return res, fmt.Errorf("%s : %w", SideDestination, err)
		}
		defer o.closeBatchConnector(log, SideDestination, dst)
		if err := dst.WriteTable(ctx, r.job.Destination.Table, rows); err != nil {
			return res, err
		}
	}

	log.Info().Int64("rows", res.Rows).Dur("dur", time.Since(start)).Msg("batch done")
	return res, nil
}

func (o *Orchestrator) openBatchConnector(ctx context.Context, ep config.Endpoint) (connector.Connector, error) {
	c, err := o.registry.New(ep, o.connectorOptions(1))
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Disconnect()
		return nil, err
	}
	return c, nil
}

func (o *Orchestrator) closeBatchConnector(log zerolog.Logger, side Side, c connector.Connector) {
	if err := c.Disconnect(); err != nil {
		log.Warn().Err(err).Str("side", string(side)).Msg("could not disconnect")
	}
}
