package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/table"
	"github.com/baderkha/shelter/pkg/migrate/table/colmap"
)

// Validator : read only pre-flight check that the source table can be migrated into the
// destination table, comparing canonical column types
type Validator struct {
	registry *connector.Registry
	log      zerolog.Logger
	verbose  bool
}

// NewValidator : registry defaults to connector.Default
func NewValidator(registry *connector.Registry, log zerolog.Logger, verbose bool) *Validator {
	if registry == nil {
		registry = connector.Default
	}
	return &Validator{registry: registry, log: log, verbose: verbose}
}

// Validate : stops at the first problem found. Use ExitCode on the error for a process status.
func (v *Validator) Validate(ctx context.Context, job config.Job) error {
	for _, ep := range []struct {
		side Side
		ep   config.Endpoint
	}{
		{SideSource, job.Source},
		{SideDestination, job.Destination},
	} {
		if !v.registry.Has(ep.ep.Engine) {
			return fmt.Errorf("%w : %s engine %q", ErrUnsupportedEngine, ep.side, ep.ep.Engine)
		}
	}

	src, err := v.open(ctx, SideSource, job.Source)
	if err != nil {
		return err
	}
	defer v.close(SideSource, src)
	dst, err := v.open(ctx, SideDestination, job.Destination)
	if err != nil {
		return err
	}
	defer v.close(SideDestination, dst)
	v.log.Info().Msg("Established connections to source and destination databases!")

	srcSchema, err := src.GetTableSchema(ctx, job.Source.Table)
	if err != nil {
		return err
	}
	dstSchema, err := dst.GetTableSchema(ctx, job.Destination.Table)
	if err != nil {
		return err
	}
	if len(srcSchema) == 0 {
		return fmt.Errorf("%w : source table %s", ErrTableNotFound, job.Source.Table)
	}
	if len(dstSchema) == 0 {
		return fmt.Errorf("%w : destination table %s", ErrTableNotFound, job.Destination.Table)
	}
	if v.verbose {
		v.log.Debug().Msgf("source schema\n%s", spew.Sdump(srcSchema))
		v.log.Debug().Msgf("destination schema\n%s", spew.Sdump(dstSchema))
	}

	if err := CompareCanonical(srcSchema, dstSchema); err != nil {
		return err
	}
	v.log.Info().Msg("Table schemas are compatible!")
	return nil
}

// CompareCanonical : both schemas must hold the same column names with the same canonical
// types, and neither may hold an unsupported type. Returns the first *ColumnError found.
func CompareCanonical(src table.Schema, dst table.Schema) error {
	srcFields := colmap.Project(src)
	dstFields := colmap.Project(dst)
	for _, side := range []struct {
		side   Side
		fields []colmap.Field
	}{
		{SideSource, srcFields},
		{SideDestination, dstFields},
	} {
		for _, f := range side.fields {
			if f.Type == colmap.Unsupported {
				return &ColumnError{
					Side:   side.side,
					Column: f.Name,
					Reason: fmt.Sprintf("unsupported column type %s", f.Native),
					Err:    ErrUnsupportedType,
				}
			}
		}
	}

	dstTypes := make(map[string]colmap.Type, len(dstFields))
	for _, f := range dstFields {
		dstTypes[f.Name] = f.Type
	}
	srcNames := make(map[string]bool, len(srcFields))
	for _, f := range srcFields {
		srcNames[f.Name] = true
		dt, ok := dstTypes[f.Name]
		if !ok {
			return &ColumnError{Column: f.Name, Reason: "exists in source but not in destination", Err: ErrColumnMismatch}
		}
		if dt != f.Type {
			return &ColumnError{
				Column: f.Name,
				Reason: fmt.Sprintf("type mismatch: source=%s, destination=%s", f.Type, dt),
				Err:    ErrColumnMismatch,
			}
		}
	}
	for _, f := range dstFields {
		if !srcNames[f.Name] {
			return &ColumnError{Column: f.Name, Reason: "exists in destination but not in source", Err: ErrColumnMismatch}
		}
	}
	return nil
}

func (v *Validator) open(ctx context.Context, side Side, ep config.Endpoint) (connector.Connector, error) {
	c, err := v.registry.New(ep, connector.Options{Log: v.log, QueryLog: v.verbose, MaxConns: 1})
	if err != nil {
		return nil, fmt.Errorf("%s : %w", side, err)
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Disconnect()
		return nil, &ConnectionError{Side: side, Err: err}
	}
	if !c.TestConnection(ctx) {
		_ = c.Disconnect()
		return nil, &ConnectionError{Side: side, Err: errors.New("test query failed")}
	}
	return c, nil
}

func (v *Validator) close(side Side, c connector.Connector) {
	if err := c.Disconnect(); err != nil {
		v.log.Warn().Err(err).Str("side", string(side)).Msg("could not disconnect")
	}
}
