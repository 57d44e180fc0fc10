package table

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Describer : the part of a connector needed to describe a table
type Describer interface {
	GetTableSchema(ctx context.Context, table string) (Schema, error)
	GetPrimaryKeyColumns(ctx context.Context, table string) ([]string, error)
}

// Fetch : pulls the schema and the primary key of a table concurrently
func Fetch(ctx context.Context, d Describer, tableName string) (*Info, error) {
	var (
		schma Schema
		pk    []string
		wg    errgroup.Group
	)
	wg.Go(func() error {
		var err error
		schma, err = d.GetTableSchema(ctx, tableName)
		if err != nil {
			return fmt.Errorf("schema for %s : %w", tableName, err)
		}
		return nil
	})
	wg.Go(func() error {
		var err error
		pk, err = d.GetPrimaryKeyColumns(ctx, tableName)
		if err != nil {
			return fmt.Errorf("primary key for %s : %w", tableName, err)
		}
		return nil
	})
	if err := wg.Wait(); err != nil {
		return nil, err
	}
	return &Info{
		TableName:  tableName,
		Schema:     schma,
		PrimaryKey: pk,
	}, nil
}
