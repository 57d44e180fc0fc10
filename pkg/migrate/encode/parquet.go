// Package encode writes row batches into staged columnar files
package encode

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/spf13/afero"

	"github.com/baderkha/shelter/pkg/migrate/table"
	"github.com/baderkha/shelter/pkg/migrate/table/colmap"
)

const (
	// Extension : staged file extension
	Extension = ".parquet"
	// NativeTypeKey : field metadata key holding the source type of a column staged as text
	NativeTypeKey = "shelter.native_type"
)

// Parquet : snappy compressed parquet files on an afero filesystem
type Parquet struct {
	Fs afero.Fs
}

// NewParquet : parquet encoder on the os filesystem when fs is nil
func NewParquet(fs afero.Fs) *Parquet {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Parquet{Fs: fs}
}

// ArrowType : arrow type a canonical type is staged as. Unsupported types are staged as strings.
func ArrowType(t colmap.Type) arrow.DataType {
	switch t {
	case colmap.SignedInt64:
		return arrow.PrimitiveTypes.Int64
	case colmap.UnsignedInt64:
		return arrow.PrimitiveTypes.Uint64
	case colmap.Float64:
		return arrow.PrimitiveTypes.Float64
	case colmap.Boolean:
		return arrow.FixedWidthTypes.Boolean
	case colmap.TimestampMicros:
		return arrow.FixedWidthTypes.Timestamp_us
	case colmap.Date32:
		return arrow.FixedWidthTypes.Date32
	case colmap.TimeMicros:
		return arrow.FixedWidthTypes.Time64us
	case colmap.Binary:
		return arrow.BinaryTypes.Binary
	}
	return arrow.BinaryTypes.String
}

// ArrowSchema : arrow schema for the batch columns, typed from the table schema. Columns
// without a canonical mapping are staged as strings, their native type kept under
// NativeTypeKey in the field metadata.
func ArrowSchema(schema table.Schema, columns []string) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
		col, ok := schema.Lookup(name)
		if !ok {
			continue
		}
		t, err := colmap.Convert(col.Type)
		if err != nil {
			fields[i].Metadata = arrow.NewMetadata([]string{NativeTypeKey}, []string{col.Type})
			continue
		}
		fields[i].Type = ArrowType(t)
	}
	return arrow.NewSchema(fields, nil)
}

// Encode : writes the batch to path, creating parent directories. An empty batch still
// produces a valid file carrying the schema.
func (p *Parquet) Encode(path string, schema table.Schema, batch *table.RowBatch) (err error) {
	columns := schema.Names()
	if batch != nil && len(batch.Columns) > 0 {
		columns = batch.Columns
	}
	sch := ArrowSchema(schema, columns)

	if err := p.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := p.Fs.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	pool := memory.NewGoAllocator()
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(pool), pqarrow.WithStoreSchema())
	// the file is closed above, the writer only gets to write
	fw, err := pqarrow.NewFileWriter(sch, struct{ io.Writer }{f}, props, arrowProps)
	if err != nil {
		return fmt.Errorf("create parquet writer : %w", err)
	}

	if batch.Len() > 0 {
		rec, err := buildRecord(pool, sch, batch)
		if err != nil {
			_ = fw.Close()
			return err
		}
		defer rec.Release()
		if err := fw.Write(rec); err != nil {
			_ = fw.Close()
			return fmt.Errorf("write parquet : %w", err)
		}
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet writer : %w", err)
	}
	return nil
}

func buildRecord(pool memory.Allocator, sch *arrow.Schema, batch *table.RowBatch) (arrow.Record, error) {
	b := array.NewRecordBuilder(pool, sch)
	defer b.Release()
	for r, row := range batch.Rows {
		if len(row) != len(batch.Columns) {
			return nil, fmt.Errorf("row %d has %d values for %d columns", r, len(row), len(batch.Columns))
		}
		for c, v := range row {
			if err := appendValue(b.Field(c), v); err != nil {
				return nil, fmt.Errorf("row %d column %s : %w", r, batch.Columns[c], err)
			}
		}
	}
	return b.NewRecord(), nil
}
