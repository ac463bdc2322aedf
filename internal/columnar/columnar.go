// Package columnar reads Parquet files into typed, nullable Go columns.
package columnar

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet"
	"github.com/apache/arrow/go/v15/parquet/file"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
)

// ErrMissingColumn is returned when a required column is absent from the file.
var ErrMissingColumn = errors.New("missing column")

// Table is a fully materialized Parquet file.
type Table struct {
	tbl arrow.Table
}

// ReadParquet reads every row group of a Parquet file. Release must be called on the result.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker) (*Table, error) {
	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("parquet arrow reader: %w", err)
	}

	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("read parquet table: %w", err)
	}
	return &Table{tbl: tbl}, nil
}

// Release frees the underlying Arrow buffers.
func (t *Table) Release() {
	t.tbl.Release()
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return int(t.tbl.NumRows())
}

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	return len(t.tbl.Schema().FieldIndices(name)) > 0
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	idx := t.tbl.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("%q: %w", name, ErrMissingColumn)
	}
	return &Column{name: name, chunks: t.tbl.Column(idx[0]).Data().Chunks()}, nil
}

// Column is one named column split into Arrow chunks.
type Column struct {
	name   string
	chunks []arrow.Array
}

// Int64s returns the column as nullable integers. Floating point values must be whole numbers.
func (c *Column) Int64s() ([]*int64, error) {
	var out []*int64
	for _, arr := range c.chunks {
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				out = append(out, nil)
				continue
			}
			v, err := int64At(arr, i)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", c.name, len(out), err)
			}
			out = append(out, &v)
		}
	}
	return out, nil
}

// Float64s returns the column as nullable floats.
func (c *Column) Float64s() ([]*float64, error) {
	var out []*float64
	for _, arr := range c.chunks {
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				out = append(out, nil)
				continue
			}
			v, err := float64At(arr, i)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", c.name, len(out), err)
			}
			out = append(out, &v)
		}
	}
	return out, nil
}

// Strings returns the column as nullable strings. Dictionary-encoded columns are expanded.
func (c *Column) Strings() ([]*string, error) {
	var out []*string
	for _, arr := range c.chunks {
		for i := 0; i < arr.Len(); i++ {
			if arr.IsNull(i) {
				out = append(out, nil)
				continue
			}
			v, err := stringAt(arr, i)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", c.name, len(out), err)
			}
			out = append(out, &v)
		}
	}
	return out, nil
}

// Bools returns the column as nullable booleans.
func (c *Column) Bools() ([]*bool, error) {
	var out []*bool
	for _, arr := range c.chunks {
		b, ok := arr.(*array.Boolean)
		if !ok {
			return nil, fmt.Errorf("column %q: unsupported type %s for bool", c.name, arr.DataType())
		}
		for i := 0; i < b.Len(); i++ {
			if b.IsNull(i) {
				out = append(out, nil)
				continue
			}
			v := b.Value(i)
			out = append(out, &v)
		}
	}
	return out, nil
}

func int64At(arr arrow.Array, i int) (int64, error) {
	switch a := arr.(type) {
	case *array.Int64:
		return a.Value(i), nil
	case *array.Int32:
		return int64(a.Value(i)), nil
	case *array.Int16:
		return int64(a.Value(i)), nil
	case *array.Int8:
		return int64(a.Value(i)), nil
	case *array.Uint32:
		return int64(a.Value(i)), nil
	case *array.Uint16:
		return int64(a.Value(i)), nil
	case *array.Uint8:
		return int64(a.Value(i)), nil
	case *array.Float64, *array.Float32:
		f, _ := float64At(arr, i)
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("value %v is not an integer", f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("unsupported type %s for integer", arr.DataType())
}

func float64At(arr arrow.Array, i int) (float64, error) {
	switch a := arr.(type) {
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Int64, *array.Int32, *array.Int16, *array.Int8, *array.Uint32, *array.Uint16, *array.Uint8:
		v, err := int64At(arr, i)
		return float64(v), err
	}
	return 0, fmt.Errorf("unsupported type %s for float", arr.DataType())
}

func stringAt(arr arrow.Array, i int) (string, error) {
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Binary:
		return string(a.Value(i)), nil
	case *array.Dictionary:
		return stringAt(a.Dictionary(), a.GetValueIndex(i))
	}
	return "", fmt.Errorf("unsupported type %s for string", arr.DataType())
}
