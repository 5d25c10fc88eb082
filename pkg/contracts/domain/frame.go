package domain

import (
	"fmt"
	"time"
)

// Frame is a dated feature matrix: one row per timestamp, one float column
// per feature. Rows are ordered by date. Offline and online feature paths
// both produce Frames with identical schemas for the same configuration.
type Frame struct {
	Dates   []time.Time `json:"dates"`
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// NewFrame creates an empty frame over the given timestamps.
func NewFrame(dates []time.Time) *Frame {
	rows := make([][]float64, len(dates))
	for i := range rows {
		rows[i] = []float64{}
	}
	return &Frame{Dates: dates, Rows: rows}
}

// NumRows returns the number of rows in the frame.
func (f *Frame) NumRows() int {
	return len(f.Dates)
}

// AddColumn appends a named column. The value slice length must match the
// current row count.
func (f *Frame) AddColumn(name string, values []float64) error {
	if len(values) != len(f.Dates) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(values), len(f.Dates))
	}
	f.Columns = append(f.Columns, name)
	for i := range f.Rows {
		f.Rows[i] = append(f.Rows[i], values[i])
	}
	return nil
}

// Column returns a copy of the named column's values.
func (f *Frame) Column(name string) ([]float64, bool) {
	j := -1
	for i, c := range f.Columns {
		if c == name {
			j = i
			break
		}
	}
	if j < 0 {
		return nil, false
	}
	values := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		values[i] = row[j]
	}
	return values, true
}

// DropColumn removes the named column, returning its values. Dropping an
// absent column is a no-op. The remaining columns are rebuilt into fresh
// slices so frames sharing backing arrays, such as Slice views, are left
// intact.
func (f *Frame) DropColumn(name string) []float64 {
	j := -1
	for i, c := range f.Columns {
		if c == name {
			j = i
			break
		}
	}
	if j < 0 {
		return nil
	}
	columns := make([]string, 0, len(f.Columns)-1)
	columns = append(columns, f.Columns[:j]...)
	columns = append(columns, f.Columns[j+1:]...)
	f.Columns = columns

	values := make([]float64, len(f.Rows))
	rows := make([][]float64, len(f.Rows))
	for i, row := range f.Rows {
		values[i] = row[j]
		kept := make([]float64, 0, len(row)-1)
		kept = append(kept, row[:j]...)
		kept = append(kept, row[j+1:]...)
		rows[i] = kept
	}
	f.Rows = rows
	return values
}

// Slice returns a new frame holding rows [start, end). The underlying row
// slices are shared; callers must not mutate them.
func (f *Frame) Slice(start, end int) *Frame {
	return &Frame{
		Dates:   f.Dates[start:end],
		Columns: f.Columns,
		Rows:    f.Rows[start:end],
	}
}

// Matrix returns the rows as a plain [][]float64 for estimators.
func (f *Frame) Matrix() [][]float64 {
	return f.Rows
}

// PredictionSet holds one row per input timestamp and one column per
// ensemble member plus the reference column. All values are floored at zero.
type PredictionSet struct {
	Dates   []time.Time `json:"dates"`
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// ReferenceColumn is the name of the unperturbed point-estimate column.
const ReferenceColumn = "reference"

// NumRows returns the number of prediction rows.
func (p *PredictionSet) NumRows() int {
	return len(p.Dates)
}

// Column returns a copy of the named prediction column's values.
func (p *PredictionSet) Column(name string) ([]float64, bool) {
	j := -1
	for i, c := range p.Columns {
		if c == name {
			j = i
			break
		}
	}
	if j < 0 {
		return nil, false
	}
	values := make([]float64, len(p.Values))
	for i, row := range p.Values {
		values[i] = row[j]
	}
	return values, true
}

// Append concatenates another prediction set with the same columns.
func (p *PredictionSet) Append(other *PredictionSet) error {
	if len(p.Columns) == 0 {
		p.Columns = other.Columns
	} else if len(p.Columns) != len(other.Columns) {
		return fmt.Errorf("prediction column mismatch: %d vs %d", len(p.Columns), len(other.Columns))
	}
	p.Dates = append(p.Dates, other.Dates...)
	p.Values = append(p.Values, other.Values...)
	return nil
}

// Fold is one rolling-origin cross-validation split. Ranges are half-open
// row index intervals into a chronologically ordered frame; the training
// range always strictly precedes the test range.
type Fold struct {
	TrainStart int `json:"train_start"`
	TrainEnd   int `json:"train_end"`
	TestStart  int `json:"test_start"`
	TestEnd    int `json:"test_end"`
}
