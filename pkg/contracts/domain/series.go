package domain

import (
	"time"
)

// RawTable is a loosely typed tabular batch exactly as read from disk.
// Column order follows the source file; cell values are unparsed strings.
type RawTable struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// IsEmpty reports whether the table holds no rows.
func (t *RawTable) IsEmpty() bool {
	return t == nil || len(t.Rows) == 0
}

// ColumnIndex returns the position of the named column, or -1 if absent.
func (t *RawTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append concatenates another table's rows onto this one. The first
// non-empty table fixes the column set; subsequent tables must carry the
// same columns (order-insensitive, cells are re-mapped by name).
func (t *RawTable) Append(other *RawTable) {
	if other.IsEmpty() {
		return
	}
	if len(t.Columns) == 0 {
		t.Columns = append(t.Columns, other.Columns...)
		t.Rows = append(t.Rows, other.Rows...)
		return
	}
	idx := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		idx[i] = other.ColumnIndex(c)
	}
	for _, row := range other.Rows {
		mapped := make([]string, len(t.Columns))
		for i, j := range idx {
			if j >= 0 && j < len(row) {
				mapped[i] = row[j]
			}
		}
		t.Rows = append(t.Rows, mapped)
	}
}

// Order is one cleaned order: the order identifier, its timestamp and the
// total cash taken in across all of its line items.
type Order struct {
	OrderID string    `json:"order_id"`
	Date    time.Time `json:"order_date"`
	CashIn  float64   `json:"cash_in"`
}

// CashEvent is an order after source merging; identifiers are dropped
// because they are not unique across sources.
type CashEvent struct {
	Date   time.Time `json:"order_date"`
	CashIn float64   `json:"cash_in"`
}

// Bucket is one fixed-width time interval of the resampled series.
type Bucket struct {
	Date   time.Time `json:"order_date"`
	CashIn float64   `json:"cash_in"`
}

// TimeSeries is a regular, gap-free sequence of buckets ordered by date.
type TimeSeries []Bucket

// Dates returns the bucket timestamps in order.
func (s TimeSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s))
	for i, b := range s {
		dates[i] = b.Date
	}
	return dates
}

// Values returns the cash_in values in bucket order.
func (s TimeSeries) Values() []float64 {
	vals := make([]float64, len(s))
	for i, b := range s {
		vals[i] = b.CashIn
	}
	return vals
}
