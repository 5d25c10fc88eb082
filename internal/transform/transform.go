package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"cashcast/internal/extract"
	"cashcast/pkg/contracts/domain"
)

// ErrNoData is returned by Etl when every configured source produced an
// empty extract. The accompanying series is empty but valid; callers decide
// whether to abort or continue.
var ErrNoData = errors.New("no order data in requested week range")

// DefaultFreq is the resampling bucket width.
const DefaultFreq = time.Hour

// Clean normalizes one source's raw extract into one row per order.
//
// Column names are lowercased with spaces replaced by underscores and the
// order-number column is renamed to order_id. Each order's cash_in is the
// sum of quantity x unit price over its line items; line-item columns are
// then dropped and duplicate rows collapse to a single row per order.
// Already-clean input (order_id, order_date, cash_in) passes through
// unchanged, so Clean is idempotent.
func Clean(raw *domain.RawTable) ([]domain.Order, error) {
	if raw.IsEmpty() {
		return nil, nil
	}
	cols := normalizeColumns(raw.Columns)

	dateIdx := indexOf(cols, "order_date")
	if dateIdx < 0 {
		return nil, fmt.Errorf("clean: missing order_date column")
	}
	idIdx := indexOf(cols, "order_number")
	if idIdx < 0 {
		idIdx = indexOf(cols, "order_id")
	}
	if idIdx < 0 {
		return nil, fmt.Errorf("clean: missing order_number column")
	}
	qtyIdx := indexOf(cols, "quantity")
	priceIdx := indexOf(cols, "product_price")
	cashIdx := indexOf(cols, "cash_in")
	if (qtyIdx < 0 || priceIdx < 0) && cashIdx < 0 {
		return nil, fmt.Errorf("clean: need quantity and product_price columns, or cash_in")
	}

	type line struct {
		orderID string
		date    time.Time
		amount  float64
	}
	lines := make([]line, 0, len(raw.Rows))
	totals := make(map[string]float64)
	for i, row := range raw.Rows {
		date, err := ParseDate(strings.TrimSpace(row[dateIdx]))
		if err != nil {
			return nil, fmt.Errorf("clean: row %d: %w", i+1, err)
		}
		orderID := strings.TrimSpace(row[idIdx])
		var amount float64
		if qtyIdx >= 0 && priceIdx >= 0 {
			qty, err := parseFloat(row[qtyIdx], "quantity", i+1)
			if err != nil {
				return nil, err
			}
			price, err := parseFloat(row[priceIdx], "product_price", i+1)
			if err != nil {
				return nil, err
			}
			amount = qty * price
		} else {
			amount, err = parseFloat(row[cashIdx], "cash_in", i+1)
			if err != nil {
				return nil, err
			}
		}
		lines = append(lines, line{orderID: orderID, date: date, amount: amount})
		totals[orderID] += amount
	}

	// Every line of an order carries the full order total; exact duplicates
	// then collapse to one row per (order, timestamp).
	type key struct {
		orderID string
		date    int64
	}
	seen := make(map[key]bool, len(totals))
	orders := make([]domain.Order, 0, len(totals))
	for _, l := range lines {
		cash := totals[l.orderID]
		// Already-clean input carries the order total on every row already.
		if qtyIdx < 0 || priceIdx < 0 {
			cash = l.amount
		}
		k := key{orderID: l.orderID, date: l.date.UnixNano()}
		if seen[k] {
			continue
		}
		seen[k] = true
		orders = append(orders, domain.Order{OrderID: l.orderID, Date: l.date, CashIn: cash})
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Date.Before(orders[j].Date)
	})
	return orders, nil
}

// Merge combines two cleaned sources into one stream of cash events.
// Order identifiers are dropped because they are not unique across sources.
func Merge(a, b []domain.Order) []domain.CashEvent {
	events := make([]domain.CashEvent, 0, len(a)+len(b))
	for _, o := range a {
		events = append(events, domain.CashEvent{Date: o.Date, CashIn: o.CashIn})
	}
	for _, o := range b {
		events = append(events, domain.CashEvent{Date: o.Date, CashIn: o.CashIn})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date.Before(events[j].Date)
	})
	return events
}

// Resample buckets events into fixed-width intervals, summing cash_in per
// bucket. The output has exactly one bucket per interval across the full
// observed span; intervals with no orders hold zero.
func Resample(events []domain.CashEvent, freq time.Duration) domain.TimeSeries {
	if len(events) == 0 {
		return domain.TimeSeries{}
	}
	if freq <= 0 {
		freq = DefaultFreq
	}
	sums := make(map[int64]float64)
	first := events[0].Date.Truncate(freq)
	last := first
	for _, ev := range events {
		bucket := ev.Date.Truncate(freq)
		sums[bucket.UnixNano()] += ev.CashIn
		if bucket.Before(first) {
			first = bucket
		}
		if bucket.After(last) {
			last = bucket
		}
	}
	var series domain.TimeSeries
	for t := first; !t.After(last); t = t.Add(freq) {
		series = append(series, domain.Bucket{Date: t, CashIn: sums[t.UnixNano()]})
	}
	return series
}

// Etl loads, cleans, merges and resamples the configured sources over an
// inclusive week range. An all-empty extract yields an empty series wrapped
// in ErrNoData.
func Etl(ctx context.Context, ex *extract.Extractor, startWeek, endWeek int, sources []string, freq time.Duration) (domain.TimeSeries, error) {
	var merged []domain.Order
	for _, source := range sources {
		raw, err := ex.Extract(ctx, startWeek, endWeek, source)
		if err != nil {
			return nil, fmt.Errorf("etl: extract %s: %w", source, err)
		}
		cleaned, err := Clean(raw)
		if err != nil {
			return nil, fmt.Errorf("etl: clean %s: %w", source, err)
		}
		merged = append(merged, cleaned...)
	}
	events := Merge(merged, nil)
	series := Resample(events, freq)
	if len(series) == 0 {
		slog.WarnContext(ctx, "etl produced an empty series",
			slog.Int("start_week", startWeek),
			slog.Int("end_week", endWeek),
		)
		return series, ErrNoData
	}
	slog.InfoContext(ctx, "etl complete",
		slog.Int("start_week", startWeek),
		slog.Int("end_week", endWeek),
		slog.Int("buckets", len(series)),
	)
	return series, nil
}

// TableFromOrders renders cleaned orders back into tabular form, in the
// cleaned column layout. Useful for artifacts and for re-cleaning.
func TableFromOrders(orders []domain.Order) *domain.RawTable {
	table := &domain.RawTable{Columns: []string{"order_id", "order_date", "cash_in"}}
	for _, o := range orders {
		table.Rows = append(table.Rows, []string{
			o.OrderID,
			o.Date.Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(o.CashIn, 'f', -1, 64),
		})
	}
	return table
}

// ParseDate parses timestamps in the formats batch files are known to use.
func ParseDate(value string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"02/01/2006 15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", value)
}

func normalizeColumns(cols []string) []string {
	normalized := make([]string, len(cols))
	for i, c := range cols {
		c = strings.ToLower(strings.TrimSpace(c))
		normalized[i] = strings.ReplaceAll(c, " ", "_")
	}
	return normalized
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func parseFloat(value, field string, row int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("clean: row %d: parse %s: %w", row, field, err)
	}
	return v, nil
}
