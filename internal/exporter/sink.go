// Package exporter persists labeled tabular artifacts under a run's
// artifact directory. Only delimited text (csv) and structured records
// (json) are supported; anything else is rejected before any I/O.
package exporter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cashcast/internal/transform"
	"cashcast/pkg/contracts/domain"
)

// ErrUnsupportedFormat is returned for any artifact extension other than
// .csv or .json.
var ErrUnsupportedFormat = errors.New("unsupported artifact format")

// DateFormat is how timestamps are rendered in artifacts.
const DateFormat = "2006-01-02 15:04:05"

// Sink writes artifacts under a root directory, addressed by logical path.
type Sink struct {
	root   string
	logger *slog.Logger
}

// NewSink creates a sink rooted at the given directory.
func NewSink(root string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{root: root, logger: logger}
}

// SaveTable persists a raw table under the logical path. The path's
// extension selects the format.
func (s *Sink) SaveTable(table *domain.RawTable, logicalPath string) error {
	format, err := formatFor(logicalPath)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(s.root, logicalPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("save %s: %w", logicalPath, err)
	}
	switch format {
	case "csv":
		err = writeCSV(fullPath, table)
	case "json":
		err = writeJSON(fullPath, table)
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", logicalPath, err)
	}
	s.logger.Info("artifact saved",
		slog.String("path", logicalPath),
		slog.Int("rows", len(table.Rows)),
	)
	return nil
}

// SaveSeries persists a resampled time series.
func (s *Sink) SaveSeries(series domain.TimeSeries, logicalPath string) error {
	table := &domain.RawTable{Columns: []string{"order_date", "cash_in"}}
	for _, b := range series {
		table.Rows = append(table.Rows, []string{
			b.Date.Format(DateFormat),
			strconv.FormatFloat(b.CashIn, 'f', -1, 64),
		})
	}
	return s.SaveTable(table, logicalPath)
}

// SaveFrame persists a feature frame with its date column first.
func (s *Sink) SaveFrame(f *domain.Frame, logicalPath string) error {
	table := &domain.RawTable{Columns: append([]string{"order_date"}, f.Columns...)}
	for i, row := range f.Rows {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, f.Dates[i].Format(DateFormat))
		for _, v := range row {
			cells = append(cells, strconv.FormatFloat(v, 'f', -1, 64))
		}
		table.Rows = append(table.Rows, cells)
	}
	return s.SaveTable(table, logicalPath)
}

// SavePredictions persists a prediction set with its date column first.
func (s *Sink) SavePredictions(p *domain.PredictionSet, logicalPath string) error {
	table := &domain.RawTable{Columns: append([]string{"order_date"}, p.Columns...)}
	for i, row := range p.Values {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, p.Dates[i].Format(DateFormat))
		for _, v := range row {
			cells = append(cells, strconv.FormatFloat(v, 'f', -1, 64))
		}
		table.Rows = append(table.Rows, cells)
	}
	return s.SaveTable(table, logicalPath)
}

// LoadSeries reads a previously saved time-series artifact back.
func (s *Sink) LoadSeries(logicalPath string) (domain.TimeSeries, error) {
	fullPath := filepath.Join(s.root, logicalPath)
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", logicalPath, err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", logicalPath, err)
	}
	var series domain.TimeSeries
	for i, record := range records {
		if i == 0 || len(record) < 2 {
			continue
		}
		date, err := transform.ParseDate(record[0])
		if err != nil {
			return nil, fmt.Errorf("load %s: row %d: %w", logicalPath, i, err)
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("load %s: row %d: %w", logicalPath, i, err)
		}
		series = append(series, domain.Bucket{Date: date, CashIn: value})
	}
	return series, nil
}

// Path resolves a logical path under the sink root.
func (s *Sink) Path(logicalPath string) string {
	return filepath.Join(s.root, logicalPath)
}

func formatFor(logicalPath string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(logicalPath)), ".")
	switch ext {
	case "csv", "json":
		return ext, nil
	default:
		return "", fmt.Errorf("%w: %q (want csv or json)", ErrUnsupportedFormat, ext)
	}
}

func writeCSV(path string, table *domain.RawTable) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	if err := writer.Write(table.Columns); err != nil {
		return err
	}
	for _, row := range table.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeJSON(path string, table *domain.RawTable) error {
	payload := struct {
		Columns []string   `json:"columns"`
		Data    [][]string `json:"data"`
	}{Columns: table.Columns, Data: table.Rows}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
