package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"cashcast/pkg/contracts/domain"
)

// BatchSubdir is the directory under the data root holding weekly batches.
const BatchSubdir = "batchs"

// Extractor reads weekly batch files for a source and concatenates them.
// A missing file for a given week is silently skipped; an entirely empty
// result is a valid (if degenerate) output, not a failure.
type Extractor struct {
	dataDir string
	logger  *slog.Logger
}

// NewExtractor creates an extractor rooted at the given data directory.
func NewExtractor(dataDir string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{dataDir: dataDir, logger: logger}
}

// Extract loads all batch files for the source between startWeek and
// endWeek inclusive, in ascending week order. Batches may be CSV or XLSX;
// for each week the zero-padded file name is tried first, then the plain
// one. Rows from later weeks are re-mapped onto the first batch's columns.
func (e *Extractor) Extract(ctx context.Context, startWeek, endWeek int, source string) (*domain.RawTable, error) {
	table := &domain.RawTable{}
	found := 0
	for week := startWeek; week <= endWeek; week++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		path, ok := e.findBatch(source, week)
		if !ok {
			continue
		}
		batch, err := readBatch(path)
		if err != nil {
			return nil, fmt.Errorf("read batch %s: %w", filepath.Base(path), err)
		}
		table.Append(batch)
		found++
	}
	e.logger.InfoContext(ctx, "extracted weekly batches",
		slog.String("source", source),
		slog.Int("start_week", startWeek),
		slog.Int("end_week", endWeek),
		slog.Int("batches_found", found),
		slog.Int("rows", len(table.Rows)),
	)
	return table, nil
}

// findBatch locates the batch file for a source and week, if one exists.
func (e *Extractor) findBatch(source string, week int) (string, bool) {
	dir := filepath.Join(e.dataDir, BatchSubdir)
	names := []string{
		fmt.Sprintf("%s_week_%03d.csv", source, week),
		fmt.Sprintf("%s_week_%d.csv", source, week),
		fmt.Sprintf("%s_week_%03d.xlsx", source, week),
		fmt.Sprintf("%s_week_%d.xlsx", source, week),
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// readBatch reads one batch file into a raw table. The first row is the
// header.
func readBatch(path string) (*domain.RawTable, error) {
	if filepath.Ext(path) == ".xlsx" {
		return readXLSXBatch(path)
	}
	return readCSVBatch(path)
}

func readCSVBatch(path string) (*domain.RawTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	if len(records) == 0 {
		return &domain.RawTable{}, nil
	}
	return &domain.RawTable{Columns: records[0], Rows: records[1:]}, nil
}

func readXLSXBatch(path string) (*domain.RawTable, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return &domain.RawTable{}, nil
	}
	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &domain.RawTable{}, nil
	}
	header := rows[0]
	table := &domain.RawTable{Columns: header}
	for _, row := range rows[1:] {
		// excelize trims trailing empty cells; pad back to header width.
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			row = padded
		}
		table.Rows = append(table.Rows, row[:len(header)])
	}
	return table, nil
}

/// WeekIndex returns the batch week number for a timestamp: the ISO calendar
// week offset so that the earliest observed year maps to weeks 0..51.
// Used only for batch addressing, never as a model feature.
func WeekIndex(date time.Time, yearMin int) int {
	year, week := date.ISOWeek()
	return week + 52*(year-yearMin)
}
