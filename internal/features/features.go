package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"cashcast/pkg/contracts/domain"
)

// TargetColumn is the name of the forecast target inside feature frames.
const TargetColumn = "cash_in"

// LagColumn returns the name of the lagged-target column for a lag width.
func LagColumn(lagWeeks int) string {
	return fmt.Sprintf("lag_%dW", lagWeeks)
}

// DummyDay one-hot encodes the weekday of each row (Monday=0 .. Sunday=6).
// Observed weekday categories are encoded in ascending order with the first
// observed category dropped as the implicit baseline, so a series covering
// all seven weekdays gains six indicator columns day_1 .. day_6.
func DummyDay(f *domain.Frame) error {
	observed := make(map[int]bool)
	days := make([]int, len(f.Dates))
	for i, d := range f.Dates {
		days[i] = weekday(d)
		observed[days[i]] = true
	}
	categories := make([]int, 0, len(observed))
	for day := range observed {
		categories = append(categories, day)
	}
	sort.Ints(categories)
	if len(categories) > 0 {
		categories = categories[1:] // drop first category to avoid collinearity
	}
	for _, category := range categories {
		values := make([]float64, len(days))
		for i, day := range days {
			if day == category {
				values[i] = 1
			}
		}
		if err := f.AddColumn(fmt.Sprintf("day_%d", category), values); err != nil {
			return err
		}
	}
	return nil
}

// HourCosSin adds cosine and sine pairs of the hour of day at integer
// harmonics 1..degree of the 24-hour cycle.
func HourCosSin(f *domain.Frame, degree int) error {
	hours := make([]float64, len(f.Dates))
	for i, d := range f.Dates {
		hours[i] = 2 * math.Pi * float64(d.Hour()) / 24
	}
	for i := 1; i <= degree; i++ {
		cos := make([]float64, len(hours))
		sin := make([]float64, len(hours))
		for j, omega := range hours {
			cos[j] = math.Cos(float64(i) * omega)
			sin[j] = math.Sin(float64(i) * omega)
		}
		if err := f.AddColumn(fmt.Sprintf("hour_cos_%d", i), cos); err != nil {
			return err
		}
		if err := f.AddColumn(fmt.Sprintf("hour_sin_%d", i), sin); err != nil {
			return err
		}
	}
	return nil
}

// LagOffline adds the lagged target to a frame that carries its own
// history. Each row's lag is the target value from exactly lagWeeks weeks
// earlier, matched by calendar offset, not by row position. Rows whose lag
// falls before the start of the series are dropped, so the output has
// fewer rows than the input. A series shorter than the lag window
// legitimately produces zero rows.
func LagOffline(f *domain.Frame, lagWeeks int) (*domain.Frame, error) {
	target, ok := f.Column(TargetColumn)
	if !ok {
		return nil, fmt.Errorf("lag offline: frame has no %s column", TargetColumn)
	}
	byDate := make(map[int64]float64, len(f.Dates))
	for i, d := range f.Dates {
		byDate[d.UnixNano()] = target[i]
	}
	offset := lagOffset(lagWeeks)

	out := &domain.Frame{Columns: append([]string{}, f.Columns...)}
	var lags []float64
	for i, d := range f.Dates {
		lag, ok := byDate[d.Add(-offset).UnixNano()]
		if !ok {
			continue
		}
		out.Dates = append(out.Dates, d)
		out.Rows = append(out.Rows, append([]float64{}, f.Rows[i]...))
		lags = append(lags, lag)
	}
	if len(lags) == 0 {
		lags = []float64{}
	}
	if err := out.AddColumn(LagColumn(lagWeeks), lags); err != nil {
		return nil, err
	}
	return out, nil
}

// LagOnline adds the lagged target sourced from a separately supplied
// history, for inputs that have no usable history of their own (a pure
// future horizon). Dates whose shifted lookup misses in past are filled
// with zero; every input row is preserved.
func LagOnline(f *domain.Frame, past domain.TimeSeries, lagWeeks int) error {
	offset := lagOffset(lagWeeks)
	byDate := make(map[int64]float64, len(past))
	for _, b := range past {
		byDate[b.Date.Add(offset).UnixNano()] = b.CashIn
	}
	lags := make([]float64, len(f.Dates))
	for i, d := range f.Dates {
		lags[i] = byDate[d.UnixNano()]
	}
	return f.AddColumn(LagColumn(lagWeeks), lags)
}

// Offline composes the full offline feature set over a resampled series:
// weekday indicators, cyclical hours, then the lagged target. The lag step
// runs last because it is the only step that drops rows. The returned
// frame keeps the cash_in target as a column.
func Offline(series domain.TimeSeries, degree, lagWeeks int) (*domain.Frame, error) {
	f := domain.NewFrame(series.Dates())
	if err := f.AddColumn(TargetColumn, series.Values()); err != nil {
		return nil, err
	}
	if err := DummyDay(f); err != nil {
		return nil, err
	}
	if err := HourCosSin(f, degree); err != nil {
		return nil, err
	}
	return LagOffline(f, lagWeeks)
}

// Online composes the same feature set over a future horizon, sourcing lag
// values from the supplied recent history. No rows are dropped; unknown
// lags are imputed as zero. The output schema matches Offline for the same
// degree and lag configuration, minus the target column.
func Online(dates []time.Time, past domain.TimeSeries, degree, lagWeeks int) (*domain.Frame, error) {
	f := domain.NewFrame(dates)
	if err := DummyDay(f); err != nil {
		return nil, err
	}
	if err := HourCosSin(f, degree); err != nil {
		return nil, err
	}
	if err := LagOnline(f, past, lagWeeks); err != nil {
		return nil, err
	}
	return f, nil
}

// weekday maps time.Weekday onto the Monday=0 .. Sunday=6 convention.
func weekday(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

func lagOffset(lagWeeks int) time.Duration {
	return time.Duration(lagWeeks) * 7 * 24 * time.Hour
}
