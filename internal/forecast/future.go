package forecast

import (
	"time"
)

// DefaultHorizon is the span of the prediction horizon.
const DefaultHorizon = 7 * 24 * time.Hour

// SpanFuture generates the timestamps to predict over. The future always
// begins at midnight on the calendar day following lastObserved and always
// ends one bucket before midnight at the horizon boundary, so no partial
// day straddles the cutoff: the horizon is inclusive of its start and
// exclusive of its end.
func SpanFuture(lastObserved time.Time, horizon, freq time.Duration) []time.Time {
	year, month, day := lastObserved.Date()
	// AddDate keeps the start on local midnight even when the next day is
	// only 23 wall-clock hours long.
	start := time.Date(year, month, day, 0, 0, 0, 0, lastObserved.Location()).AddDate(0, 0, 1)
	end := start.Add(horizon).Add(-freq)
	var dates []time.Time
	for t := start; !t.After(end); t = t.Add(freq) {
		dates = append(dates, t)
	}
	return dates
}
