package model

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"cashcast/internal/forecast"
	"cashcast/pkg/contracts/domain"
)

// MultiModel is a bootstrap-aggregated wrapper around clones of a base
// estimator. One unperturbed reference clone is fit on the full training
// set; each of the n perturbed members is fit on an independent
// with-replacement resample of the same size, seeded by its index, so a
// fit is fully deterministic. The spread across member predictions is the
// empirical uncertainty band; the reference column is the production point
// estimate.
//
// A MultiModel must not be fit concurrently from two callers.
type MultiModel struct {
	base    Estimator
	nModels int
	workers int

	reference Estimator
	members   []Estimator
	nFeatures int
}

// NewMultiModel wraps the base estimator into an ensemble of nModels
// perturbed clones plus one reference. Workers bounds how many members fit
// in parallel (<=0 means sequential).
func NewMultiModel(base Estimator, nModels, workers int) *MultiModel {
	return &MultiModel{base: base, nModels: nModels, workers: workers}
}

// NumModels returns the configured number of perturbed members.
func (m *MultiModel) NumModels() int {
	return m.nModels
}

// Fit trains the reference on (x, y) and every member on its own seeded
// bootstrap resample. Refitting discards all previously fitted state.
func (m *MultiModel) Fit(ctx context.Context, x *domain.Frame, y []float64) error {
	if x.NumRows() == 0 {
		return fmt.Errorf("fit: empty training set")
	}
	if x.NumRows() != len(y) {
		return fmt.Errorf("fit: %d feature rows for %d targets", x.NumRows(), len(y))
	}
	if m.nModels < 1 {
		return fmt.Errorf("fit: n_models must be positive, got %d", m.nModels)
	}

	rows := x.Matrix()
	reference := m.base.Clone()
	if err := reference.Fit(rows, y); err != nil {
		return fmt.Errorf("fit reference: %w", err)
	}

	members := make([]Estimator, m.nModels)
	workers := m.workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := 0; k < m.nModels; k++ {
		k := k
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			e := m.base.Clone()
			if s, ok := e.(Seedable); ok {
				s.SetSeed(int64(k))
			}
			xBoot, yBoot := bootstrap(rows, y, int64(k))
			if err := e.Fit(xBoot, yBoot); err != nil {
				return fmt.Errorf("fit member %d: %w", k, err)
			}
			members[k] = e
			slog.DebugContext(gctx, "ensemble member fitted",
				slog.Int("member", k),
				slog.Int("rows", len(xBoot)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.reference = reference
	m.members = members
	m.nFeatures = len(x.Columns)
	return nil
}

// Predict runs every member plus the reference on x and stacks the outputs
// into one column per member (pred_0 .. pred_{n-1}) plus the reference
// column. Cash-in cannot be negative, so all values are floored at zero.
// The input's row order is preserved.
func (m *MultiModel) Predict(x *domain.Frame) (*domain.PredictionSet, error) {
	if m.reference == nil || len(m.members) == 0 {
		return nil, ErrNotFitted
	}
	if len(x.Columns) != m.nFeatures {
		return nil, fmt.Errorf("predict: %d features, trained on %d", len(x.Columns), m.nFeatures)
	}

	rows := x.Matrix()
	columns := make([]string, 0, len(m.members)+1)
	stacked := make([][]float64, len(m.members)+1)
	for k, e := range m.members {
		preds, err := e.Predict(rows)
		if err != nil {
			return nil, fmt.Errorf("predict member %d: %w", k, err)
		}
		stacked[k] = preds
		columns = append(columns, fmt.Sprintf("pred_%d", k))
	}
	refPreds, err := m.reference.Predict(rows)
	if err != nil {
		return nil, fmt.Errorf("predict reference: %w", err)
	}
	stacked[len(m.members)] = refPreds
	columns = append(columns, domain.ReferenceColumn)

	values := make([][]float64, len(rows))
	for i := range rows {
		row := make([]float64, len(columns))
		for j := range columns {
			v := stacked[j][i]
			if v < 0 {
				v = 0
			}
			row[j] = v
		}
		values[i] = row
	}
	return &domain.PredictionSet{Dates: x.Dates, Columns: columns, Values: values}, nil
}

// Clone returns a fresh unfitted ensemble with the same configuration.
func (m *MultiModel) Clone() forecast.Predictor {
	return NewMultiModel(m.base.Clone(), m.nModels, m.workers)
}

// bootstrap draws a with-replacement resample of size len(x), seeded so
// member k always sees the same resample.
func bootstrap(x [][]float64, y []float64, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	xOut := make([][]float64, len(x))
	yOut := make([]float64, len(y))
	for i := range x {
		j := rng.Intn(len(x))
		xOut[i] = x[j]
		yOut[i] = y[j]
	}
	return xOut, yOut
}
