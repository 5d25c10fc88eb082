package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression is an ordinary least-squares regressor with intercept.
// It carries no internal randomness, so every ensemble member fit on the
// same resample would be identical; it is mainly useful as a cheap
// reference estimator and in tests.
type LinearRegression struct {
	// Weights holds the intercept followed by one coefficient per feature.
	Weights []float64 `json:"weights"`
}

// NewLinearRegression creates an unfitted least-squares regressor.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit solves the least-squares problem over the design matrix extended
// with an intercept column.
func (l *LinearRegression) Fit(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("linear fit: %d rows for %d targets", len(x), len(y))
	}
	cols := len(x[0]) + 1
	a := mat.NewDense(len(x), cols, nil)
	for i, row := range x {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(len(y), y)

	var w mat.VecDense
	if err := w.SolveVec(a, b); err != nil {
		return fmt.Errorf("linear fit: solve: %w", err)
	}
	l.Weights = make([]float64, cols)
	for j := 0; j < cols; j++ {
		l.Weights[j] = w.AtVec(j)
	}
	return nil
}

// Predict evaluates the fitted hyperplane on each row.
func (l *LinearRegression) Predict(x [][]float64) ([]float64, error) {
	if len(l.Weights) == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(l.Weights)-1 {
			return nil, fmt.Errorf("linear predict: row %d has %d features, trained on %d", i, len(row), len(l.Weights)-1)
		}
		v := l.Weights[0]
		for j, f := range row {
			v += l.Weights[j+1] * f
		}
		out[i] = v
	}
	return out, nil
}

// Clone returns a fresh unfitted regressor.
func (l *LinearRegression) Clone() Estimator {
	return NewLinearRegression()
}
