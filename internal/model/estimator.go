// Package model implements the bootstrap-aggregated forecaster and the
// base regression estimators it perturbs.
package model

import (
	"context"
	"errors"

	"cashcast/internal/forecast"
	"cashcast/pkg/contracts/domain"
)

// ErrNotFitted is returned by Predict on a model that has not been fit.
var ErrNotFitted = errors.New("model not fitted")

// Estimator is the capability set any concrete regression algorithm must
// satisfy to be pluggable as an ensemble base: fit, predict, and clone into
// a fresh unfitted copy with the same hyperparameters.
type Estimator interface {
	Fit(x [][]float64, y []float64) error
	Predict(x [][]float64) ([]float64, error)
	Clone() Estimator
}

// Seedable is implemented by estimators with internal randomness. The
// ensemble assigns each perturbed member its index as seed.
type Seedable interface {
	SetSeed(seed int64)
}

// Artifact is a model that can be persisted to and restored from disk,
// independent of being a trainable predictor.
type Artifact interface {
	Save(path string) error
	Load(path string) error
}

// Point adapts a bare estimator to the cross-validator's predictor
// contract, producing a single point estimate per row.
type Point struct {
	Base Estimator
}

// Fit trains the wrapped estimator on the frame's rows.
func (p *Point) Fit(_ context.Context, x *domain.Frame, y []float64) error {
	return p.Base.Fit(x.Matrix(), y)
}

// PredictPoint returns one point estimate per input row.
func (p *Point) PredictPoint(x *domain.Frame) ([]float64, error) {
	return p.Base.Predict(x.Matrix())
}

// Clone returns a fresh unfitted wrapper around a clone of the base.
func (p *Point) Clone() forecast.Predictor {
	return &Point{Base: p.Base.Clone()}
}
