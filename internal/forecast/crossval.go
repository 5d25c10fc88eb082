package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"cashcast/pkg/contracts/domain"
)

// ErrTooFewRows is returned when the series cannot be split into the
// requested number of non-empty test folds.
var ErrTooFewRows = errors.New("not enough rows for requested fold count")

// Predictor is the contract cross-validation needs from a model: it can be
// fit, and cloned into a fresh unfitted copy so no state leaks across
// folds. Prediction shape varies by model; see SetPredictor and
// PointPredictor.
type Predictor interface {
	Fit(ctx context.Context, x *domain.Frame, y []float64) error
	Clone() Predictor
}

// SetPredictor is a predictor producing one column per ensemble member
// plus a reference column.
type SetPredictor interface {
	Predict(x *domain.Frame) (*domain.PredictionSet, error)
}

// PointPredictor is a predictor producing a single point estimate per row.
type PointPredictor interface {
	PredictPoint(x *domain.Frame) ([]float64, error)
}

// Folds computes nFold rolling-origin splits over n chronologically
// ordered rows. Test slices are the trailing nFold blocks of equal size;
// each fold trains on every row before its test slice, so training always
// strictly precedes testing and the window expands across folds. The
// configuration is rejected before any fold executes if some test slice
// would be empty.
func Folds(n, nFold int) ([]domain.Fold, error) {
	if nFold < 2 {
		return nil, fmt.Errorf("n_fold must be at least 2, got %d", nFold)
	}
	testSize := n / (nFold + 1)
	if testSize < 1 {
		return nil, fmt.Errorf("%w: %d rows, %d folds", ErrTooFewRows, n, nFold)
	}
	folds := make([]domain.Fold, nFold)
	for i := 0; i < nFold; i++ {
		testStart := n - (nFold-i)*testSize
		folds[i] = domain.Fold{
			TrainStart: 0,
			TrainEnd:   testStart,
			TestStart:  testStart,
			TestEnd:    testStart + testSize,
		}
	}
	return folds, nil
}

// MAEs returns the mean absolute error of each prediction column against
// the true target, in column order.
func MAEs(yTrue []float64, preds *domain.PredictionSet) []float64 {
	maes := make([]float64, len(preds.Columns))
	diffs := make([]float64, len(yTrue))
	for j := range preds.Columns {
		for i, row := range preds.Values {
			diffs[i] = math.Abs(yTrue[i] - row[j])
		}
		maes[j] = stat.Mean(diffs, nil)
	}
	return maes
}

// CrossValidate runs rolling-origin cross-validation of a model over a
// chronologically ordered feature frame. Each fold fits a fresh clone on
// its training slice and predicts its test slice; folds run on a worker
// pool of the given size (<=0 means sequential).
//
// The result is a (folds x prediction columns) error matrix and the
// concatenation of all test-slice predictions in row order. A model that
// only produces point estimates is normalized to a single reference
// column.
func CrossValidate(ctx context.Context, p Predictor, x *domain.Frame, y []float64, nFold, workers int) ([][]float64, *domain.PredictionSet, error) {
	if x.NumRows() != len(y) {
		return nil, nil, fmt.Errorf("cross-validate: %d feature rows for %d targets", x.NumRows(), len(y))
	}
	folds, err := Folds(x.NumRows(), nFold)
	if err != nil {
		return nil, nil, err
	}
	if workers < 1 {
		workers = 1
	}

	maes := make([][]float64, len(folds))
	foldPreds := make([]*domain.PredictionSet, len(folds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, fold := range folds {
		i, fold := i, fold
		g.Go(func() error {
			xTrain := x.Slice(fold.TrainStart, fold.TrainEnd)
			yTrain := y[fold.TrainStart:fold.TrainEnd]
			xTest := x.Slice(fold.TestStart, fold.TestEnd)
			yTest := y[fold.TestStart:fold.TestEnd]

			clone := p.Clone()
			if err := clone.Fit(gctx, xTrain, yTrain); err != nil {
				return fmt.Errorf("fold %d: fit: %w", i, err)
			}
			preds, err := predictAny(clone, xTest)
			if err != nil {
				return fmt.Errorf("fold %d: predict: %w", i, err)
			}
			maes[i] = MAEs(yTest, preds)
			foldPreds[i] = preds
			slog.InfoContext(gctx, "cross-validation fold complete",
				slog.Int("fold", i),
				slog.Int("train_rows", fold.TrainEnd-fold.TrainStart),
				slog.Int("test_rows", fold.TestEnd-fold.TestStart),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	all := &domain.PredictionSet{}
	for _, preds := range foldPreds {
		if err := all.Append(preds); err != nil {
			return nil, nil, err
		}
	}
	return maes, all, nil
}

// predictAny normalizes the two predictor shapes to a prediction set.
func predictAny(p Predictor, x *domain.Frame) (*domain.PredictionSet, error) {
	switch m := p.(type) {
	case SetPredictor:
		return m.Predict(x)
	case PointPredictor:
		points, err := m.PredictPoint(x)
		if err != nil {
			return nil, err
		}
		values := make([][]float64, len(points))
		for i, v := range points {
			values[i] = []float64{v}
		}
		return &domain.PredictionSet{
			Dates:   x.Dates,
			Columns: []string{domain.ReferenceColumn},
			Values:  values,
		}, nil
	default:
		return nil, fmt.Errorf("model %T predicts neither sets nor points", p)
	}
}
