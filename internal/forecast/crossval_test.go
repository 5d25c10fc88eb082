package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashcast/pkg/contracts/domain"
)

// meanModel predicts the mean of its training targets for every row.
type meanModel struct {
	mean float64
}

func (m *meanModel) Fit(_ context.Context, _ *domain.Frame, y []float64) error {
	total := 0.0
	for _, v := range y {
		total += v
	}
	m.mean = total / float64(len(y))
	return nil
}

func (m *meanModel) PredictPoint(x *domain.Frame) ([]float64, error) {
	out := make([]float64, x.NumRows())
	for i := range out {
		out[i] = m.mean
	}
	return out, nil
}

func (m *meanModel) Clone() Predictor { return &meanModel{} }

// pairModel emits two constant columns to exercise the multi-column path.
type pairModel struct{}

func (p *pairModel) Fit(context.Context, *domain.Frame, []float64) error { return nil }

func (p *pairModel) Predict(x *domain.Frame) (*domain.PredictionSet, error) {
	values := make([][]float64, x.NumRows())
	for i := range values {
		values[i] = []float64{1, 2}
	}
	return &domain.PredictionSet{Dates: x.Dates, Columns: []string{"pred_0", domain.ReferenceColumn}, Values: values}, nil
}

func (p *pairModel) Clone() Predictor { return &pairModel{} }

func testFrame(n int) (*domain.Frame, []float64) {
	dates := make([]time.Time, n)
	y := make([]float64, n)
	start := time.Date(2019, 9, 23, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.Add(time.Duration(i) * time.Hour)
		y[i] = float64(i)
	}
	f := domain.NewFrame(dates)
	values := make([]float64, n)
	copy(values, y)
	if err := f.AddColumn("x", values); err != nil {
		panic(err)
	}
	return f, y
}

func TestFolds(t *testing.T) {
	folds, err := Folds(110, 10)
	require.NoError(t, err)
	require.Len(t, folds, 10)

	// 110 rows over 10 folds: test slices of 10 rows, trailing.
	assert.Equal(t, domain.Fold{TrainStart: 0, TrainEnd: 10, TestStart: 10, TestEnd: 20}, folds[0])
	assert.Equal(t, domain.Fold{TrainStart: 0, TrainEnd: 100, TestStart: 100, TestEnd: 110}, folds[9])

	for i, fold := range folds {
		assert.Equal(t, fold.TrainEnd, fold.TestStart, "fold %d trains on everything before its test slice", i)
		assert.Equal(t, 10, fold.TestEnd-fold.TestStart)
	}
}

func TestFoldsUnevenRows(t *testing.T) {
	folds, err := Folds(115, 10)
	require.NoError(t, err)
	// Integer division leaves the first 15 rows in every training window.
	assert.Equal(t, 15, folds[0].TrainEnd)
	assert.Equal(t, 115, folds[9].TestEnd)
}

func TestFoldsRejectsBadConfigs(t *testing.T) {
	_, err := Folds(100, 1)
	assert.Error(t, err)

	_, err = Folds(5, 10)
	assert.ErrorIs(t, err, ErrTooFewRows)
}

func TestCrossValidatePointModel(t *testing.T) {
	x, y := testFrame(60)
	maes, preds, err := CrossValidate(context.Background(), &meanModel{}, x, y, 4, 2)
	require.NoError(t, err)

	require.Len(t, maes, 4)
	for _, foldMAEs := range maes {
		require.Len(t, foldMAEs, 1, "a point model is normalized to a single column")
	}
	assert.Equal(t, []string{domain.ReferenceColumn}, preds.Columns)
	// 4 folds x 12 test rows.
	assert.Equal(t, 48, preds.NumRows())
	// Predictions are stitched in chronological order.
	for i := 1; i < preds.NumRows(); i++ {
		assert.True(t, preds.Dates[i-1].Before(preds.Dates[i]))
	}
}

func TestCrossValidateSetModel(t *testing.T) {
	x, y := testFrame(30)
	maes, preds, err := CrossValidate(context.Background(), &pairModel{}, x, y, 2, 1)
	require.NoError(t, err)

	require.Len(t, maes, 2)
	assert.Len(t, maes[0], 2)
	assert.Equal(t, []string{"pred_0", domain.ReferenceColumn}, preds.Columns)
}

func TestCrossValidateShapeMismatch(t *testing.T) {
	x, y := testFrame(30)
	_, _, err := CrossValidate(context.Background(), &meanModel{}, x, y[:10], 2, 1)
	assert.Error(t, err)
}

func TestCrossValidateTooFewRows(t *testing.T) {
	x, y := testFrame(5)
	_, _, err := CrossValidate(context.Background(), &meanModel{}, x, y, 10, 1)
	assert.ErrorIs(t, err, ErrTooFewRows)
}

func TestMAEs(t *testing.T) {
	preds := &domain.PredictionSet{
		Columns: []string{"pred_0", domain.ReferenceColumn},
		Values:  [][]float64{{1, 3}, {2, 5}},
	}
	maes := MAEs([]float64{2, 4}, preds)
	require.Len(t, maes, 2)
	assert.InDelta(t, 1.5, maes[0], 1e-12)
	assert.InDelta(t, 1.0, maes[1], 1e-12)
}
