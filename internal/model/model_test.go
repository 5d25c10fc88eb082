package model

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashcast/internal/forecast"
	"cashcast/pkg/contracts/domain"
)

func trainingFrame(n int, target func(i int) float64) (*domain.Frame, []float64) {
	dates := make([]time.Time, n)
	x := make([]float64, n)
	y := make([]float64, n)
	start := time.Date(2019, 9, 23, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.Add(time.Duration(i) * time.Hour)
		x[i] = float64(i)
		y[i] = target(i)
	}
	f := domain.NewFrame(dates)
	if err := f.AddColumn("x", x); err != nil {
		panic(err)
	}
	return f, y
}

func TestLinearRegressionRecoversLine(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}}
	y := []float64{1, 3, 5, 7} // y = 2x + 1

	lr := NewLinearRegression()
	require.NoError(t, lr.Fit(x, y))
	require.Len(t, lr.Weights, 2)
	assert.InDelta(t, 1, lr.Weights[0], 1e-9)
	assert.InDelta(t, 2, lr.Weights[1], 1e-9)

	preds, err := lr.Predict([][]float64{{10}})
	require.NoError(t, err)
	assert.InDelta(t, 21, preds[0], 1e-9)
}

func TestLinearRegressionErrors(t *testing.T) {
	lr := NewLinearRegression()
	_, err := lr.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, lr.Fit([][]float64{{0}, {1}}, []float64{0, 1}))
	_, err = lr.Predict([][]float64{{1, 2}})
	assert.Error(t, err, "feature count must match training")

	assert.Error(t, lr.Fit([][]float64{{0}}, []float64{0, 1}))
}

func TestForestRegressorFitsSteps(t *testing.T) {
	// A step function a single split captures exactly.
	x := make([][]float64, 40)
	y := make([]float64, 40)
	for i := range x {
		x[i] = []float64{float64(i)}
		if i < 20 {
			y[i] = 1
		} else {
			y[i] = 9
		}
	}

	forest := NewForestRegressor(5)
	require.NoError(t, forest.Fit(x, y))

	preds, err := forest.Predict([][]float64{{5}, {35}})
	require.NoError(t, err)
	assert.InDelta(t, 1, preds[0], 0.5)
	assert.InDelta(t, 9, preds[1], 0.5)
}

func TestForestRegressorDeterministicBySeed(t *testing.T) {
	x := make([][]float64, 30)
	y := make([]float64, 30)
	for i := range x {
		x[i] = []float64{float64(i % 7), float64(i % 5)}
		y[i] = float64(i%7) * 2
	}

	a := NewForestRegressor(3)
	a.SetSeed(42)
	require.NoError(t, a.Fit(x, y))
	b := NewForestRegressor(3)
	b.SetSeed(42)
	require.NoError(t, b.Fit(x, y))

	predsA, err := a.Predict(x)
	require.NoError(t, err)
	predsB, err := b.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, predsA, predsB, "same seed and data must yield identical forests")
}

func TestForestRegressorErrors(t *testing.T) {
	forest := NewForestRegressor(3)
	_, err := forest.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, forest.Fit([][]float64{{0}, {1}, {2}}, []float64{0, 1, 2}))
	_, err = forest.Predict([][]float64{{1, 2}})
	assert.Error(t, err)
}

func TestForestCloneIsUnfitted(t *testing.T) {
	forest := NewForestRegressor(3)
	forest.MaxDepth = 4
	forest.SetSeed(7)
	require.NoError(t, forest.Fit([][]float64{{0}, {1}, {2}, {3}}, []float64{0, 1, 2, 3}))

	clone := forest.Clone().(*ForestRegressor)
	assert.Equal(t, 3, clone.NEstimators)
	assert.Equal(t, 4, clone.MaxDepth)
	assert.Equal(t, int64(7), clone.Seed)
	assert.Empty(t, clone.Trees)
}

func TestMultiModelPredictShape(t *testing.T) {
	x, y := trainingFrame(60, func(i int) float64 { return float64(i % 24) })

	m := NewMultiModel(NewForestRegressor(2), 3, 2)
	require.NoError(t, m.Fit(context.Background(), x, y))

	preds, err := m.Predict(x)
	require.NoError(t, err)
	require.Equal(t, []string{"pred_0", "pred_1", "pred_2", domain.ReferenceColumn}, preds.Columns)
	assert.Equal(t, x.NumRows(), preds.NumRows())
}

func TestMultiModelMemberSeedsMatchIndex(t *testing.T) {
	x, y := trainingFrame(30, func(i int) float64 { return float64(i % 5) })

	m := NewMultiModel(NewForestRegressor(2), 4, 2)
	require.NoError(t, m.Fit(context.Background(), x, y))

	require.Len(t, m.members, 4)
	for k, member := range m.members {
		forest, ok := member.(*ForestRegressor)
		require.True(t, ok)
		assert.Equal(t, int64(k), forest.Seed, "member %d", k)
	}
	ref, ok := m.reference.(*ForestRegressor)
	require.True(t, ok)
	assert.Zero(t, ref.Seed, "the reference stays unperturbed")
}

func TestMultiModelFloorsNegativePredictions(t *testing.T) {
	// All-negative targets force every raw prediction below zero.
	x, y := trainingFrame(40, func(i int) float64 { return -float64(i + 1) })

	m := NewMultiModel(NewLinearRegression(), 2, 1)
	require.NoError(t, m.Fit(context.Background(), x, y))

	preds, err := m.Predict(x)
	require.NoError(t, err)
	for _, row := range preds.Values {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestMultiModelMembersDiffer(t *testing.T) {
	x, y := trainingFrame(80, func(i int) float64 { return float64((i*13)%29) + 1 })

	m := NewMultiModel(NewForestRegressor(2), 4, 1)
	require.NoError(t, m.Fit(context.Background(), x, y))

	preds, err := m.Predict(x)
	require.NoError(t, err)
	first, ok := preds.Column("pred_0")
	require.True(t, ok)
	distinct := false
	for k := 1; k < m.NumModels() && !distinct; k++ {
		other, _ := preds.Column(fmt.Sprintf("pred_%d", k))
		for i := range first {
			if first[i] != other[i] {
				distinct = true
				break
			}
		}
	}
	assert.True(t, distinct, "differently seeded bootstraps should perturb the members")
}

func TestMultiModelErrors(t *testing.T) {
	x, y := trainingFrame(20, func(i int) float64 { return float64(i) })

	m := NewMultiModel(NewForestRegressor(2), 2, 1)
	_, err := m.Predict(x)
	assert.ErrorIs(t, err, ErrNotFitted)

	assert.Error(t, m.Fit(context.Background(), x, y[:5]), "row and target counts must match")
	assert.Error(t, m.Fit(context.Background(), domain.NewFrame(nil), nil))

	require.NoError(t, m.Fit(context.Background(), x, y))
	wide := domain.NewFrame(x.Dates)
	require.NoError(t, wide.AddColumn("a", make([]float64, 20)))
	require.NoError(t, wide.AddColumn("b", make([]float64, 20)))
	_, err = m.Predict(wide)
	assert.Error(t, err, "feature count must match training")
}

func TestMultiModelRefitReplacesState(t *testing.T) {
	x1, y1 := trainingFrame(30, func(i int) float64 { return 5 })
	x2, y2 := trainingFrame(30, func(i int) float64 { return 100 })

	m := NewMultiModel(NewLinearRegression(), 2, 1)
	require.NoError(t, m.Fit(context.Background(), x1, y1))
	require.NoError(t, m.Fit(context.Background(), x2, y2))

	preds, err := m.Predict(x2)
	require.NoError(t, err)
	ref, ok := preds.Column(domain.ReferenceColumn)
	require.True(t, ok)
	assert.InDelta(t, 100, ref[0], 1e-6, "a refit model must forget its previous training set")
}

func TestMultiModelSaveLoadRoundTrip(t *testing.T) {
	x, y := trainingFrame(50, func(i int) float64 { return float64(i%24) + 1 })

	m := NewMultiModel(NewForestRegressor(2), 3, 1)
	require.NoError(t, m.Fit(context.Background(), x, y))
	want, err := m.Predict(x)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, m.Save(path))

	restored := NewMultiModel(NewForestRegressor(2), 3, 1)
	require.NoError(t, restored.Load(path))
	got, err := restored.Predict(x)
	require.NoError(t, err)

	require.Equal(t, want.Columns, got.Columns)
	for i := range want.Values {
		for j := range want.Values[i] {
			assert.InDelta(t, want.Values[i][j], got.Values[i][j], 1e-12)
		}
	}
}

func TestPointAdapterCrossValidates(t *testing.T) {
	x, y := trainingFrame(60, func(i int) float64 { return 3*float64(i) + 2 })

	maes, preds, err := forecast.CrossValidate(context.Background(), &Point{Base: NewLinearRegression()}, x, y, 4, 2)
	require.NoError(t, err)
	require.Len(t, maes, 4)
	assert.Equal(t, []string{domain.ReferenceColumn}, preds.Columns)
	// The target is exactly linear, so every fold recovers it.
	for _, foldMAEs := range maes {
		assert.InDelta(t, 0, foldMAEs[0], 1e-6)
	}
}

func TestMultiModelSaveUnfitted(t *testing.T) {
	m := NewMultiModel(NewForestRegressor(2), 2, 1)
	err := m.Save(filepath.Join(t.TempDir(), "model.json"))
	assert.ErrorIs(t, err, ErrNotFitted)
}
