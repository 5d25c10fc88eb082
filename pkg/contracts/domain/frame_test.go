package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFrame(t *testing.T, n int) *Frame {
	t.Helper()
	dates := make([]time.Time, n)
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		dates[i] = time.Date(2019, 8, 5, i, 0, 0, 0, time.UTC)
		a[i] = float64(i)
		b[i] = float64(10 * i)
		c[i] = float64(100 * i)
	}
	frame := NewFrame(dates)
	require.NoError(t, frame.AddColumn("a", a))
	require.NoError(t, frame.AddColumn("b", b))
	require.NoError(t, frame.AddColumn("c", c))
	return frame
}

func TestFrameDropColumn(t *testing.T) {
	frame := newTestFrame(t, 3)

	values := frame.DropColumn("b")
	assert.Equal(t, []float64{0, 10, 20}, values)
	assert.Equal(t, []string{"a", "c"}, frame.Columns)
	assert.Equal(t, []float64{1, 100}, frame.Rows[1])
}

func TestFrameDropColumnAbsent(t *testing.T) {
	frame := newTestFrame(t, 2)
	assert.Nil(t, frame.DropColumn("missing"))
	assert.Equal(t, []string{"a", "b", "c"}, frame.Columns)
}

func TestFrameDropColumnLeavesSliceParentIntact(t *testing.T) {
	parent := newTestFrame(t, 4)

	child := parent.Slice(1, 3)
	child.DropColumn("b")

	assert.Equal(t, []string{"a", "c"}, child.Columns)
	assert.Equal(t, []float64{1, 100}, child.Rows[0])

	// The view shares the parent's storage, so the drop must not reach
	// through it.
	assert.Equal(t, []string{"a", "b", "c"}, parent.Columns)
	for i, row := range parent.Rows {
		require.Len(t, row, 3)
		assert.Equal(t, []float64{float64(i), float64(10 * i), float64(100 * i)}, row)
	}
}

func TestFrameAddColumnLengthMismatch(t *testing.T) {
	frame := newTestFrame(t, 3)
	err := frame.AddColumn("short", []float64{1, 2})
	assert.Error(t, err)
}
